package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// ErrMissingID is returned when a profile payload has no usable user id.
var ErrMissingID = errors.New("profile has no id")

// DefaultIDPath locates the user id in a Discord-shaped profile.
const DefaultIDPath = "id"

// AuthToken is the token pair kept for a user. ExpiresAt is unix seconds and
// already has the safety margin subtracted.
type AuthToken struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// Expired reports whether the access token must be refreshed at now.
func (t AuthToken) Expired(now time.Time) bool {
	return now.Unix() >= t.ExpiresAt
}

// Profile is the provider's user object. The payload is kept as-is so fields
// the broker does not know about survive storage.
type Profile struct {
	ID  string
	Raw json.RawMessage
}

// NewProfile validates raw and extracts its top-level "id".
func NewProfile(raw []byte) (*Profile, error) {
	return ParseProfile(raw, DefaultIDPath)
}

// ParseProfile validates raw and reads the user id at idPath, a gjson path
// such as "id" or "sub".
func ParseProfile(raw []byte, idPath string) (*Profile, error) {
	p, err := compactProfile(raw)
	if err != nil {
		return nil, err
	}
	if err := p.resolveID(idPath); err != nil {
		return nil, err
	}
	return p, nil
}

func compactProfile(raw []byte) (*Profile, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid profile json")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("failed to compact profile: %w", err)
	}
	return &Profile{Raw: buf.Bytes()}, nil
}

func (p *Profile) resolveID(idPath string) error {
	if idPath == "" {
		idPath = DefaultIDPath
	}
	id := gjson.GetBytes(p.Raw, idPath)
	if !id.Exists() || id.String() == "" {
		return ErrMissingID
	}
	p.ID = id.String()
	return nil
}

// Get returns a top-level or dotted-path field of the profile.
func (p *Profile) Get(path string) gjson.Result {
	return gjson.GetBytes(p.Raw, path)
}

func (p Profile) MarshalJSON() ([]byte, error) {
	if len(p.Raw) == 0 {
		return []byte("null"), nil
	}
	return p.Raw, nil
}

// UnmarshalJSON keeps the payload. The id is resolved by the decoder that
// knows where the provider puts it.
func (p *Profile) UnmarshalJSON(data []byte) error {
	parsed, err := compactProfile(data)
	if err != nil {
		return err
	}
	*p = *parsed
	return nil
}

// StoredUser is the record kept under the provider user id.
type StoredUser struct {
	User *Profile  `json:"user"`
	Auth AuthToken `json:"auth"`
}

// ID returns the provider user id.
func (u *StoredUser) ID() string {
	if u.User == nil {
		return ""
	}
	return u.User.ID
}

// Encode serializes the record for the store.
func (u *StoredUser) Encode() (string, error) {
	if u.User == nil {
		return "", ErrMissingID
	}
	b, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("failed to encode stored user: %w", err)
	}
	return string(b), nil
}

// DecodeStoredUser parses a record whose profile carries a top-level "id".
func DecodeStoredUser(value string) (*StoredUser, error) {
	return DecodeStoredUserAt(value, DefaultIDPath)
}

// DecodeStoredUserAt parses a record read from the store, reading the user
// id at idPath.
func DecodeStoredUserAt(value, idPath string) (*StoredUser, error) {
	var u StoredUser
	if err := json.Unmarshal([]byte(value), &u); err != nil {
		return nil, fmt.Errorf("failed to decode stored user: %w", err)
	}
	if u.User == nil {
		return nil, ErrMissingID
	}
	if err := u.User.resolveID(idPath); err != nil {
		return nil, err
	}
	return &u, nil
}

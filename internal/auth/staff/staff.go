// Package staff mints short-lived ES256 credentials for signed-in users,
// flagging the ones listed as staff.
package staff

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/brizzai/session-broker/internal/auth/models"
	"github.com/brizzai/session-broker/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"k8s.io/utils/clock"
)

// DefaultTTL is the credential lifetime when none is configured.
const DefaultTTL = 4 * time.Hour

// ErrDisabled is returned by New when no signing key is configured.
var ErrDisabled = errors.New("staff credentials are disabled")

// Claims is the credential payload.
type Claims struct {
	UserID string `json:"userId"`
	Staff  bool   `json:"staff,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs credentials with an ECDSA P-256 key.
type Issuer struct {
	key   *ecdsa.PrivateKey
	staff map[string]struct{}
	ttl   time.Duration
	clock clock.PassiveClock
}

// New parses the PEM signing key (PKCS8 or SEC1) from configuration.
func New(cfg *config.StaffConfig, clk clock.PassiveClock) (*Issuer, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(cfg.SigningKey))
	if err != nil {
		return nil, fmt.Errorf("invalid staff signing key: %w", err)
	}
	if key.Curve.Params().BitSize != 256 {
		return nil, fmt.Errorf("staff signing key must be P-256, got %s", key.Curve.Params().Name)
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	staff := make(map[string]struct{}, len(cfg.UserIDs))
	for _, id := range cfg.UserIDs {
		staff[id] = struct{}{}
	}

	return &Issuer{key: key, staff: staff, ttl: ttl, clock: clk}, nil
}

// IsStaff reports whether userID is on the staff list.
func (i *Issuer) IsStaff(userID string) bool {
	_, ok := i.staff[userID]
	return ok
}

// Issue signs a credential for user.
func (i *Issuer) Issue(user *models.StoredUser) (string, error) {
	if user.ID() == "" {
		return "", models.ErrMissingID
	}

	now := i.clock.Now()
	claims := Claims{
		UserID: user.ID(),
		Staff:  i.IsStaff(user.ID()),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign staff credential: %w", err)
	}
	return signed, nil
}

// Parse verifies a credential issued by i.
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return &i.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid staff credential: %w", err)
	}
	return claims, nil
}

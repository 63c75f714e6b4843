// Package entropy produces the high-entropy strings used for state tokens and
// session identifiers.
package entropy

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brizzai/session-broker/internal/config"
	"github.com/brizzai/session-broker/internal/logger"
	"go.uber.org/zap"
)

// ErrEmptyValue is returned when the remote source answers without data.
var ErrEmptyValue = errors.New("entropy source returned an empty value")

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks -source=entropy.go Source

// Source yields a fresh random string on every call.
type Source interface {
	Generate(ctx context.Context) (string, error)
}

// RemoteSource fetches random values from an HTTP endpoint answering
// {"Data": "<random>"}, such as https://csprng.xyz/v1/api.
type RemoteSource struct {
	client *http.Client
	url    string
}

// NewRemoteSource creates a RemoteSource. A nil client gets a default one
// bounded by timeout.
func NewRemoteSource(url string, client *http.Client, timeout time.Duration) *RemoteSource {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &RemoteSource{client: client, url: url}
}

// Generate implements Source.
func (s *RemoteSource) Generate(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create entropy request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("entropy request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("entropy request failed with status %s", resp.Status)
	}

	var body struct {
		Data string `json:"Data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode entropy response: %w", err)
	}
	if body.Data == "" {
		return "", ErrEmptyValue
	}
	return body.Data, nil
}

// localSize is the number of random bytes behind a LocalSource value.
const localSize = 32

// LocalSource reads from crypto/rand.
type LocalSource struct {
	reader io.Reader
}

// NewLocalSource creates a LocalSource backed by crypto/rand.
func NewLocalSource() *LocalSource {
	return &LocalSource{reader: rand.Reader}
}

// Generate implements Source.
func (s *LocalSource) Generate(_ context.Context) (string, error) {
	b := make([]byte, localSize)
	if _, err := io.ReadFull(s.reader, b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// New builds the source selected in configuration.
func New(cfg *config.Config) (Source, error) {
	switch cfg.Entropy.Source {
	case config.EntropySourceRemote:
		return NewRemoteSource(cfg.Entropy.URL, nil, cfg.Entropy.Timeout), nil
	case config.EntropySourceLocal:
		return NewLocalSource(), nil
	default:
		return nil, fmt.Errorf("unsupported entropy source: %s", cfg.Entropy.Source)
	}
}

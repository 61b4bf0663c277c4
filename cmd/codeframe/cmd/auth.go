package cmd

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/frankbria/codeframe/pkg/api"
)

var errInvalidToken = errors.New("cmd: invalid bearer token")

// staticTokenVerifier implements api.TokenVerifier against a single shared
// secret read from AUTH_TOKEN. Issuing and rotating real session/JWT
// tokens is somebody else's job; this is the minimal standalone verifier a
// self-hosted deployment needs when it isn't fronted by a separate
// identity provider.
type staticTokenVerifier struct {
	token string
}

func newTokenVerifier() api.TokenVerifier {
	token := os.Getenv("AUTH_TOKEN")
	if token == "" {
		slog.Warn("AUTH_TOKEN not set, accepting any non-empty bearer token")
	}
	return &staticTokenVerifier{token: token}
}

func (v *staticTokenVerifier) Verify(_ context.Context, token string) (*api.Principal, error) {
	if token == "" {
		return nil, errInvalidToken
	}
	if v.token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(v.token)) != 1 {
		return nil, errInvalidToken
	}
	return &api.Principal{ID: "operator", ExpiresAt: time.Time{}}, nil
}

package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenAuth checks the shared tap token. Browsers cannot set headers on a
// websocket handshake, so the token is also accepted as the token query parameter.
type TokenAuth struct {
	Token string
}

func (m *TokenAuth) Name() string {
	return "TokenAuth"
}

// OnConnect accepts every request when no token is configured.
func (m *TokenAuth) OnConnect(r *http.Request) error {
	if m == nil || m.Token == "" {
		return nil
	}
	token := r.URL.Query().Get("token")
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		token = bearer
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(m.Token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

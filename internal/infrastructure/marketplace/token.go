package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
)

// tokenLeeway renews access tokens this long before they expire
const tokenLeeway = time.Minute

// tokenResponse is the OAuth2 token answer shared by LWA and eBay
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// tokenSource caches an OAuth2 access token
type tokenSource struct {
	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
	fetch   func(ctx context.Context) (*tokenResponse, error)
}

func newTokenSource(fetch func(ctx context.Context) (*tokenResponse, error)) *tokenSource {
	return &tokenSource{fetch: fetch, now: time.Now}
}

// Token returns a valid access token, exchanging credentials when needed
func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.now().Before(s.expires) {
		return s.token, nil
	}
	resp, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	lifetime := time.Duration(resp.ExpiresIn) * time.Second
	if lifetime > 2*tokenLeeway {
		lifetime -= tokenLeeway
	}
	s.token = resp.AccessToken
	s.expires = s.now().Add(lifetime)
	return s.token, nil
}

// Invalidate drops the cached token so the next call exchanges again
func (s *tokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// exchangeToken posts an OAuth2 form to tokenURL through t
func exchangeToken(ctx context.Context, t *httpTransport, tokenURL string, form url.Values, basicUser, basicPass string) (*tokenResponse, error) {
	r := &request{
		method: http.MethodPost,
		url:    tokenURL,
		body:   []byte(form.Encode()),
		ctype:  "application/x-www-form-urlencoded",
		noAuth: true,
	}
	if basicUser != "" {
		r.headers = http.Header{"Authorization": {"Basic " + basicAuth(basicUser, basicPass)}}
	}
	raw, err := t.do(ctx, r)
	if err != nil {
		// a rejected grant is a credential problem, whatever status the server chose
		if ve, ok := err.(*marketsync.ValidationError); ok {
			return nil, &marketsync.AuthError{Marketplace: t.code, Message: ve.Message}
		}
		return nil, err
	}
	var tok tokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, t.invalidResponse(err)
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return nil, &marketsync.AuthError{Marketplace: t.code, Message: "token endpoint returned no access token"}
	}
	return &tok, nil
}

// bearerAuthorizer sets the token in header (with an optional scheme prefix)
func bearerAuthorizer(src *tokenSource, header, scheme string) authorizer {
	return func(ctx context.Context, req *http.Request) error {
		tok, err := src.Token(ctx)
		if err != nil {
			return err
		}
		if scheme != "" {
			tok = scheme + " " + tok
		}
		req.Header.Set(header, tok)
		return nil
	}
}

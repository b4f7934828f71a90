package primetrust

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kash/onboarding-service/internal/errs"
)

// refreshSkew renews a token this long before its exp claim.
const refreshSkew = 5 * time.Minute

type issuedToken struct {
	value     string
	expiresAt time.Time
}

// TokenProvider owns the Prime Trust JWT. Reads are lock-free; refreshes are
// serialized so concurrent callers share one upstream request.
type TokenProvider struct {
	url        string
	email      string
	password   string
	httpClient *http.Client
	now        func() time.Time

	mu      sync.Mutex
	current atomic.Pointer[issuedToken]
}

// NewTokenProvider creates a provider that authenticates against jwtURL with basic auth.
func NewTokenProvider(jwtURL, email, password string) *TokenProvider {
	return &TokenProvider{
		url:        jwtURL,
		email:      email,
		password:   password,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
}

// Token returns the cached JWT, fetching a new one when none is cached or the cached
// one is about to expire.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	if t := p.current.Load(); p.fresh(t) {
		return t.value, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if t := p.current.Load(); p.fresh(t) {
		return t.value, nil
	}
	t, err := p.issue(ctx)
	if err != nil {
		return "", err
	}
	return t.value, nil
}

// Refresh unconditionally replaces the cached JWT. On failure the previous token is kept.
func (p *TokenProvider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.issue(ctx)
	return err
}

// ExpiresAt reports the exp claim of the cached token, zero when unknown.
func (p *TokenProvider) ExpiresAt() time.Time {
	if t := p.current.Load(); t != nil {
		return t.expiresAt
	}
	return time.Time{}
}

func (p *TokenProvider) fresh(t *issuedToken) bool {
	if t == nil {
		return false
	}
	if t.expiresAt.IsZero() {
		return true
	}
	return p.now().Add(refreshSkew).Before(t.expiresAt)
}

// issue must be called with p.mu held.
func (p *TokenProvider) issue(ctx context.Context) (*issuedToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create jwt request: %w", err)
	}
	req.SetBasicAuth(p.email, p.password)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request Prime Trust jwt: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, handleErrorResponse(resp)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode jwt response: %w", err)
	}
	if body.Token == "" {
		return nil, &errs.VendorError{Vendor: vendorName, Status: resp.StatusCode, Detail: "empty jwt"}
	}

	t := &issuedToken{value: body.Token, expiresAt: expiry(body.Token)}
	p.current.Store(t)
	return t, nil
}

// expiry reads the exp claim without verifying the signature.
func expiry(token string) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

var _ TokenSource = (*TokenProvider)(nil)

// StaticToken is a fixed TokenSource, mostly for tests and local tooling.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("empty static token")
	}
	return string(s), nil
}

package fedex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/ColisTrack/internal/cache"
	"github.com/pkg/errors"
)

const (
	tokenCacheKey = "fedex:oauth:token"
	tokenLockKey  = "fedex:oauth:lock"

	defaultExpiresIn = 3600 * time.Second
)

// AuthenticationError is returned when the OAuth endpoint rejects or cannot serve
// the client-credentials grant. It is never retried here.
type AuthenticationError struct {
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fedex auth: http %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fedex auth: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// Locker coordinates token refresh between processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type sharedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenSource hands out a bearer token for the FedEx API.
//
// A process-wide mutex serializes callers. The token is looked up locally, then in
// the shared cache, and only then fetched from the OAuth endpoint. When a Locker is
// set, only one process fetches at a time and the others wait for its result in the
// shared cache.
type TokenSource struct {
	authURL      string
	clientID     string
	clientSecret string
	httpc        *http.Client

	shared   cache.BytesCache
	locker   Locker
	lockTTL  time.Duration
	lockWait time.Duration

	now func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenSource(authURL, clientID, clientSecret string, shared cache.BytesCache) *TokenSource {
	return &TokenSource{
		authURL:      authURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpc:        &http.Client{Timeout: 10 * time.Second},
		shared:       shared,
		lockTTL:      10 * time.Second,
		lockWait:     5 * time.Second,
		now:          time.Now,
	}
}

func (s *TokenSource) WithLocker(l Locker) *TokenSource {
	s.locker = l
	return s
}

func (s *TokenSource) WithHTTPClient(c *http.Client) *TokenSource {
	if c != nil {
		s.httpc = c
	}
	return s
}

// Token returns a token that has not expired yet.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.validLocal() {
		return s.token, nil
	}
	if s.loadShared(ctx) {
		return s.token, nil
	}

	if s.locker != nil {
		release, err := s.locker.TryLock(ctx, tokenLockKey, s.lockTTL)
		switch {
		case err != nil:
			slog.Warn("fedex token lock unavailable", "error", err.Error())
		case release == nil:
			if s.waitShared(ctx) {
				return s.token, nil
			}
			slog.Warn("fedex token not published by lock holder, fetching", "waited", s.lockWait.String())
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					slog.Warn("fedex token unlock", "error", err.Error())
				}
			}()
			// someone may have finished a refresh between our read and the lock
			if s.loadShared(ctx) {
				return s.token, nil
			}
		}
	}

	token, ttl, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expiresAt = s.now().Add(ttl)
	s.storeShared(ctx, ttl)

	slog.Info("fedex token refreshed", "expires_at", s.expiresAt.UTC().Format(time.RFC3339))
	return s.token, nil
}

func (s *TokenSource) validLocal() bool {
	return s.token != "" && s.now().Before(s.expiresAt)
}

func (s *TokenSource) loadShared(ctx context.Context) bool {
	if s.shared == nil {
		return false
	}
	b, ok, err := s.shared.Get(ctx, tokenCacheKey)
	if err != nil {
		slog.Warn("fedex token shared cache get", "error", err.Error())
		return false
	}
	if !ok {
		return false
	}
	var st sharedToken
	if err := json.Unmarshal(b, &st); err != nil || st.AccessToken == "" {
		return false
	}
	if !s.now().Before(st.ExpiresAt) {
		return false
	}
	s.token = st.AccessToken
	s.expiresAt = st.ExpiresAt
	return true
}

func (s *TokenSource) waitShared(ctx context.Context) bool {
	deadline := time.Now().Add(s.lockWait)
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			if s.loadShared(ctx) {
				return true
			}
		}
	}
	return false
}

func (s *TokenSource) storeShared(ctx context.Context, ttl time.Duration) {
	if s.shared == nil {
		return
	}
	b, err := json.Marshal(sharedToken{AccessToken: s.token, ExpiresAt: s.expiresAt})
	if err != nil {
		return
	}
	if err := s.shared.Set(ctx, tokenCacheKey, b, ttl); err != nil {
		slog.Warn("fedex token shared cache set", "error", err.Error())
	}
}

type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   json.RawMessage `json:"expires_in"`
}

func (s *TokenSource) fetch(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, &AuthenticationError{Err: errors.Wrap(err, "new request")}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", 0, &AuthenticationError{Err: errors.Wrap(err, "do request")}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, &AuthenticationError{StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, &AuthenticationError{Err: errors.Wrap(err, "decode")}
	}
	if tr.AccessToken == "" {
		return "", 0, &AuthenticationError{Err: errors.New("empty access_token")}
	}

	ttl := defaultExpiresIn
	var f flexInt
	if len(tr.ExpiresIn) > 0 && f.UnmarshalJSON(tr.ExpiresIn) == nil && f > 0 {
		ttl = time.Duration(f) * time.Second
	}
	return tr.AccessToken, ttl, nil
}

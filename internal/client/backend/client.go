package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/santinotanus/medtrace/internal/client/models"
	"github.com/santinotanus/medtrace/internal/common"
	"github.com/santinotanus/medtrace/internal/logging"
	"github.com/sony/gobreaker/v2"
)

// refreshLeeway is how long before expiry an access token is refreshed.
const refreshLeeway = 30 * time.Second

// BreakerConfig tunes the circuit breaker in front of the backend.
type BreakerConfig struct {
	// MaxRequests allowed while half-open.
	MaxRequests uint32
	// Interval clears the counts while closed. Zero never clears them.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// FailureRatio trips the breaker once MinRequests have been counted.
	FailureRatio float64
	MinRequests  uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

type Options struct {
	URL     string
	AnonKey string
	// Timeout bounds each HTTP request. Zero means no client timeout.
	Timeout time.Duration
	// Storage persists the session. Nil keeps it in memory only.
	Storage    SessionStorage
	Logger     logging.Logger
	Breaker    *BreakerConfig
	HTTPClient *http.Client
	Now        func() time.Time
}

type response struct {
	status int
	body   []byte
}

func (r *response) apiError() *APIError {
	var b errorBody
	_ = json.Unmarshal(r.body, &b)
	msg := b.message()
	if msg == "" {
		msg = http.StatusText(r.status)
	}
	return &APIError{Status: r.status, Code: b.code(), Message: msg}
}

type apiRequest struct {
	method string
	path   string
	query  url.Values
	body   any
	prefer string
	// authed requests carry the user's access token when there is a session.
	authed bool
}

type listener struct {
	id int
	fn AuthListener
}

// Client talks to the backend over HTTP. It owns the current session: it
// restores it from storage, refreshes it before expiry or after a 401 and
// reports every change to the auth listeners.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*response]
	storage SessionStorage
	log     logging.Logger
	now     func() time.Time

	mu           sync.Mutex
	session      *models.Session
	restored     bool
	listeners    []listener
	nextListener int

	refreshMu sync.Mutex
}

var (
	_ Auth      = (*Client)(nil)
	_ Data      = (*Client)(nil)
	_ Functions = (*Client)(nil)
	_ Pinger    = (*Client)(nil)
	_ Executor  = (*Client)(nil)
)

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(opts.URL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", opts.URL)
	}

	c := &Client{
		baseURL: base,
		anonKey: opts.AnonKey,
		http:    opts.HTTPClient,
		storage: opts.Storage,
		log:     opts.Logger,
		now:     opts.Now,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: opts.Timeout}
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	if c.now == nil {
		c.now = time.Now
	}

	bc := DefaultBreakerConfig()
	if opts.Breaker != nil {
		bc = *opts.Breaker
	}
	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "backend",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
		},
		// A request the caller cancelled says nothing about the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn(context.Background(), "circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	if len(query) == 0 {
		return c.baseURL + path
	}
	return c.baseURL + path + "?" + query.Encode()
}

// roundTrip sends one request through the breaker. 5xx answers count as
// breaker failures; 4xx answers are returned as *APIError.
func (c *Client) roundTrip(ctx context.Context, r apiRequest, token string) (*response, error) {
	var payload []byte
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		payload = b
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		var body io.Reader = http.NoBody
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("apikey", c.anonKey)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if r.prefer != "" {
			req.Header.Set("Prefer", r.prefer)
		}

		hr, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer hr.Body.Close()

		b, err := io.ReadAll(hr.Body)
		if err != nil {
			return nil, err
		}
		res := &response{status: hr.StatusCode, body: b}
		if hr.StatusCode >= http.StatusInternalServerError {
			return nil, res.apiError()
		}
		return res, nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	if resp.status >= http.StatusBadRequest {
		return nil, resp.apiError()
	}
	return resp, nil
}

// send performs r and decodes the answer into out. An authed request that
// fails with 401 is retried once after refreshing the session.
func (c *Client) send(ctx context.Context, r apiRequest, out any) error {
	token := c.anonKey
	var s *models.Session
	if r.authed {
		s = c.activeSession(ctx)
		if s != nil {
			token = s.AccessToken
		}
	}

	resp, err := c.roundTrip(ctx, r, token)
	if errors.Is(err, common.ErrUnauthorized) && s != nil && s.RefreshToken != "" {
		fresh, rerr := c.refresh(ctx, s)
		if rerr != nil {
			return err
		}
		resp, err = c.roundTrip(ctx, r, fresh.AccessToken)
	}
	if err != nil {
		return err
	}
	return decode(resp.body, out)
}

func decode(body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// restore loads the persisted session the first time it is needed. An
// unreadable stored session is discarded.
func (c *Client) restore(ctx context.Context) *models.Session {
	c.mu.Lock()
	if c.restored {
		s := c.session
		c.mu.Unlock()
		return s
	}
	c.mu.Unlock()

	var stored *models.Session
	if c.storage != nil {
		var err error
		stored, err = c.storage.Load(ctx)
		if err != nil {
			c.log.Warn(ctx, "discarding unreadable stored session", "error", err)
			if err := c.storage.Clear(ctx); err != nil {
				c.log.Warn(ctx, "failed to clear stored session", "error", err)
			}
			stored = nil
		}
	}

	c.mu.Lock()
	first := !c.restored
	if first {
		c.restored = true
		c.session = stored
	}
	s := c.session
	c.mu.Unlock()

	if first {
		c.notify(EventInitialSession, s)
	}
	return s
}

// activeSession returns the current session, refreshed when it is about to
// expire. While the backend is unreachable the stale session is kept.
func (c *Client) activeSession(ctx context.Context) *models.Session {
	s := c.restore(ctx)
	if s == nil || s.RefreshToken == "" || !s.Expired(c.now(), refreshLeeway) {
		return s
	}
	fresh, err := c.refresh(ctx, s)
	if errors.Is(err, common.ErrUnauthorized) {
		return nil
	}
	if err != nil {
		c.log.Warn(ctx, "session refresh failed, keeping current token", "error", err)
		return s
	}
	return fresh
}

// refresh exchanges the refresh token of stale. Concurrent callers share
// one exchange. A rejected refresh token signs the client out; any other
// failure is returned and the session is left alone.
func (c *Client) refresh(ctx context.Context, stale *models.Session) (*models.Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.Lock()
	cur := c.session
	c.mu.Unlock()

	if cur == nil {
		return nil, common.ErrUnauthorized
	}
	if cur.RefreshToken != stale.RefreshToken {
		return cur, nil
	}

	resp, err := c.roundTrip(ctx, apiRequest{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": cur.RefreshToken},
	}, c.anonKey)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.refreshRejected() {
			c.log.Warn(ctx, "refresh token rejected, signing out", "status", apiErr.Status, "code", apiErr.Code)
			c.setSession(ctx, nil, EventSignedOut)
			return nil, fmt.Errorf("%w: %v", common.ErrUnauthorized, err)
		}
		return nil, err
	}

	var fresh models.Session
	if err := decode(resp.body, &fresh); err != nil {
		return nil, err
	}
	if fresh.User == nil {
		fresh.User = cur.User
	}
	c.normalize(&fresh)
	c.setSession(ctx, &fresh, EventTokenRefreshed)
	return &fresh, nil
}

// normalize fills ExpiresAt from the token's exp claim, or from expires_in
// when the token carries none.
func (c *Client) normalize(s *models.Session) {
	if s.ExpiresAt != 0 {
		return
	}
	if exp := tokenExpiry(s.AccessToken); exp != 0 {
		s.ExpiresAt = exp
		return
	}
	if s.ExpiresIn > 0 {
		s.ExpiresAt = c.now().Unix() + s.ExpiresIn
	}
}

func tokenExpiry(token string) int64 {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	return exp.Unix()
}

func (c *Client) setSession(ctx context.Context, s *models.Session, event AuthEvent) {
	c.mu.Lock()
	c.session = s
	c.restored = true
	c.mu.Unlock()

	if c.storage != nil {
		var err error
		if s == nil {
			err = c.storage.Clear(ctx)
		} else {
			err = c.storage.Save(ctx, s)
		}
		if err != nil {
			c.log.Warn(ctx, "failed to persist session", "event", string(event), "error", err)
		}
	}
	c.notify(event, s)
}

// notify calls the listeners synchronously, outside the lock.
func (c *Client) notify(event AuthEvent, s *models.Session) {
	c.mu.Lock()
	ls := make([]listener, len(c.listeners))
	copy(ls, c.listeners)
	c.mu.Unlock()

	for _, l := range ls {
		l.fn(event, s)
	}
}

func (c *Client) OnAuthStateChange(fn AuthListener) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Client) GetSession(ctx context.Context) (*models.Session, error) {
	return c.activeSession(ctx), nil
}

func (c *Client) signedIn(ctx context.Context, s *models.Session, event AuthEvent) *models.Session {
	c.normalize(s)
	c.setSession(ctx, s, event)
	return s
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	var s models.Session
	err := c.send(ctx, apiRequest{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	}, &s)
	if err != nil {
		return nil, err
	}
	return c.signedIn(ctx, &s, EventSignedIn), nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*models.Session, error) {
	body := map[string]any{"email": email, "password": password}
	if len(metadata) > 0 {
		body["data"] = metadata
	}

	var s models.Session
	if err := c.send(ctx, apiRequest{method: http.MethodPost, path: "/auth/v1/signup", body: body}, &s); err != nil {
		return nil, err
	}
	// Without a token the auth service answered with the bare user: the
	// address has to be confirmed before a session is issued.
	if s.AccessToken == "" {
		return nil, nil
	}
	return c.signedIn(ctx, &s, EventSignedIn), nil
}

func (c *Client) SignInWithOTP(ctx context.Context, email string, shouldCreateUser bool) error {
	return c.send(ctx, apiRequest{
		method: http.MethodPost,
		path:   "/auth/v1/otp",
		body:   map[string]any{"email": email, "create_user": shouldCreateUser},
	}, nil)
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	return c.send(ctx, apiRequest{
		method: http.MethodPost,
		path:   "/auth/v1/recover",
		body:   map[string]string{"email": email},
	}, nil)
}

func (c *Client) VerifyOTP(ctx context.Context, email, token string, kind OTPType) (*models.Session, error) {
	var s models.Session
	err := c.send(ctx, apiRequest{
		method: http.MethodPost,
		path:   "/auth/v1/verify",
		body:   map[string]string{"type": string(kind), "email": email, "token": token},
	}, &s)
	if err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		return nil, &APIError{Status: http.StatusBadGateway, Message: "verify returned no session"}
	}

	event := EventSignedIn
	if kind == OTPRecovery {
		event = EventPasswordRecovery
	}
	return c.signedIn(ctx, &s, event), nil
}

func (c *Client) UpdateUser(ctx context.Context, attrs UserAttributes) (*models.User, error) {
	if c.restore(ctx) == nil {
		return nil, common.ErrUnauthorized
	}

	var u models.User
	err := c.send(ctx, apiRequest{method: http.MethodPut, path: "/auth/v1/user", body: attrs, authed: true}, &u)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	cur := c.session
	c.mu.Unlock()
	if cur != nil {
		next := *cur
		next.User = &u
		c.setSession(ctx, &next, EventUserUpdated)
	}
	return &u, nil
}

// SignOut revokes the session on the backend and always clears it locally.
// A token the backend no longer knows is not an error.
func (c *Client) SignOut(ctx context.Context) error {
	var err error
	if s := c.restore(ctx); s != nil {
		_, err = c.roundTrip(ctx, apiRequest{method: http.MethodPost, path: "/auth/v1/logout"}, s.AccessToken)
		if errors.Is(err, common.ErrUnauthorized) || errors.Is(err, common.ErrNotFound) {
			err = nil
		}
	}
	c.setSession(ctx, nil, EventSignedOut)
	return err
}

func (c *Client) From(table string) *Query {
	return NewQuery(c, table)
}

// Execute runs q against /rest/v1. Single and MaybeSingle read a list and
// check its length on the client.
func (c *Client) Execute(ctx context.Context, q *Query, out any) error {
	r := apiRequest{
		method: q.Method(),
		path:   "/rest/v1/" + url.PathEscape(q.Table()),
		query:  q.Params(),
		body:   q.Body(),
		prefer: q.Prefer(),
		authed: true,
	}
	if q.Cardinality() == Many {
		return c.send(ctx, r, out)
	}

	var rows []json.RawMessage
	if err := c.send(ctx, r, &rows); err != nil {
		return err
	}
	switch len(rows) {
	case 0:
		if q.Cardinality() == One {
			return fmt.Errorf("%s: %w", q.Table(), common.ErrNotFound)
		}
		return decode([]byte("null"), out)
	case 1:
		return decode(rows[0], out)
	default:
		return fmt.Errorf("%s: %w", q.Table(), ErrMultipleRows)
	}
}

func (c *Client) Invoke(ctx context.Context, name string, body, out any) error {
	return c.send(ctx, apiRequest{
		method: http.MethodPost,
		path:   "/functions/v1/" + url.PathEscape(name),
		body:   body,
		authed: true,
	}, out)
}

// Ping checks the auth service health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.roundTrip(ctx, apiRequest{method: http.MethodGet, path: "/auth/v1/health"}, c.anonKey)
	return err
}

// Package session owns the authenticated session against the primary
// vendor control plane. It renews transparently, falls back to a
// pre-provisioned static token when login is impossible, and serializes
// renewal so concurrent callers never race parallel logins.
package session

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"topolens/internal/domain"
	"topolens/internal/metrics"
)

// Method is how the current session was obtained.
type Method string

const (
	// MethodSession is a time-bounded token from the login endpoint.
	MethodSession Method = "session"
	// MethodStaticToken is the pre-provisioned long-lived API token,
	// used when login fails or is unsupported by the device.
	MethodStaticToken Method = "static_token"
)

// Session is an authenticated credential for the control plane. A
// static-token session has a zero ExpiresAt and never expires.
type Session struct {
	Token     string
	Method    Method
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ValidAt reports whether the session is still usable at t, leaving the
// given safety margin before expiry.
func (s *Session) ValidAt(t time.Time, margin time.Duration) bool {
	if s == nil || s.Token == "" {
		return false
	}
	if s.Method == MethodStaticToken {
		return true
	}
	return t.Before(s.ExpiresAt.Add(-margin))
}

// Health is the operator-facing view of session state.
type Health struct {
	Method    Method     `json:"method"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Healthy   bool       `json:"healthy"`
}

// Config holds control-plane connection settings.
type Config struct {
	BaseURL     string
	LoginPath   string // default "/api/v2/authentication"
	LogoutPath  string // default "/api/v2/logout"
	Username    string
	Password    string
	StaticToken string
	CookieName  string // session cookie name, default "ccsid"

	// SessionTTL applies when the server does not supply an expiry.
	SessionTTL   time.Duration
	SafetyMargin time.Duration
	Timeout      time.Duration
	VerifyTLS    bool
}

func (c *Config) applyDefaults() {
	if c.LoginPath == "" {
		c.LoginPath = "/api/v2/authentication"
	}
	if c.LogoutPath == "" {
		c.LogoutPath = "/api/v2/logout"
	}
	if c.CookieName == "" {
		c.CookieName = "ccsid"
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * time.Minute
	}
	if c.SafetyMargin <= 0 {
		c.SafetyMargin = 60 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}

// Manager holds the single mutable session slot. Reads are safe for
// concurrent callers; renewal is single-flight so parallel callers
// awaiting a login share one attempt instead of racing the endpoint
// (and its lockout counters).
type Manager struct {
	cfg    Config
	client *http.Client

	mu      sync.RWMutex
	current *Session

	renew   singleflight.Group
	now     func() time.Time
	metrics *metrics.Registry
}

// SetMetrics registers login and fallback counters. Call before the
// manager starts serving requests.
func (m *Manager) SetMetrics(r *metrics.Registry) { m.metrics = r }

// NewManager creates a session manager. TLS verification is on unless
// the configuration explicitly disables it.
func NewManager(cfg Config) *Manager {
	cfg.applyDefaults()
	transport := http.DefaultTransport
	if !cfg.VerifyTLS {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
		log.Printf("session: TLS verification disabled by configuration for %s", cfg.BaseURL)
	}
	return &Manager{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			// Login redirects carry the session cookie; follow nothing so
			// auth failures surface as responses, not silent navigation.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		now: time.Now,
	}
}

// Session returns a valid session, renewing or falling back as needed.
func (m *Manager) Session(ctx context.Context) (Session, error) {
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()
	if cur.ValidAt(m.now(), m.cfg.SafetyMargin) {
		return *cur, nil
	}
	return m.renewSession(ctx)
}

// renewSession performs a single-flight login-or-fallback and installs
// the result in the session slot.
func (m *Manager) renewSession(ctx context.Context) (Session, error) {
	v, err, _ := m.renew.Do("renew", func() (any, error) {
		// A concurrent caller may have renewed while we waited.
		m.mu.RLock()
		cur := m.current
		m.mu.RUnlock()
		if cur.ValidAt(m.now(), m.cfg.SafetyMargin) {
			return *cur, nil
		}

		s, loginErr := m.login(ctx)
		if m.metrics != nil {
			if loginErr == nil {
				m.metrics.SessionLoginsTotal.WithLabelValues("success").Inc()
			} else {
				m.metrics.SessionLoginsTotal.WithLabelValues("failure").Inc()
			}
		}
		if loginErr != nil {
			if m.cfg.StaticToken == "" {
				return Session{}, &domain.AuthError{Op: "login", Err: loginErr}
			}
			log.Printf("session: login failed (%v), falling back to static token", loginErr)
			if m.metrics != nil {
				m.metrics.SessionFallbacksTotal.Inc()
			}
			s = &Session{
				Token:    m.cfg.StaticToken,
				Method:   MethodStaticToken,
				IssuedAt: m.now(),
			}
		}

		m.mu.Lock()
		prev := m.current
		m.current = s
		m.mu.Unlock()
		if prev == nil || prev.Method != s.Method {
			log.Printf("session: method now %s", s.Method)
		}
		return *s, nil
	})
	if err != nil {
		return Session{}, err
	}
	return v.(Session), nil
}

// loginResponse is the (optional) JSON body of a successful login. Most
// firmware returns only the cookie; newer builds include expires_in.
type loginResponse struct {
	ExpiresIn int `json:"expires_in"`
}

func (m *Manager) login(ctx context.Context) (*Session, error) {
	body, err := json.Marshal(map[string]string{
		"username": m.cfg.Username,
		"password": m.cfg.Password,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+m.cfg.LoginPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("login returned %d", resp.StatusCode)
	}

	token := ""
	for _, c := range resp.Cookies() {
		if c.Name == m.cfg.CookieName {
			token = c.Value
			break
		}
	}
	if token == "" {
		token = resp.Header.Get("X-Auth-Token")
	}
	if token == "" {
		return nil, fmt.Errorf("login response carried no session identifier")
	}

	now := m.now()
	expires := now.Add(m.cfg.SessionTTL)
	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err == nil && lr.ExpiresIn > 0 {
		expires = now.Add(time.Duration(lr.ExpiresIn) * time.Second)
	}

	return &Session{
		Token:     token,
		Method:    MethodSession,
		IssuedAt:  now,
		ExpiresAt: expires,
	}, nil
}

// Do sends an authenticated request. A session-method request answered
// with 401 (or a redirect back to login) triggers exactly one re-login
// and retry before the error surfaces to the caller.
func (m *Manager) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	s, err := m.Session(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := m.send(ctx, req, s)
	if err != nil {
		return nil, err
	}
	if s.Method == MethodSession && authFailed(resp) {
		resp.Body.Close()
		m.invalidate()
		s, err = m.Session(ctx)
		if err != nil {
			return nil, err
		}
		return m.send(ctx, req, s)
	}
	return resp, nil
}

func (m *Manager) send(ctx context.Context, req *http.Request, s Session) (*http.Response, error) {
	r := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	switch s.Method {
	case MethodStaticToken:
		r.Header.Set("Authorization", "Bearer "+s.Token)
	default:
		r.AddCookie(&http.Cookie{Name: m.cfg.CookieName, Value: s.Token})
	}
	return m.client.Do(r)
}

// authFailed detects an expired or rejected session: an explicit 401, or
// the firmware's redirect-to-login answer.
func authFailed(resp *http.Response) bool {
	if resp.StatusCode == http.StatusUnauthorized {
		return true
	}
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		return strings.Contains(loc, "login")
	}
	return false
}

func (m *Manager) invalidate() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}

// Health reports the current session state without triggering a renewal.
func (m *Manager) Health() Health {
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()

	h := Health{Method: MethodSession}
	if cur != nil {
		h.Method = cur.Method
		h.Healthy = cur.ValidAt(m.now(), 0)
		if cur.Method == MethodSession {
			exp := cur.ExpiresAt
			h.ExpiresAt = &exp
		}
	}
	return h
}

// Logout best-effort invalidates the server-side session and clears the
// slot. Static-token sessions have nothing to invalidate remotely.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()
	if cur != nil && cur.Method == MethodSession {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+m.cfg.LogoutPath, nil)
		if err == nil {
			req.AddCookie(&http.Cookie{Name: m.cfg.CookieName, Value: cur.Token})
			if resp, err := m.client.Do(req); err == nil {
				resp.Body.Close()
			}
		}
	}
	m.invalidate()
}

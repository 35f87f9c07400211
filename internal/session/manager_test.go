package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(url string) Config {
	return Config{
		BaseURL:     url,
		Username:    "admin",
		Password:    "hunter2",
		StaticToken: "",
		VerifyTLS:   true,
	}
}

func TestManager_LoginSetsSessionCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/authentication" {
			http.NotFound(w, r)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "ccsid", Value: "abc123"})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewManager(testConfig(srv.URL))
	s, err := m.Session(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Method != MethodSession {
		t.Errorf("method = %s, want %s", s.Method, MethodSession)
	}
	if s.Token != "abc123" {
		t.Errorf("token = %q, want abc123", s.Token)
	}
	if s.ExpiresAt.IsZero() {
		t.Error("expected default TTL expiry to be set")
	}
}

func TestManager_LoginFailureFallsBackToStaticToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.StaticToken = "long-lived-token"
	m := NewManager(cfg)

	s, err := m.Session(context.Background())
	if err != nil {
		t.Fatalf("expected fallback, got error: %v", err)
	}
	if s.Method != MethodStaticToken {
		t.Errorf("method = %s, want %s", s.Method, MethodStaticToken)
	}
	if s.Token != "long-lived-token" {
		t.Errorf("token = %q", s.Token)
	}
	if !m.Health().Healthy {
		t.Error("static-token session should report healthy")
	}
}

func TestManager_LoginFailureWithoutTokenIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusForbidden)
	}))
	defer srv.Close()

	m := NewManager(testConfig(srv.URL))
	if _, err := m.Session(context.Background()); err == nil {
		t.Fatal("expected auth error with no static token configured")
	}
}

func TestManager_DoRetriesOnceAfter401(t *testing.T) {
	var logins, unauthorized atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/authentication":
			logins.Add(1)
			http.SetCookie(w, &http.Cookie{Name: "ccsid", Value: "tok"})
			w.WriteHeader(http.StatusOK)
		case "/api/v2/monitor/devices":
			// First device call gets 401'd to simulate server-side expiry.
			if unauthorized.Add(1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m := NewManager(testConfig(srv.URL))
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v2/monitor/devices", nil)
	resp, err := m.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d after retry, want 200", resp.StatusCode)
	}
	if got := logins.Load(); got != 2 {
		t.Errorf("logins = %d, want 2 (initial + one re-login)", got)
	}
}

func TestManager_ConcurrentCallersShareOneLogin(t *testing.T) {
	var logins atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		<-release
		http.SetCookie(w, &http.Cookie{Name: "ccsid", Value: "tok"})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewManager(testConfig(srv.URL))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Session(context.Background()); err != nil {
				t.Errorf("session: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := logins.Load(); got != 1 {
		t.Errorf("logins = %d, want 1 (single-flight renewal)", got)
	}
}

func TestManager_CachedSessionReusedUntilMargin(t *testing.T) {
	var logins atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "ccsid", Value: "tok"})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewManager(testConfig(srv.URL))
	for i := 0; i < 5; i++ {
		if _, err := m.Session(context.Background()); err != nil {
			t.Fatalf("session: %v", err)
		}
	}
	if got := logins.Load(); got != 1 {
		t.Errorf("logins = %d, want 1", got)
	}

	// Move the clock past expiry; the next call must renew.
	m.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	if _, err := m.Session(context.Background()); err != nil {
		t.Fatalf("session after expiry: %v", err)
	}
	if got := logins.Load(); got != 2 {
		t.Errorf("logins = %d after expiry, want 2", got)
	}
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/advocatedir/internal/config"
	"github.com/simp-lee/advocatedir/internal/domain"
	"github.com/simp-lee/advocatedir/internal/middleware"
)

const testJWTSecret = "Abcd1234!Abcd1234!Abcd1234!Abcd1234!"

type fakeHTTPServer struct {
	listenErr      error
	listenStarted  chan struct{}
	shutdownCalled bool
	stopCh         chan struct{}
	mu             sync.Mutex
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenStarted != nil {
		close(f.listenStarted)
	}
	if f.listenErr != nil {
		return f.listenErr
	}
	if f.stopCh != nil {
		<-f.stopCh
		return http.ErrServerClosed
	}
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.mu.Lock()
	f.shutdownCalled = true
	f.mu.Unlock()
	if f.stopCh != nil {
		close(f.stopCh)
	}
	return nil
}

func (f *fakeHTTPServer) wasShutdownCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdownCalled
}

type recordingCloser struct {
	mu     sync.Mutex
	closed bool
}

func (c *recordingCloser) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingCloser) wasClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// --- test helpers ---

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Mode: gin.TestMode,
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			AutoMigrate: true,
			SQLite:      config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "advocates.db")},
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "text",
		},
		Cache: config.CacheConfig{Backend: "memory"},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { cleanupTestApp(a) })
	return a
}

func cleanupTestApp(a *App) {
	if a == nil {
		return
	}
	if a.cacheCloser != nil {
		_ = a.cacheCloser.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

func seedLookups(t *testing.T, db *gorm.DB) {
	t.Helper()
	rows := []any{
		&domain.City{Name: "Denver", State: "CO"},
		&domain.Degree{Code: "MD", Name: "Doctor of Medicine"},
		&domain.Specialty{Name: "Trauma"},
		&domain.Advocate{FirstName: "Maya", LastName: "Patel", CityID: 1, DegreeID: 1, YearsOfExperience: 12, PhoneNumber: "3035550101", IsActive: true},
	}
	for _, row := range rows {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed %T: %v", row, err)
		}
	}
}

func serve(a *App, method, path, token, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)
	return w
}

type listEnvelope struct {
	Success    bool             `json:"success"`
	Data       []map[string]any `json:"data"`
	Pagination struct {
		TotalRecords int64 `json:"totalRecords"`
	} `json:"pagination"`
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) listEnvelope {
	t.Helper()
	var env listEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal list: %v (%s)", err, w.Body.String())
	}
	return env
}

// --- New tests ---

func TestNew_Errors(t *testing.T) {
	if _, err := New(nil); err == nil || err.Error() != "config is nil" {
		t.Errorf("New(nil) error = %v", err)
	}

	cfg := testConfig(t)
	cfg.Server.Mode = "verbose"
	if _, err := New(cfg); err == nil || !strings.Contains(err.Error(), "invalid server.mode") {
		t.Errorf("New(bad mode) error = %v", err)
	}
}

func TestNew_ReturnsError_WhenDatabaseSetupFails(t *testing.T) {
	// A regular file where the sqlite directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	cfg := testConfig(t)
	cfg.Database.SQLite.Path = filepath.Join(blocker, "sub", "advocates.db")

	_, err := New(cfg)
	if err == nil || !strings.Contains(err.Error(), "setup database") {
		t.Fatalf("New() error = %v; want setup database error", err)
	}
}

func TestNew_ServesAdvocates(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	seedLookups(t, a.db)

	w := serve(a, http.MethodGet, "/api/advocates?page=1&pageSize=10", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/advocates = %d: %s", w.Code, w.Body.String())
	}
	env := decodeList(t, w)
	if !env.Success || len(env.Data) != 1 || env.Pagination.TotalRecords != 1 {
		t.Errorf("unexpected list: %s", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}

	w = serve(a, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("GET /health = %d: %s", w.Code, w.Body.String())
	}

	w = serve(a, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", w.Code)
	}
	for _, name := range []string{"advocatedir_http_requests_total", "advocatedir_cache_misses_total", "go_goroutines"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}

	w = serve(a, http.MethodGet, "/api/unknown", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /api/unknown = %d; want 404", w.Code)
	}
}

func TestNew_AuthDisabled_AdminRejected(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	token, err := middleware.MintToken(testJWTSecret, "advocatedir", "ops", time.Hour)
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}
	w := serve(a, http.MethodPost, "/api/admin/cache/invalidate", token, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("POST invalidate with auth disabled = %d; want 401", w.Code)
	}
}

func TestNew_AdminCreateInvalidatesCachedList(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth = config.AuthConfig{Enabled: true, JWTSecret: testJWTSecret, Issuer: "advocatedir"}
	a := newTestApp(t, cfg)
	seedLookups(t, a.db)

	// Warm the cache.
	if env := decodeList(t, serve(a, http.MethodGet, "/api/advocates", "", "")); len(env.Data) != 1 {
		t.Fatalf("initial list has %d rows; want 1", len(env.Data))
	}

	token, err := middleware.MintToken(testJWTSecret, "advocatedir", "ops", time.Hour)
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}
	body := `{"firstName":"John","lastName":"Smith","cityId":1,"degreeId":1,"yearsOfExperience":3,"phoneNumber":"(303) 555-0102","specialtyIds":[1]}`

	if w := serve(a, http.MethodPost, "/api/admin/advocates", "", body); w.Code != http.StatusUnauthorized {
		t.Fatalf("POST without token = %d; want 401", w.Code)
	}
	w := serve(a, http.MethodPost, "/api/admin/advocates", token, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST with token = %d: %s", w.Code, w.Body.String())
	}

	env := decodeList(t, serve(a, http.MethodGet, "/api/advocates", "", ""))
	if len(env.Data) != 2 || env.Pagination.TotalRecords != 2 {
		t.Errorf("list after create = %d rows, total %d; want 2 and 2", len(env.Data), env.Pagination.TotalRecords)
	}
}

func TestNew_RateLimitAppliesToAPIOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0.01, Burst: 1}
	a := newTestApp(t, cfg)

	if w := serve(a, http.MethodGet, "/api/advocates/filter-options", "", ""); w.Code != http.StatusOK {
		t.Fatalf("first request = %d: %s", w.Code, w.Body.String())
	}
	w := serve(a, http.MethodGet, "/api/advocates/filter-options", "", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d; want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	for i := 0; i < 3; i++ {
		if w := serve(a, http.MethodGet, "/health", "", ""); w.Code != http.StatusOK {
			t.Fatalf("GET /health = %d; probes must not be limited", w.Code)
		}
	}
}

// --- helper function tests ---

func TestResolveCORSConfig(t *testing.T) {
	tests := []struct {
		name        string
		mode        string
		origins     []string
		wantOrigins []string
	}{
		{"debug defaults to wildcard", gin.DebugMode, nil, []string{"*"}},
		{"release without allowlist denies", gin.ReleaseMode, nil, []string{}},
		{"release keeps allowlist", gin.ReleaseMode, []string{"https://a.example"}, []string{"https://a.example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveCORSConfig(tt.mode, config.CORSConfig{AllowOrigins: tt.origins})
			if strings.Join(got.AllowOrigins, ",") != strings.Join(tt.wantOrigins, ",") || len(got.AllowOrigins) != len(tt.wantOrigins) {
				t.Errorf("AllowOrigins = %v; want %v", got.AllowOrigins, tt.wantOrigins)
			}
		})
	}
}

func TestValidateGinMode(t *testing.T) {
	for _, mode := range []string{gin.DebugMode, gin.ReleaseMode, gin.TestMode} {
		if err := validateGinMode(mode); err != nil {
			t.Errorf("validateGinMode(%q) = %v", mode, err)
		}
	}
	if err := validateGinMode("prod"); err == nil {
		t.Error("validateGinMode(prod) = nil; want error")
	}
}

func TestServerTimeout(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"30s", 30 * time.Second},
		{"bogus", 0},
		{"-1s", 0},
	}
	for _, tt := range tests {
		if got := serverTimeout(tt.in); got != tt.want {
			t.Errorf("serverTimeout(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

// --- Run tests ---

func TestRun_ReturnsError_WhenListenFails(t *testing.T) {
	originalNewHTTPServer := newHTTPServer
	originalNotifyContext := notifyContext
	defer func() {
		newHTTPServer = originalNewHTTPServer
		notifyContext = originalNotifyContext
	}()

	listenErr := errors.New("listen failed")
	server := &fakeHTTPServer{listenErr: listenErr}
	newHTTPServer = func(string, http.Handler) httpServer {
		return server
	}
	notifyContext = func(context.Context, ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithCancel(context.Background())
	}

	a := &App{
		engine: gin.New(),
		logger: logger.Default(),
		cfg:    &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080}},
	}

	err := a.Run()
	if err == nil {
		t.Fatalf("Run() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "server error") {
		t.Fatalf("Run() error = %q, want contains %q", err.Error(), "server error")
	}
	if !errors.Is(err, listenErr) {
		t.Fatalf("Run() error = %v, want wraps %v", err, listenErr)
	}
}

func TestRun_ShutdownSignal_ReleasesResources(t *testing.T) {
	originalNewHTTPServer := newHTTPServer
	originalNotifyContext := notifyContext
	defer func() {
		newHTTPServer = originalNewHTTPServer
		notifyContext = originalNotifyContext
	}()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}

	server := &fakeHTTPServer{listenStarted: make(chan struct{}), stopCh: make(chan struct{})}
	newHTTPServer = func(string, http.Handler) httpServer {
		return server
	}

	ctx, cancel := context.WithCancel(context.Background())
	notifyContext = func(context.Context, ...os.Signal) (context.Context, context.CancelFunc) {
		return ctx, cancel
	}

	closer := &recordingCloser{}
	a := &App{
		engine:      gin.New(),
		db:          db,
		cacheCloser: closer,
		logger:      logger.Default(),
		cfg:         &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080}},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run()
	}()

	select {
	case <-server.listenStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start listening in time")
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return in time after shutdown signal")
	}

	if !server.wasShutdownCalled() {
		t.Fatal("expected server Shutdown() to be called")
	}
	if !closer.wasClosed() {
		t.Error("expected cache closer to be called")
	}
	if pingErr := sqlDB.Ping(); pingErr == nil {
		t.Fatal("expected database connection to be closed, but Ping() succeeded")
	}
}

func TestRun_NilGuards(t *testing.T) {
	var nilApp *App
	if err := nilApp.Run(); err == nil {
		t.Error("nil app Run() = nil; want error")
	}
	if err := (&App{}).Run(); err == nil {
		t.Error("Run() without config = nil; want error")
	}
	if err := (&App{cfg: &config.Config{}}).Run(); err == nil {
		t.Error("Run() without engine = nil; want error")
	}
}

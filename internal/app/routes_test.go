package app

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type healthBody struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func getHealth(t *testing.T, r *gin.Engine) (int, healthBody) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body healthBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return w.Code, body
}

// --- Health check tests ---

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		closeDB    bool
		cache      Pinger
		wantCode   int
		wantStatus string
		wantDB     string
		wantCache  string
	}{
		{"all ok", false, fakePinger{}, http.StatusOK, "ok", "ok", "ok"},
		{"database down", true, fakePinger{}, http.StatusServiceUnavailable, "degraded", "error", "ok"},
		{"cache down", false, fakePinger{err: errors.New("redis: connection refused")}, http.StatusServiceUnavailable, "degraded", "ok", "error"},
		{"no cache", false, nil, http.StatusServiceUnavailable, "degraded", "ok", "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestSQLiteDB(t)
			if tt.closeDB {
				sqlDB, _ := db.DB()
				_ = sqlDB.Close()
			}
			r := gin.New()
			r.GET("/health", healthHandler(db, tt.cache))

			code, body := getHealth(t, r)
			if code != tt.wantCode {
				t.Fatalf("status code = %d; want %d", code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q; want %q", body.Status, tt.wantStatus)
			}
			if body.Components["database"] != tt.wantDB {
				t.Errorf("database = %q; want %q", body.Components["database"], tt.wantDB)
			}
			if body.Components["cache"] != tt.wantCache {
				t.Errorf("cache = %q; want %q", body.Components["cache"], tt.wantCache)
			}
		})
	}
}

func TestHealthHandler_NilDB(t *testing.T) {
	r := gin.New()
	r.GET("/health", healthHandler(nil, fakePinger{}))

	code, body := getHealth(t, r)
	if code != http.StatusServiceUnavailable || body.Components["database"] != "error" {
		t.Errorf("got %d %+v; want 503 with database error", code, body)
	}
}

func TestHealthHandler_UsesRequestContextTimeout(t *testing.T) {
	registerBlockingPingDriver()

	sqlDB, err := sql.Open(blockingPingDriverName, "")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}

	r := gin.New()
	r.GET("/health", healthHandler(db, fakePinger{}))

	reqCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	t.Cleanup(cancel)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil).WithContext(reqCtx)

	start := time.Now()
	r.ServeHTTP(w, req)
	elapsed := time.Since(start)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if elapsed > 300*time.Millisecond {
		t.Fatalf("expected health response to honor request context timeout, elapsed=%v", elapsed)
	}
}

// --- NoRoute handler tests ---

func TestNoRouteHandler_Envelope(t *testing.T) {
	r := gin.New()
	r.NoRoute(noRouteHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Success || body.Error.Code != "NOT_FOUND" || body.Error.Message != "route not found" {
		t.Errorf("unexpected envelope: %s", w.Body.String())
	}
}

// --- RegisterRoutes tests ---

type mockModule struct {
	called bool
}

func (m *mockModule) RegisterRoutes(api *gin.RouterGroup) {
	m.called = true
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
}

func TestRegisterRoutes_Errors(t *testing.T) {
	tests := []struct {
		name string
		r    *gin.Engine
		deps *RouteDeps
		want string
	}{
		{"nil router", nil, &RouteDeps{Modules: []Module{&mockModule{}}}, "router is nil"},
		{"nil deps", gin.New(), nil, "route dependencies are nil"},
		{"no modules", gin.New(), &RouteDeps{}, "at least one module is required"},
		{"nil module entry", gin.New(), &RouteDeps{Modules: []Module{&mockModule{}, nil}}, "module at index 1 is nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RegisterRoutes(tt.r, tt.deps)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("RegisterRoutes() error = %v; want %q", err, tt.want)
			}
		})
	}
}

func TestRegisterRoutes_ModulesMountedUnderAPI(t *testing.T) {
	m := &mockModule{}
	r := gin.New()
	if err := RegisterRoutes(r, &RouteDeps{Modules: []Module{m}, DB: openTestSQLiteDB(t), Cache: fakePinger{}}); err != nil {
		t.Fatalf("RegisterRoutes() error = %v", err)
	}
	if !m.called {
		t.Fatal("module RegisterRoutes was not called")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	if w.Code != http.StatusOK || w.Body.String() != "pong" {
		t.Errorf("GET /api/ping = %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /metrics without gatherer = %d; want 404", w.Code)
	}
}

func TestRegisterRoutes_APIMiddlewareSkipsProbes(t *testing.T) {
	blocked := func(c *gin.Context) { c.AbortWithStatus(http.StatusTeapot) }
	r := gin.New()
	err := RegisterRoutes(r, &RouteDeps{
		Modules:       []Module{&mockModule{}},
		DB:            openTestSQLiteDB(t),
		Cache:         fakePinger{},
		Gatherer:      prometheus.NewRegistry(),
		APIMiddleware: []gin.HandlerFunc{blocked},
	})
	if err != nil {
		t.Fatalf("RegisterRoutes() error = %v", err)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/ping", http.StatusTeapot},
		{"/health", http.StatusOK},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("GET %s = %d; want %d", tt.path, w.Code, tt.want)
		}
	}
}

// --- helpers ---

func openTestSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	return db
}

const blockingPingDriverName = "advocatedir_blocking_ping"

var registerBlockingPingDriverOnce sync.Once

func registerBlockingPingDriver() {
	registerBlockingPingDriverOnce.Do(func() {
		sql.Register(blockingPingDriverName, blockingPingDriver{})
	})
}

type blockingPingDriver struct{}

func (blockingPingDriver) Open(string) (driver.Conn, error) {
	return blockingPingConn{}, nil
}

type blockingPingConn struct{}

func (blockingPingConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (blockingPingConn) Close() error                        { return nil }
func (blockingPingConn) Begin() (driver.Tx, error)           { return blockingPingTx{}, nil }

func (blockingPingConn) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type blockingPingTx struct{}

func (blockingPingTx) Commit() error   { return nil }
func (blockingPingTx) Rollback() error { return nil }

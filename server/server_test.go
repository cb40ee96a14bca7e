package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/jonwraymond/pipecache/admin"
	"github.com/jonwraymond/pipecache/auth"
	"github.com/jonwraymond/pipecache/config"
	"github.com/jonwraymond/pipecache/reader"
	"github.com/jonwraymond/pipecache/store"
)

const testConfig = `
sources:
  root: ${TEST_SOURCE_ROOT}
stores:
  main:
    directory: ${TEST_STORE_DIR}
databases:
  content:
    dsn: replaced-in-tests
components:
  files:
    type: resource
    resource:
      expires: 60000
  docs:
    type: database
    database: content
    table:
      table: docs
      key_column: id
      blob_column: body
      last_modified_column: updated_at
      content_type: text/markdown
mounts:
  - name: static
    path: /static/
    store: main
    steps:
      - component: files
  - name: live
    path: /live/
    steps:
      - component: files
  - name: docs
    path: /docs/
    store: main
    steps:
      - component: docs
        src: "{id}"
admin:
  enabled: true
  api_keys:
    keys:
      - id: ops
        hash: ${TEST_ADMIN_HASH}
        principal: ops
        roles: [cache-admin]
`

const adminKey = "let-me-in"

type testServer struct {
	*Server
	root string
	mock sqlmock.Sqlmock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()
	t.Setenv("TEST_SOURCE_ROOT", root)
	t.Setenv("TEST_STORE_DIR", t.TempDir())
	t.Setenv("TEST_ADMIN_HASH", auth.HashAPIKey(adminKey))

	cfg, err := config.Parse([]byte(testConfig))
	if err != nil {
		t.Fatal(err)
	}

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
		db.Close()
	})

	s, err := New(context.Background(), cfg, WithDatabase("content", db))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := s.Close(context.Background()); err != nil {
			t.Error(err)
		}
	})
	return &testServer{Server: s, root: root, mock: mock}
}

func (ts *testServer) write(t *testing.T, name, body string) {
	t.Helper()
	p := filepath.Join(ts.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (ts *testServer) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func adminHeader() http.Header {
	h := http.Header{}
	h.Set("X-API-Key", adminKey)
	return h
}

func storeEntries(t *testing.T, ts *testServer) int {
	t.Helper()
	rec := ts.do(http.MethodGet, "/admin/stores", adminHeader())
	if rec.Code != http.StatusOK {
		t.Fatalf("stores: %d %s", rec.Code, rec.Body)
	}
	var infos []admin.StoreInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].Name != "main" {
		t.Fatalf("stores = %+v", infos)
	}
	return infos[0].Entries
}

func TestServer_MountServesAndStores(t *testing.T) {
	ts := newTestServer(t)
	ts.write(t, "site/index.html", "<h1>home</h1>")

	for i := 0; i < 2; i++ {
		rec := ts.do(http.MethodGet, "/static/site/index.html", nil)
		if rec.Code != http.StatusOK || rec.Body.String() != "<h1>home</h1>" {
			t.Fatalf("request %d: %d %q", i, rec.Code, rec.Body)
		}
		if rec.Header().Get("Last-Modified") == "" || rec.Header().Get("Expires") == "" {
			t.Errorf("request %d headers = %v", i, rec.Header())
		}
	}
	if n := storeEntries(t, ts); n != 1 {
		t.Fatalf("entries = %d, want 1", n)
	}

	stats := ts.Latency().All()
	if len(stats) == 0 {
		t.Fatal("no latency recorded")
	}
}

func TestServer_UncachedMount(t *testing.T) {
	ts := newTestServer(t)
	ts.write(t, "a.txt", "v1")

	if rec := ts.do(http.MethodGet, "/live/a.txt", nil); rec.Body.String() != "v1" {
		t.Fatalf("body = %q", rec.Body)
	}
	if n := storeEntries(t, ts); n != 0 {
		t.Fatalf("entries = %d, want 0", n)
	}
}

func TestServer_Errors(t *testing.T) {
	ts := newTestServer(t)
	ts.write(t, "a.txt", "0123456789")

	tests := []struct {
		name   string
		method string
		target string
		header http.Header
		code   int
	}{
		{"missing", http.MethodGet, "/static/nope.txt", nil, http.StatusNotFound},
		{"scheme in path", http.MethodGet, "/static/s3:bucket/key", nil, http.StatusNotFound},
		{"method", http.MethodPost, "/static/a.txt", nil, http.StatusMethodNotAllowed},
		{"range", http.MethodGet, "/static/a.txt", http.Header{"Range": {"bytes=50-"}}, http.StatusRequestedRangeNotSatisfiable},
		{"unmounted", http.MethodGet, "/elsewhere", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.method, tt.target, tt.header)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d (%q)", rec.Code, tt.code, rec.Body)
			}
		})
	}

	rec := ts.do(http.MethodGet, "/static/a.txt", http.Header{"Range": {"bytes=50-"}})
	if rec.Header().Get("Content-Range") != "bytes */10" {
		t.Errorf("Content-Range = %q", rec.Header().Get("Content-Range"))
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
}

func TestServer_DatabaseMount(t *testing.T) {
	ts := newTestServer(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	blob := "SELECT body FROM docs WHERE id = ?"
	stamp := "SELECT updated_at FROM docs WHERE id = ?"

	ts.mock.ExpectQuery(stamp).WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(at))
	ts.mock.ExpectQuery(blob).WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow([]byte("# seven")))
	rec := ts.do(http.MethodGet, "/docs/ignored?id=7", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "# seven" {
		t.Fatalf("first: %d %q", rec.Code, rec.Body)
	}

	ts.mock.ExpectQuery(stamp).WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(at))
	rec = ts.do(http.MethodGet, "/docs/ignored?id=7", nil)
	if rec.Body.String() != "# seven" || rec.Header().Get("Content-Type") != "text/markdown" {
		t.Fatalf("second: %q %v", rec.Body, rec.Header())
	}
}

func TestServer_PathBeatsQuery(t *testing.T) {
	ts := newTestServer(t)
	ts.write(t, "real.txt", "real")
	ts.write(t, "fake.txt", "fake")

	if rec := ts.do(http.MethodGet, "/live/real.txt?path=fake.txt", nil); rec.Body.String() != "real" {
		t.Fatalf("body = %q", rec.Body)
	}
}

func TestServer_AdminRequiresCredentials(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(http.MethodGet, "/admin/stores", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous code = %d", rec.Code)
	}
	h := http.Header{}
	h.Set("X-API-Key", "wrong")
	if rec := ts.do(http.MethodGet, "/admin/stores", h); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key code = %d", rec.Code)
	}

	ts.write(t, "a.txt", "a")
	ts.do(http.MethodGet, "/static/a.txt", nil)
	if rec := ts.do(http.MethodPost, "/admin/stores/main/clear", adminHeader()); rec.Code != http.StatusNoContent {
		t.Fatalf("clear code = %d", rec.Code)
	}
	if n := storeEntries(t, ts); n != 0 {
		t.Fatalf("entries after clear = %d", n)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("readyz = %d %q", rec.Code, rec.Body)
	}
	names := ts.Health().CheckerNames()
	if len(names) != 2 || names[0] != "store.main" || names[1] != "database.content" {
		t.Errorf("checkers = %v", names)
	}

	rec := ts.do(http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("metrics = %d", rec.Code)
	}
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t)
	ts.write(t, "a.txt", "over the wire")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/static/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "over the wire" {
		t.Fatalf("body = %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestNew_ReleasesOnError(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Stores: map[string]store.Config{"main": {Directory: dir, Exclusive: true}},
		Components: map[string]config.ComponentConfig{
			"bad": {Type: config.TypeDatabase, Database: "content", Table: reader.DatabaseConfig{Table: "x;"}},
		},
		Databases: map[string]config.DatabaseConfig{"content": {DSN: "unused"}},
		Mounts:    []config.MountConfig{{Name: "m", Path: "/", Store: "main", Steps: []config.StepConfig{{Component: "bad"}}}},
	}
	cfg.ApplyDefaults()

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := New(context.Background(), cfg, WithDatabase("content", db)); err == nil {
		t.Fatal("invalid table accepted")
	}
	// The exclusive lock was released, so the region opens again.
	s, err := store.New(store.Config{Directory: dir, Exclusive: true})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
}

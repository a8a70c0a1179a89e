package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webvnc/internal/config"
)

func newTestWeb(t *testing.T, mutate func(*config.ServerConfig)) *httptest.Server {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>webvnc</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"), []byte("console.log(1)"), 0o644))

	cfg := config.Default().Server
	cfg.WebRoot = root
	if mutate != nil {
		mutate(&cfg)
	}
	srv := httptest.NewServer(NewWeb(cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestWebServesStaticFiles(t *testing.T) {
	srv := newTestWeb(t, nil)

	resp, body := get(t, srv.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "webvnc")
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, body = get(t, srv.URL+"/app.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "console.log(1)", body)

	resp, _ = get(t, srv.URL+"/missing.css")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebHealth(t *testing.T) {
	srv := newTestWeb(t, func(c *config.ServerConfig) { c.HealthPath = "/status" })
	resp, body := get(t, srv.URL+"/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)
}

func TestWebPreflight(t *testing.T) {
	srv := newTestWeb(t, nil)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/index.html", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "GET")
}

func TestWebHeadersAreConfigurable(t *testing.T) {
	srv := newTestWeb(t, func(c *config.ServerConfig) {
		c.CORSOrigin = ""
		c.CacheControl = "no-store"
	})
	resp, _ := get(t, srv.URL+"/app.js")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestWebRunReturnsListenError(t *testing.T) {
	cfg := config.Default().Server
	cfg.HTTPListen = "bad-address"
	err := NewWeb(cfg).Run(context.Background())
	assert.Error(t, err)
}

func TestWebRunShutsDownOnCancel(t *testing.T) {
	cfg := config.Default().Server
	cfg.HTTPListen = "127.0.0.1:0"
	cfg.WebRoot = t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewWeb(cfg).Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("web server did not stop")
	}
}

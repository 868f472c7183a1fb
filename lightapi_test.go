package lightapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/iklobato/lightapi"
	"github.com/iklobato/lightapi/config"
)

func testConfig() *config.Config {
	cfg := config.FromEnv()
	cfg.Database.URL = ""
	cfg.Logging.Level = "error"
	cfg.Resources = []config.ResourceConfig{
		{
			Name:       "person",
			PrimaryKey: "pk",
			Fields: []config.FieldConfig{
				{Name: "pk", Type: "integer"},
				{Name: "name", Type: "text"},
				{Name: "email", Type: "text", Unique: true},
			},
		},
	}
	return cfg
}

func TestApp_ConfiguredResources(t *testing.T) {
	app, err := lightapi.New(testConfig())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/person/", "application/json",
		bytes.NewReader([]byte(`{"name":"Ada","email":"ada@example.com"}`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var rec map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["pk"] != float64(1) {
		t.Errorf("pk = %v", rec["pk"])
	}
}

func TestApp_AuthGate(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.JWTSecret = "test-secret"

	app, err := lightapi.New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	ctx := context.Background()
	if _, err := app.Credentials().Register(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("register user: %v", err)
	}
	token, _, err := app.Credentials().Login(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	resp, err := http.Get(srv.URL + "/person/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without token: status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/person/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get with token: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with token: status = %d, want 200", resp.StatusCode)
	}

	// Health stays reachable without a token.
	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
}

func TestOpenStorage(t *testing.T) {
	t.Run("empty selects memory", func(t *testing.T) {
		store, err := lightapi.OpenStorage("")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		store.Close()
	})
	t.Run("sqlite scheme", func(t *testing.T) {
		store, err := lightapi.OpenStorage("sqlite://" + filepath.Join(t.TempDir(), "app.db"))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		store.Close()
	})
	t.Run("bare path selects sqlite", func(t *testing.T) {
		store, err := lightapi.OpenStorage(filepath.Join(t.TempDir(), "app.db"))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		store.Close()
	})
	t.Run("unknown scheme rejected", func(t *testing.T) {
		if _, err := lightapi.OpenStorage("mysql://localhost/db"); err == nil {
			t.Error("expected error")
		}
	})
}

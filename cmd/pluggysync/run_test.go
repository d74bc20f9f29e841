package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"pluggysync/internal/infrastructure/sqlstore"
)

func TestLoadEnv(t *testing.T) {
	t.Run("Explicit file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.env")
		if err := os.WriteFile(path, []byte("PLUGGYSYNC_TEST_VALUE=from-file\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		os.Unsetenv("PLUGGYSYNC_TEST_VALUE")
		t.Cleanup(func() { os.Unsetenv("PLUGGYSYNC_TEST_VALUE") })

		if err := loadEnv(path); err != nil {
			t.Fatalf("loadEnv() unexpected error: %v", err)
		}
		if got := os.Getenv("PLUGGYSYNC_TEST_VALUE"); got != "from-file" {
			t.Errorf("PLUGGYSYNC_TEST_VALUE = %q, want from-file", got)
		}
	})

	t.Run("Process environment wins", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.env")
		if err := os.WriteFile(path, []byte("PLUGGYSYNC_TEST_VALUE=from-file\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("PLUGGYSYNC_TEST_VALUE", "from-env")

		if err := loadEnv(path); err != nil {
			t.Fatalf("loadEnv() unexpected error: %v", err)
		}
		if got := os.Getenv("PLUGGYSYNC_TEST_VALUE"); got != "from-env" {
			t.Errorf("PLUGGYSYNC_TEST_VALUE = %q, want from-env", got)
		}
	})

	t.Run("Missing explicit file", func(t *testing.T) {
		if err := loadEnv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
			t.Error("loadEnv() expected error for missing file, got nil")
		}
	})

	t.Run("Missing default file", func(t *testing.T) {
		if err := loadEnv(""); err != nil {
			t.Errorf("loadEnv() unexpected error: %v", err)
		}
	})
}

type fakeUpstreams struct {
	pluggy    *httptest.Server
	target    *httptest.Server
	authCalls atomic.Int32
	received  atomic.Value
}

func newFakeUpstreams(t *testing.T, authStatus int) *fakeUpstreams {
	t.Helper()
	f := &fakeUpstreams{}

	r := chi.NewRouter()
	r.Post("/auth", func(w http.ResponseWriter, r *http.Request) {
		f.authCalls.Add(1)
		w.WriteHeader(authStatus)
		if authStatus == http.StatusOK {
			w.Write([]byte(`{"apiKey":"X"}`))
			return
		}
		w.Write([]byte(`{"code":401,"message":"invalid credentials"}`))
	})
	r.Get("/accounts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total":1,"totalPages":1,"page":1,"results":[{"id":"A1","itemId":"item-1","type":"BANK","name":"Checking","balance":10.5}]}`))
	})
	r.Get("/transactions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total":2,"totalPages":1,"page":1,"results":[
			{"id":"T1","accountId":"A1","description":"COFFEE","amount":-4.5},
			{"id":"T2","accountId":"A1","description":"SALARY","amount":1000}
		]}`))
	})
	f.pluggy = httptest.NewServer(r)
	t.Cleanup(f.pluggy.Close)

	target := chi.NewRouter()
	target.Post("/ingest", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.received.Store(body)
		w.WriteHeader(http.StatusAccepted)
	})
	f.target = httptest.NewServer(target)
	t.Cleanup(f.target.Close)

	return f
}

func setupRunEnv(t *testing.T, f *fakeUpstreams) string {
	t.Helper()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "sync.db")

	db, err := sqlstore.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(context.Background(),
		`CREATE TABLE transactions (account_id TEXT, transaction_id TEXT, amount NUMERIC, description TEXT)`); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Setenv("CLIENT_ID", "id")
	t.Setenv("CLIENT_SECRET", "secret")
	t.Setenv("ITEM_ID", "item-1")
	t.Setenv("DATABASE_URL", dsn)
	t.Setenv("TARGET_ENDPOINT", f.target.URL+"/ingest")
	t.Setenv("PLUGGY_BASE_URL", f.pluggy.URL)
	t.Setenv("SYNC_WORKERS", "1")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "error")
	return dsn
}

func TestRunCommand(t *testing.T) {
	f := newFakeUpstreams(t, http.StatusOK)
	dsn := setupRunEnv(t, f)

	rootCmd.SetArgs([]string{"run"})
	if err := Execute(); err != nil {
		t.Fatalf("Execute() unexpected error: %v", err)
	}

	db, err := sqlstore.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM transactions").Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}

	body, _ := f.received.Load().(map[string]any)
	accounts, _ := body["accounts"].([]any)
	if len(accounts) != 1 {
		t.Fatalf("forwarded accounts = %v, want one", body["accounts"])
	}
	txs, _ := accounts[0].(map[string]any)["transactions"].([]any)
	if len(txs) != 2 {
		t.Errorf("forwarded transactions = %d, want 2", len(txs))
	}
}

func TestRunCommand_AuthFailureAborts(t *testing.T) {
	f := newFakeUpstreams(t, http.StatusUnauthorized)
	setupRunEnv(t, f)

	rootCmd.SetArgs([]string{"run"})
	if err := Execute(); err == nil {
		t.Fatal("Execute() expected error, got nil")
	}

	if f.authCalls.Load() != 1 {
		t.Errorf("auth calls = %d, want 1", f.authCalls.Load())
	}
	if f.received.Load() != nil {
		t.Error("data forwarded after authentication failure")
	}
}

func TestRunCommand_MissingConfig(t *testing.T) {
	t.Setenv("CLIENT_ID", "")
	t.Setenv("CLIENT_SECRET", "")
	t.Setenv("ITEM_ID", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TARGET_ENDPOINT", "")

	rootCmd.SetArgs([]string{"run"})
	if err := Execute(); err == nil {
		t.Fatal("Execute() expected configuration error, got nil")
	}
}

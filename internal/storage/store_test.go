package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Fatalf("get: v=%q ok=%v err=%v", v, ok, err)
	}

	if err := SetJSON(ctx, s, "doc", doc{Name: "a", Count: 2}); err != nil {
		t.Fatalf("set json: %v", err)
	}
	got, ok, err := GetJSON[doc](ctx, s, "doc")
	if err != nil || !ok || got.Name != "a" || got.Count != 2 {
		t.Fatalf("get json: %+v ok=%v err=%v", got, ok, err)
	}

	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("remove twice: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("key still present after remove")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(nil))
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "konto.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)

	// Reopening runs migrations again without error and keeps data.
	if err := s.Set(context.Background(), "persist", "yes"); err != nil {
		t.Fatalf("set: %v", err)
	}
	s.Close()
	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if v, ok, err := s2.Get(context.Background(), "persist"); err != nil || !ok || v != "yes" {
		t.Fatalf("value lost across reopen: %q %v %v", v, ok, err)
	}
}

func TestGetJSONDecodeError(t *testing.T) {
	s := NewMemoryStore(map[string]string{"bad": "{not json"})
	_, ok, err := GetJSON[doc](context.Background(), s, "bad")
	if ok || err == nil {
		t.Fatalf("expected decode error")
	}
	var se *Error
	if !errors.As(err, &se) || se.Op != "decode" || se.Key != "bad" {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemoryStore(nil).Set(ctx, "k", "v")
	var se *Error
	if !errors.As(err, &se) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected wrapped cancellation, got %v", err)
	}
}

func TestTransactionKeys(t *testing.T) {
	if ManualTransactionsKey("manual_1") != "manual_transactions_manual_1" {
		t.Fatalf("unexpected manual key")
	}
	if ConnectedTransactionsKey("abc") != "connected_transactions_abc" {
		t.Fatalf("unexpected connected key")
	}
}

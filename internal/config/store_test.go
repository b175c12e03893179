package config

import (
	"errors"
	"testing"
)

func validConfig() Config {
	cfg := Default()
	cfg.Token = "test-token"
	return cfg
}

func TestNewStoreFailsWithoutToken(t *testing.T) {
	if _, err := NewStore(Default()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestReplaceSwapsSnapshotAtomically(t *testing.T) {
	store, err := NewStore(validConfig())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	captured := store.Current()

	next := validConfig()
	next.APIBase = "https://next.example.com"
	if err := store.Replace(next); err != nil {
		t.Fatalf("replace: %v", err)
	}

	// An in-flight call keeps the snapshot it captured before the swap.
	if captured.APIBase != Default().APIBase {
		t.Fatalf("captured snapshot mutated: %q", captured.APIBase)
	}
	if store.Current().APIBase != "https://next.example.com" {
		t.Fatalf("current snapshot not replaced: %q", store.Current().APIBase)
	}
}

func TestFailedReloadKeepsPreviousSnapshot(t *testing.T) {
	store, err := NewStore(validConfig())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	before := store.Current()

	bad := validConfig()
	bad.Token = ""
	if err := store.Replace(bad); err == nil {
		t.Fatal("expected reload rejection for missing token")
	}
	if store.Current() != before {
		t.Fatal("snapshot changed after failed reload")
	}

	bad2 := validConfig()
	bad2.MaxConcurrentUploads = -1
	if err := store.Replace(bad2); err == nil {
		t.Fatal("expected reload rejection for invalid concurrency")
	}
	if store.Current() != before {
		t.Fatal("snapshot changed after failed reload")
	}
}

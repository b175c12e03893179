package config

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrNoToken is reported when no API token can be resolved from any source.
var ErrNoToken = errors.New("no api token resolvable (set token in config or " + TokenEnv + ")")

// Snapshot is an immutable view of the remote-facing settings. Every remote
// call captures one snapshot at call start and uses it for the whole call,
// so a concurrent reload never changes parameters mid-request.
type Snapshot struct {
	APIBase              string
	QueryBase            string
	Token                string
	RequestTimeout       time.Duration
	MaxConcurrentUploads int
	PollInterval         time.Duration
	MaxWait              time.Duration
}

// Store holds the current Snapshot and supports atomic hot replacement.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore validates the initial configuration and builds the store.
// It fails when no credential is resolvable; the service must not start
// without one.
func NewStore(cfg Config) (*Store, error) {
	snap, err := buildSnapshot(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{}
	s.current.Store(snap)
	return s, nil
}

// Current returns the latest committed snapshot. It never blocks.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Replace swaps in a snapshot built from cfg. On validation failure the
// previous snapshot stays in place and the error is returned, so a bad
// reload never degrades live traffic.
func (s *Store) Replace(cfg Config) error {
	snap, err := buildSnapshot(cfg)
	if err != nil {
		return fmt.Errorf("reload rejected: %w", err)
	}
	s.current.Store(snap)
	return nil
}

func buildSnapshot(cfg Config) (*Snapshot, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if cfg.Token == "" {
		return nil, ErrNoToken
	}
	return &Snapshot{
		APIBase:              cfg.APIBase,
		QueryBase:            cfg.QueryBase,
		Token:                cfg.Token,
		RequestTimeout:       time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		MaxConcurrentUploads: cfg.MaxConcurrentUploads,
		PollInterval:         time.Duration(cfg.PollIntervalSeconds) * time.Second,
		MaxWait:              time.Duration(cfg.MaxWaitSeconds) * time.Second,
	}, nil
}

package engine

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/restreviews/restsync/internal/store"
)

// ReplayPolicy decides when a queued entry is removed during replay.
type ReplayPolicy string

const (
	// ReplayConfirmed removes an entry only after the server accepted it.
	// Entries that fail again stay queued for the next drain.
	ReplayConfirmed ReplayPolicy = "confirmed"

	// ReplayLossy removes an entry before it is sent. An entry whose replay
	// fails is lost.
	ReplayLossy ReplayPolicy = "lossy"
)

// ParseReplayPolicy parses a policy name. Empty means ReplayConfirmed.
func ParseReplayPolicy(s string) (ReplayPolicy, error) {
	switch ReplayPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ReplayConfirmed:
		return ReplayConfirmed, nil
	case ReplayLossy:
		return ReplayLossy, nil
	default:
		return "", fmt.Errorf("unknown replay policy %q (want %q or %q)", s, ReplayConfirmed, ReplayLossy)
	}
}

// Config holds engine settings.
type Config struct {
	ReplayPolicy ReplayPolicy

	// CoalesceFavorites keeps only the latest pending toggle per restaurant.
	CoalesceFavorites bool

	// RefreshConcurrency bounds concurrent review refreshes in UpdateDB.
	RefreshConcurrency int

	Logger   *log.Logger
	Notifier Notifier
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		ReplayPolicy:       ReplayConfirmed,
		CoalesceFavorites:  true,
		RefreshConcurrency: 4,
	}
}

// Engine coordinates the local store and the remote API.
type Engine struct {
	remote Remote
	local  LocalStore
	cfg    Config

	logger   *log.Logger
	notifier Notifier

	// One drain at a time per queue.
	reviewMu   sync.Mutex
	favoriteMu sync.Mutex

	bg sync.WaitGroup
}

// New creates an engine. local may be nil, in which case the engine runs in
// network-only mode.
func New(remote Remote, local LocalStore, cfg Config) (*Engine, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote client is required")
	}
	if s, ok := local.(*store.Store); ok && s == nil {
		local = nil
	}

	policy, err := ParseReplayPolicy(string(cfg.ReplayPolicy))
	if err != nil {
		return nil, err
	}
	cfg.ReplayPolicy = policy
	if cfg.RefreshConcurrency <= 0 {
		cfg.RefreshConcurrency = DefaultConfig().RefreshConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}

	e := &Engine{
		remote:   remote,
		local:    local,
		cfg:      cfg,
		logger:   logger,
		notifier: cfg.Notifier,
	}
	if local == nil {
		e.logger.Printf("Warning: no local store, running network-only")
	}
	return e, nil
}

// StoreAvailable reports whether the engine has a local store.
func (e *Engine) StoreAvailable() bool {
	return e.local != nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Wait blocks until background refreshes started by RefreshInBackground
// have finished. Call it before closing the store.
func (e *Engine) Wait() {
	e.bg.Wait()
}

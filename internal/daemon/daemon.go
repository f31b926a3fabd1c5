// Package daemon runs the long-lived sync process.
//
// The daemon:
//  1. Refreshes the local store from the API on startup
//  2. Replays both write queues whenever connectivity comes back
//  3. Optionally re-runs the store refresh on an interval while online
//  4. Serves the live event feed and applies connectivity reports from it
//  5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/restreviews/restsync/internal/config"
	"github.com/restreviews/restsync/internal/connectivity"
	"github.com/restreviews/restsync/internal/engine"
	"github.com/restreviews/restsync/internal/events"
	"github.com/restreviews/restsync/internal/logging"
	"github.com/restreviews/restsync/internal/remote"
)

// Config holds configuration for the daemon.
type Config struct {
	Engine engine.Config

	// ConnectivityFile is a status file holding "online" or "offline".
	// Empty disables the file watch; the state then only changes through
	// the event feed.
	ConnectivityFile string

	// InitialState is assumed until the first report arrives.
	InitialState connectivity.State

	// EventsEnabled starts the WebSocket feed on EventsHost:EventsPort.
	EventsEnabled bool
	EventsHost    string
	EventsPort    int

	// RefreshInterval re-runs the full store refresh while online.
	// Zero refreshes only on startup.
	RefreshInterval time.Duration

	// Logs supplies component loggers. Nil logs to stderr.
	Logs *logging.Factory
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine:        engine.DefaultConfig(),
		InitialState:  connectivity.Online,
		EventsEnabled: true,
		EventsPort:    events.DefaultConfig().Port,
	}
}

// FromConfig builds a daemon Config from the loaded configuration.
func FromConfig(cfg config.Config, logs *logging.Factory) *Config {
	c := DefaultConfig()
	c.Engine = cfg.EngineConfig()
	c.ConnectivityFile = cfg.Daemon.ConnectivityFile
	c.EventsPort = cfg.Daemon.Port
	c.Logs = logs
	return c
}

// Daemon wires the sync engine to connectivity and the event feed.
type Daemon struct {
	config *Config
	remote *remote.Client

	engine  *engine.Engine
	signal  *connectivity.Signal
	watcher *connectivity.Watcher
	events  *events.Server
	logger  *log.Logger

	// Restaurant whose reviews are refreshed after a replay.
	current atomic.Int64

	ready    chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon. local may be nil to run network-only. Use Start to
// begin syncing.
func New(client *remote.Client, local engine.LocalStore, config *Config) (*Daemon, error) {
	if client == nil {
		return nil, fmt.Errorf("remote client cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}

	d := &Daemon{
		config: config,
		remote: client,
		signal: connectivity.NewSignal(config.InitialState),
		logger: newLogger(config.Logs, "[daemon] "),
		ready:  make(chan struct{}),
	}

	if config.EventsEnabled {
		d.events = events.NewServer(&events.Config{
			Port:   config.EventsPort,
			Host:   config.EventsHost,
			Signal: d.signal,
			Stats:  func(ctx context.Context) (engine.QueueStats, error) { return d.engine.QueueStats(ctx) },
			Logger: newLogger(config.Logs, "[events] "),
		})
	}

	ec := config.Engine
	if ec.Logger == nil {
		ec.Logger = newLogger(config.Logs, "[engine] ")
	}
	if ec.Notifier == nil && d.events != nil {
		ec.Notifier = d.events
	}
	eng, err := engine.New(client, local, ec)
	if err != nil {
		return nil, err
	}
	d.engine = eng

	if config.ConnectivityFile != "" {
		w, err := connectivity.NewWatcher(config.ConnectivityFile, d.signal, newLogger(config.Logs, "[connectivity] "))
		if err != nil {
			return nil, err
		}
		d.watcher = w
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

func newLogger(f *logging.Factory, prefix string) *log.Logger {
	if f == nil {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return f.New(prefix)
}

// Engine returns the daemon's sync engine.
func (d *Daemon) Engine() *engine.Engine {
	return d.engine
}

// Signal returns the connectivity signal the daemon reacts to.
func (d *Daemon) Signal() *connectivity.Signal {
	return d.signal
}

// Ready is closed once Start has brought every component up.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// EventsAddr returns the event feed address, or "" when the feed is off.
// The listening address is known once Ready is closed.
func (d *Daemon) EventsAddr() string {
	if d.events == nil {
		return ""
	}
	return d.events.Addr()
}

// SetCurrentRestaurant selects the restaurant whose reviews are refreshed
// after each replay. Zero clears it.
func (d *Daemon) SetCurrentRestaurant(id int) {
	d.current.Store(int64(id))
}

// ApplyConfig applies a reloaded configuration. Only the API base URL is
// applied live; other changes take effect on restart.
func (d *Daemon) ApplyConfig(cfg config.Config) {
	if cfg.API.BaseURL != "" && cfg.API.BaseURL != d.remote.BaseURL() {
		d.remote.SetBaseURL(cfg.API.BaseURL)
		d.logger.Printf("API base URL is now %s", d.remote.BaseURL())
	}
	if cfg.EngineConfig() != withoutHooks(d.engine.Config()) {
		d.logger.Printf("Sync settings changed; restart the daemon to apply them")
	}
}

func withoutHooks(c engine.Config) engine.Config {
	c.Logger = nil
	c.Notifier = nil
	return c
}

// Start begins the daemon's operation and blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Println("Starting daemon")

	if d.events != nil {
		if err := d.events.Start(); err != nil {
			return fmt.Errorf("failed to start event feed: %w", err)
		}
	}

	// Subscribe before the watcher reads the file so its first report is
	// not missed.
	states, unsubscribe := d.signal.Subscribe()
	d.wg.Add(1)
	go d.followConnectivity(states, unsubscribe)

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			d.cancel()
			d.wg.Wait()
			if d.events != nil {
				_ = d.events.Stop()
			}
			return fmt.Errorf("failed to watch connectivity: %w", err)
		}
	}

	d.wg.Add(1)
	go d.initialRefresh()

	if d.config.RefreshInterval > 0 {
		d.wg.Add(1)
		go d.refreshPeriodically()
	}

	close(d.ready)
	d.logger.Println("Daemon running")

	select {
	case <-ctx.Done():
		d.logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. It is safe to call more than once.
func (d *Daemon) Stop() error {
	var firstErr error
	d.stopOnce.Do(func() {
		d.logger.Println("Stopping daemon")
		d.cancel()

		if d.watcher != nil {
			if err := d.watcher.Stop(); err != nil {
				d.logger.Printf("Error stopping watcher: %v", err)
			}
		}
		if d.events != nil {
			if err := d.events.Stop(); err != nil {
				firstErr = err
			}
		}

		d.wg.Wait()
		d.engine.Wait()
		d.logger.Println("Daemon stopped")
	})
	return firstErr
}

// followConnectivity replays the queues on startup when online and on every
// offline to online transition.
func (d *Daemon) followConnectivity(states <-chan connectivity.State, unsubscribe func()) {
	defer d.wg.Done()
	defer unsubscribe()

	if d.signal.Online() {
		d.replay()
	}

	for {
		select {
		case <-d.ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			d.logger.Printf("Connectivity: %s", state)
			if state == connectivity.Online {
				d.replay()
			}
		}
	}
}

func (d *Daemon) replay() {
	res := d.engine.HandleOnline(d.ctx, int(d.current.Load()))
	if res.Reviews.Err != nil {
		d.logger.Printf("Review replay failed: %v", res.Reviews.Err)
	}
	if res.Favorites.Err != nil {
		d.logger.Printf("Favorite replay failed: %v", res.Favorites.Err)
	}
}

func (d *Daemon) initialRefresh() {
	defer d.wg.Done()

	if err := <-d.engine.RefreshInBackground(d.ctx); err != nil {
		d.logger.Printf("Startup refresh incomplete, serving cached data")
	}
}

func (d *Daemon) refreshPeriodically() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if !d.signal.Online() {
				continue
			}
			if err := d.engine.UpdateDB(d.ctx); err != nil {
				d.logger.Printf("Error refreshing store: %v", err)
			}
		}
	}
}

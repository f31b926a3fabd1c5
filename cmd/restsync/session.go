package main

import (
	"github.com/restreviews/restsync/internal/engine"
	"github.com/restreviews/restsync/internal/remote"
	"github.com/restreviews/restsync/internal/store"
)

// session holds the components one command runs against.
type session struct {
	store  *store.Store
	client *remote.Client
	engine *engine.Engine
}

// openSession opens the store and builds the engine. A store that cannot be
// opened is logged and the session runs network-only.
func openSession(notifier engine.Notifier) (*session, error) {
	s := &session{
		client: remote.New(cfg.API.BaseURL, remote.Options{
			Timeout: cfg.API.Timeout,
			Logger:  logs.New("[remote] "),
		}),
	}

	if !store.Disabled(cfg.Store.Path) {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			logs.New("[store] ").Printf("Warning: %v", err)
		} else {
			st.SetLogger(logs.New("[store] "))
			s.store = st
		}
	}

	ec := cfg.EngineConfig()
	ec.Logger = logs.New("[engine] ")
	ec.Notifier = notifier

	// Pass a nil interface rather than a typed nil store.
	var local engine.LocalStore
	if s.store != nil {
		local = s.store
	}
	var err error
	s.engine, err = engine.New(s.client, local, ec)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close waits for background work and closes the store.
func (s *session) Close() error {
	if s.engine != nil {
		s.engine.Wait()
	}
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

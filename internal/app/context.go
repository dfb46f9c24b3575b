package app

import (
	"context"

	"github.com/datallboy/newsflow/internal/engine"
	"github.com/datallboy/newsflow/internal/infra/config"
	"github.com/datallboy/newsflow/internal/infra/logger"
	"github.com/datallboy/newsflow/internal/job"
	"github.com/datallboy/newsflow/internal/nntp"
	"github.com/datallboy/newsflow/internal/store"
)

// HistoryStore keeps slots that left the queue.
type HistoryStore interface {
	SaveRecord(ctx context.Context, r store.Record) error
	GetRecord(ctx context.Context, sid string) (store.Record, error)
	ListRecords(ctx context.Context, limit int) ([]store.Record, error)
	Close() error
}

// Context hold the core environment and shared resources for newsflow.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Engine  *engine.Engine
	History HistoryStore
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}

// EngineOptions derives engine options from the download config. Slots that
// reach history are persisted when a store is attached.
func (a *Context) EngineOptions() engine.Options {
	d := a.Config.Download
	return engine.Options{
		PollInterval:   d.PollInterval,
		CommandTimeout: d.CommandTimeout,
		SwitchInterval: d.SwitchRate,
		Transport: func() nntp.Transport {
			t := nntp.NewTCPTransport()
			if d.ReadTimeout > 0 {
				t.ReadTimeout = d.ReadTimeout
			}
			return t
		},
		Logger:    a.Logger,
		OnHistory: a.recordHistory,
	}
}

// JobOptions are the defaults for slots queued by the CLI and the API.
func (a *Context) JobOptions() job.Options {
	return job.Options{
		Decode: a.Config.Download.Decode,
		OutDir: a.Config.Download.OutDir,
	}
}

// StartEngine creates the engine and registers every configured server.
func (a *Context) StartEngine(ctx context.Context) error {
	a.Engine = engine.New(ctx, a.EngineOptions())
	for _, srv := range a.Config.ServerConfigs() {
		if _, err := a.Engine.AddServer(srv); err != nil {
			return err
		}
	}
	return nil
}

func (a *Context) recordHistory(s *job.Slot) {
	if a.History == nil {
		return
	}
	if err := a.History.SaveRecord(context.Background(), store.FromSlot(s)); err != nil {
		a.Logger.Error("Failed to record history for %s: %v", s.Name, err)
	}
}

// Close shuts the engine down and releases the store.
func (a *Context) Close() error {
	if a.Engine != nil {
		a.Engine.Close()
	}
	if a.History != nil {
		return a.History.Close()
	}
	return nil
}

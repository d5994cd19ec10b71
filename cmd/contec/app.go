package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/contec/internal/auth"
	"github.com/kalambet/contec/internal/config"
	"github.com/kalambet/contec/internal/conversation"
	"github.com/kalambet/contec/internal/knowledge"
	"github.com/kalambet/contec/internal/matcher"
	"github.com/kalambet/contec/internal/storage"
	"github.com/kalambet/contec/internal/training"
)

// app is everything a command needs to run conversations.
type app struct {
	cfg        config.Config
	store      knowledge.Store
	controller *conversation.Controller
	gate       *auth.Gate
	closer     io.Closer
}

func (a *app) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// loadConfig is swapped in tests.
var loadConfig = config.Load

func setupLogging(cfg config.Config) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openStore returns the configured knowledge store and, for SQLite, the
// database to close.
func openStore(cfg config.Config) (knowledge.Store, io.Closer, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		db, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening storage: %w", err)
		}
		return db, db, nil
	default:
		return knowledge.NewFileStore(cfg.Storage.KnowledgePath()), nil, nil
	}
}

func newApp(cfg config.Config) (*app, error) {
	m, err := matcher.New(cfg.Matcher.Cutoff)
	if err != nil {
		return nil, err
	}
	store, closer, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	wf := training.New(store, cfg.Storage.SaveTimeoutDuration())
	return &app{
		cfg:        cfg,
		store:      store,
		controller: conversation.New(store, m, wf),
		gate:       auth.NewGate(cfg.Trainer.Password),
		closer:     closer,
	}, nil
}

func loadApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	return newApp(cfg)
}

package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"
	"github.com/zulandar/docchat/internal/backend"
	"github.com/zulandar/docchat/internal/config"
	"github.com/zulandar/docchat/internal/kvstore"
	"github.com/zulandar/docchat/internal/logger"
	"github.com/zulandar/docchat/internal/persist"
	"github.com/zulandar/docchat/internal/selection"
	"github.com/zulandar/docchat/internal/session"
	"go.uber.org/zap"
)

const defaultConfigPath = "docchat.yaml"

// app bundles what most commands need: config, logger, state store and the
// backend client.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	store  kvstore.Store
	client *backend.Client
}

func addConfigFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", defaultConfigPath, "path to docchat config file")
}

// loadConfig reads configPath. A missing default config file is not an
// error: the built-in defaults are used instead.
func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if configPath == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

func openApp(cmd *cobra.Command, configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	store, err := kvstore.Open(cfg.Store)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("open state store: %w", err)
	}
	client, err := backend.New(backend.Opts{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
		Logger:  log,
	})
	if err != nil {
		store.Close()
		log.Sync()
		return nil, err
	}
	return &app{cfg: cfg, log: log, store: store, client: client}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("close state store", zap.Error(err))
	}
	a.log.Sync()
}

func (a *app) selector() (*selection.Selector, error) {
	return selection.New(selection.Opts{
		Fetcher: a.client,
		Store:   a.store,
		Key:     a.cfg.Chat.SelectionKey,
		Logger:  a.log,
	})
}

func (a *app) session(documentIDs []string) (*session.Session, error) {
	return session.New(session.Opts{
		Backend:           a.client,
		Store:             a.store,
		Logger:            a.log,
		DocumentIDs:       documentIDs,
		StreamIdleTimeout: a.cfg.Chat.IdleTimeout(),
		ConversationKey:   a.cfg.Chat.ConversationKey,
	})
}

// conversationID returns the cached conversation id without contacting the
// backend.
func (a *app) conversationID() string {
	return persist.New(a.store, a.cfg.Chat.ConversationKey, "", a.log).Get()
}

// Command broker runs the PCoIP connection broker: it loads configuration,
// builds the configured mapper and the shared agent client, wires the
// session store and HTTP server, and shuts down gracefully on SIGINT or
// SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pcoip-broker/broker/internal/broker/agentclient"
	"github.com/pcoip-broker/broker/internal/broker/mapper"
	"github.com/pcoip-broker/broker/internal/broker/session"
	"github.com/pcoip-broker/broker/internal/broker/session/sqlitestore"
	"github.com/pcoip-broker/broker/internal/config"
	"github.com/pcoip-broker/broker/internal/logging"
	"github.com/pcoip-broker/broker/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init("", "")
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	agentClient := agentclient.New(agentclient.Config{
		Port:               cfg.AgentPort,
		Timeout:            cfg.AgentTimeout,
		InsecureSkipVerify: cfg.AgentTLSSkipVerify,
	})

	m, err := buildMapper(cfg, agentClient)
	if err != nil {
		slog.Error("failed to build mapper", "error", err)
		os.Exit(1)
	}
	slog.Info("configured mapper", "name", m.Name())

	kv, closeKV, err := buildSessionKV(cfg)
	if err != nil {
		slog.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	defer closeKV()

	srv := server.New(cfg, m, agentClient, kv)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		slog.Error("broker server error", "error", err)
		os.Exit(1)
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		slog.Error("error during shutdown", "error", err)
	}
}

// buildMapper constructs the Mapper selected by MAPPER plus its own
// settings block. New mapper kinds register here.
func buildMapper(cfg *config.Config, agentClient agentclient.Allocator) (mapper.Mapper, error) {
	switch cfg.Mapper {
	case config.MapperSimple:
		return mapper.NewSimple(mapper.SimpleConfig{
			Username:     cfg.SimpleUsername,
			PasswordHash: cfg.SimplePasswordHash,
			Resources:    mapper.ParseSimpleResources(cfg.SimpleResources),
			Client:       agentClient,
		}), nil
	case config.MapperWebservice:
		return mapper.NewWebservice(mapper.WebserviceConfig{
			BaseURL: cfg.WebserviceBaseURL,
			Timeout: cfg.WebserviceTimeout,
			Client:  agentClient,
		}), nil
	default:
		return nil, errUnknownMapperKind(cfg.Mapper)
	}
}

func buildSessionKV(cfg *config.Config) (session.KV, func(), error) {
	switch cfg.SessionBackend {
	case "sqlite":
		store, err := sqlitestore.Open(cfg.SessionDBPath, cfg.SessionTTL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return session.NewMemoryTTL(cfg.SessionTTL), func() {}, nil
	}
}

type errUnknownMapperKind config.MapperKind

func (e errUnknownMapperKind) Error() string {
	return "unknown mapper kind: " + string(e)
}

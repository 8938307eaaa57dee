package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/openoffers/marketd/params"
	"github.com/openoffers/marketd/pkg/api"
	"github.com/openoffers/marketd/pkg/metrics"
	"github.com/openoffers/marketd/pkg/reconcile"
	"github.com/openoffers/marketd/pkg/storage"
	"github.com/openoffers/marketd/pkg/token"
	"github.com/openoffers/marketd/pkg/util"
	"github.com/openoffers/marketd/pkg/watch"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, err := util.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.LogFile)

	// ---- Persistence ----
	store, err := storage.NewPebbleStore(cfg.Storage.DBPath)
	if err != nil {
		sugar.Fatalw("open store", "path", cfg.Storage.DBPath, "err", err)
	}
	defer store.Close()

	// ---- Signing keys ----
	// A missing or misdeclared key set is a deployment defect: abort.
	keys, err := token.LoadKeySet(cfg.JWT.KeysFile)
	if err != nil {
		sugar.Fatalw("load signing keys", "file", cfg.JWT.KeysFile, "err", err)
	}
	issuer, err := token.NewIssuer(keys, cfg.JWT.SignKeyID, util.RealClock{})
	if err != nil {
		sugar.Fatalw("build token issuer", "key_id", cfg.JWT.SignKeyID, "err", err)
	}
	sugar.Infow("token issuer ready", "key_id", issuer.KeyID(), "keys", len(keys))

	// ---- Reconciliation ----
	reconciler := reconcile.New(store, store, issuer, metrics.Default(), util.RealClock{}, sugar)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Watcher ----
	// The websocket client doubles as the registration transport; without a
	// configured URL, payments arrive solely through the HTTP callback.
	if cfg.Watcher.WSURL != "" {
		client := watch.NewClient(cfg.Watcher.WSURL, reconciler, sugar)
		defer client.Close()
		registrar := watch.NewRegistrar(store, client, sugar)
		client.SetOnDrop(registrar.Invalidate)

		go func() {
			if err := client.Listen(ctx); err != nil && ctx.Err() == nil {
				sugar.Errorw("watcher stream terminated", "err", err)
			}
		}()
		go func() {
			clock := util.RealClock{}
			for {
				if err := registrar.Refresh(); err != nil {
					sugar.Errorw("watch set refresh failed", "err", err)
				}
				select {
				case <-ctx.Done():
					return
				case <-clock.After(cfg.Watcher.RefreshInterval):
				}
			}
		}()
	} else {
		sugar.Infow("watcher websocket disabled; expecting HTTP payment callbacks")
	}

	// ---- API ----
	server := api.NewServer(store, reconciler, sugar)
	go func() {
		if err := server.Start(cfg.API.ListenAddr); err != nil {
			sugar.Fatalw("api server", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	sugar.Infow("shutting down", "signal", sig.String())
	cancel()
}

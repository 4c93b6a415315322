package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pics-backend/internal/factory"
	"pics-backend/internal/seed"
	"pics-backend/internal/util"
)

func main() {
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := seed.SeedAdmin(seedCtx, f.Identities(), f.Hasher(), cfg.Admin); err != nil {
		cancel()
		util.Fatal("failed to seed admin identity", util.ErrorField(err))
	}
	cancel()

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      f.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Fatal("server failed to start", util.ErrorField(err))
		}
	}()

	util.Info("server started",
		util.String("environment", cfg.Environment),
		util.String("address", server.Addr))

	waitForShutdown(f, server)
}

func waitForShutdown(f *factory.Factory, server *http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("received shutdown signal", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		util.Error("failed to shutdown server gracefully", util.ErrorField(err))
	} else {
		util.Info("server shutdown completed")
	}

	f.Close()
}

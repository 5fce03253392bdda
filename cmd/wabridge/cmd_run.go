// wabridge - WhatsApp bridge to HTTP backend adapter
// License: MIT

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/grabtexts/wabridge/pkg/config"
	"github.com/grabtexts/wabridge/pkg/logger"
	"github.com/grabtexts/wabridge/pkg/pipeline"
	"github.com/grabtexts/wabridge/pkg/queue"
	"github.com/grabtexts/wabridge/pkg/server"
	"github.com/grabtexts/wabridge/pkg/session"
	"github.com/grabtexts/wabridge/pkg/supervisor"
	"github.com/grabtexts/wabridge/pkg/transport"
)

func runCmd() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	sess := session.New()
	tr := transport.NewBridgeClient(cfg)
	q := queue.New(cfg, tr.Send, sess.IsReady)
	fwd := pipeline.NewForwarder(pipeline.NewBackendClient(cfg), q, cfg)
	sup := supervisor.New(cfg, sess, tr, fwd)
	srv := server.New(cfg, sess, q, uuid.NewString)

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting control plane: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The control plane is already answering health checks; only now bring
	// up the transport.
	sup.Start(ctx)

	logger.InfoCF("main", "wabridge running", map[string]interface{}{
		"version": formatVersion(),
		"listen":  cfg.ListenAddr(),
		"backend": cfg.ChatURL(),
		"bridge":  cfg.BridgeURL,
	})

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.InfoC("main", "shutdown signal received")
	case err := <-sup.Fatal():
		logger.ErrorCF("main", "transport initialization failed", map[string]interface{}{
			"error": err.Error(),
		})
		exitCode = 1
	}
	stop()

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	sup.Shutdown(shCtx)
	q.Close()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.WarnCF("main", "control plane shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	logger.InfoC("main", "shutdown complete")
	os.Exit(exitCode)
}

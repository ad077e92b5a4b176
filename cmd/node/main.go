// cmd/node/main.go
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/eldermesh/sectionnet/internal/address"
	"github.com/eldermesh/sectionnet/internal/config"
	"github.com/eldermesh/sectionnet/internal/dispatch"
	"github.com/eldermesh/sectionnet/internal/dysfunction"
	"github.com/eldermesh/sectionnet/internal/metrics"
	"github.com/eldermesh/sectionnet/internal/nodecontrol"
	"github.com/eldermesh/sectionnet/internal/peer"
	"github.com/eldermesh/sectionnet/internal/replication"
	"github.com/eldermesh/sectionnet/internal/section"
	"github.com/eldermesh/sectionnet/internal/wire"
)

const (
	// dysfunctionWindow and dysfunctionThreshold tune how quickly a
	// sustained burst of issues against one peer turns into an offline
	// proposal; spec.md leaves the exact numbers to the implementation.
	dysfunctionWindow    = 10 * time.Minute
	dysfunctionThreshold = 5
	replicationDrainTick = 2 * time.Second
	replicationBatchSize = 64
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("sectionnet node starting...")

	cfgPath := os.Getenv("SECTIONNET_CONFIG_FILE")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load node config")
	}
	if level, err := logrus.ParseLevel(cfg.Node.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	collector := metrics.NewCollector()
	prometheus.MustRegister(collector)

	links := peer.NewLinks(wire.NewQuicDialer(&tls.Config{NextProtos: []string{"sectionnet"}}))
	tree := section.NewTree(nil, nil)
	tracker := dysfunction.NewTracker(dysfunctionWindow, dysfunctionThreshold)
	replQueue := replication.NewQueue()

	// members resolves the node's own section elder set by asking the
	// tree which SAP covers the zero address — a stand-in for a proper
	// "our own SAP" accessor until the node has a real identity to look
	// itself up by.
	members := func() []address.XorName {
		sap, ok := tree.Closest(address.XorName{})
		if !ok {
			return nil
		}
		names := make([]address.XorName, len(sap.Elders))
		for i, e := range sap.Elders {
			names[i] = e.Name
		}
		return names
	}

	// DefaultHandler's ScheduleDkgTimeout case needs the dispatcher's own
	// Cancel and Submit to arm a cancellable timer, so the dispatcher is
	// constructed first with no handler and wired in afterward.
	dispatcher := dispatch.NewDispatcher(256, nil)
	handler := dispatch.DefaultHandler(links, tracker, replQueue, members, func() int64 { return time.Now().Unix() }, dispatcher.Cancel(), dispatcher.Submit)
	dispatcher.SetHandler(handler)

	admin := nodecontrol.NewServer(cfg.Admin.Port, cfg.Admin.ReflectionEnabled,
		nodecontrol.ComponentDispatcher, nodecontrol.ComponentComm, nodecontrol.ComponentReplication, nodecontrol.ComponentSectionTree)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	metricsServer := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}

	errChan := make(chan error, 3)

	go func() {
		logrus.WithField("addr", metricsServer.Addr).Info("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server failed: %w", err)
		}
	}()

	go func() {
		if err := admin.Start(); err != nil {
			errChan <- fmt.Errorf("admin server failed: %w", err)
		}
	}()

	go dispatcher.Run()
	admin.SetServing(nodecontrol.ComponentDispatcher, true)
	admin.SetServing(nodecontrol.ComponentComm, true)
	admin.SetServing(nodecontrol.ComponentSectionTree, true)

	go runReplicationDrainer(dispatcher.Cancel(), replQueue)
	admin.SetServing(nodecontrol.ComponentReplication, true)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logrus.Info("sectionnet node started successfully")

	select {
	case <-ctx.Done():
		logrus.Info("shutdown signal received")
	case err := <-errChan:
		logrus.WithError(err).Error("server error")
	}

	logrus.Info("shutting down...")

	admin.SetServing(nodecontrol.ComponentDispatcher, false)
	admin.SetServing(nodecontrol.ComponentComm, false)
	admin.SetServing(nodecontrol.ComponentReplication, false)
	admin.SetServing(nodecontrol.ComponentSectionTree, false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dispatcher.Stop()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("metrics server shutdown error")
	}
	admin.Stop()

	logrus.Info("sectionnet node stopped")
}

// runReplicationDrainer periodically drains a bounded batch off the
// replication queue, stopping once cancel observes the dispatcher has
// been torn down (spec.md §4.8's cancellation gate, applied here to a
// periodic tick rather than a one-shot DKG timer).
func runReplicationDrainer(cancel *dispatch.Cancel, queue *replication.Queue) {
	ticker := time.NewTicker(replicationDrainTick)
	defer ticker.Stop()
	for {
		select {
		case <-cancel.Changed():
			if cancel.Get() {
				return
			}
		case <-ticker.C:
			if cancel.Get() {
				return
			}
			batch := queue.Drain(replicationBatchSize)
			if len(batch) > 0 {
				logrus.WithField("count", len(batch)).Debug("replication: drained batch")
			}
		}
	}
}

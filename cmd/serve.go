package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/slicesim/slicesim/server"
	"github.com/slicesim/slicesim/sim"
	"github.com/slicesim/slicesim/sim/orchestrator"
	"github.com/slicesim/slicesim/sim/rpc"
	"github.com/slicesim/slicesim/sinks"
	"github.com/slicesim/slicesim/telemetry"
)

var (
	serviceConfigPath string
	listenAddr        string
)

// serveCmd runs the HTTP API in front of one orchestrator
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the simulation HTTP API",
	Run: func(cmd *cobra.Command, args []string) {
		if err := setLogLevel("info"); err != nil {
			logrus.Fatal(err)
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("Failed to load config: %v", err)
		}
		svc, err := LoadServiceConfig(serviceConfigPath)
		if err != nil {
			logrus.Fatalf("Failed to load service config: %v", err)
		}
		if cmd.Flags().Changed("listen") {
			svc.Listen = listenAddr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := serve(ctx, *cfg, svc); err != nil {
			logrus.Fatalf("Server failed: %v", err)
		}
		logrus.Info("Server stopped")
	},
}

// collaborators are the optional external systems a served orchestrator talks to.
type collaborators struct {
	hub     *orchestrator.Hub
	store   orchestrator.RunStore
	pool    *rpc.RemotePool
	closers []io.Closer
}

// connect opens every collaborator enabled in svc. On failure, whatever was
// already opened is closed.
func connect(ctx context.Context, svc ServiceConfig) (*collaborators, error) {
	c := &collaborators{
		hub:   orchestrator.NewHub(svc.Mailbox),
		store: orchestrator.NewMemoryRunStore(),
		pool:  rpc.NewRemotePool(),
	}
	fail := func(err error) (*collaborators, error) {
		if cerr := c.Close(); cerr != nil {
			logrus.Warnf("closing collaborators: %v", cerr)
		}
		return nil, err
	}

	if svc.NATS.URL != "" {
		p, err := sinks.NewNATSPublisher(svc.NATS)
		if err != nil {
			return fail(err)
		}
		c.hub.Subscribe(p)
		c.closers = append(c.closers, p)
	}
	if svc.ClickHouse.Host != "" {
		w, err := sinks.NewClickHouseWriter(ctx, svc.ClickHouse)
		if err != nil {
			return fail(err)
		}
		c.hub.Subscribe(w)
		c.closers = append(c.closers, w)
	}
	if svc.Redis.Address != "" {
		s, err := sinks.NewRedisRunStore(svc.Redis)
		if err != nil {
			return fail(err)
		}
		c.store = s
		c.closers = append(c.closers, s)
	}
	return c, nil
}

func (c *collaborators) options() []orchestrator.Option {
	return []orchestrator.Option{
		orchestrator.WithPublisher(c.hub),
		orchestrator.WithRunStore(c.store),
		orchestrator.WithDispatcherFactory(c.pool.Dispatchers),
	}
}

// Close drains the hub before closing the subscribers it delivers to.
func (c *collaborators) Close() error {
	c.hub.Close()
	errs := []error{c.pool.Close()}
	for _, cl := range c.closers {
		errs = append(errs, cl.Close())
	}
	return errors.Join(errs...)
}

// serve runs the HTTP API until ctx is done, then shuts the server and
// every run down within svc.ShutdownTimeout.
func serve(ctx context.Context, cfg sim.Config, svc ServiceConfig) error {
	shutdownTracing, err := telemetry.Setup(ctx, svc.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), svc.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logrus.Warnf("Failed to flush traces: %v", err)
		}
	}()

	c, err := connect(ctx, svc)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logrus.Warnf("Failed to close collaborators: %v", err)
		}
	}()

	orch, err := orchestrator.New(cfg, c.options()...)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              svc.Listen,
		Handler:           server.New(orch).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Listening on %s", svc.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logrus.Info("Shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), svc.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logrus.Warnf("Server forced to shutdown: %v", err)
	}
	if err := orch.Shutdown(sctx); err != nil {
		logrus.Warnf("Runs did not stop in time: %v", err)
	}
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&serviceConfigPath, "service-config", "", "Service YAML (listen address, NATS, ClickHouse, Redis, OTLP)")
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "HTTP listen address (overrides the service config)")

	rootCmd.AddCommand(serveCmd)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"smartloan/internal/adapters/httpapi"
	"smartloan/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// serveListening is called with the bound address once the listener is open.
var serveListening = func(net.Addr) {}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configuration API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(cmd, opts, func(_ context.Context, a *app) error {
				if addr == "" {
					addr = a.cfg.HTTP.Addr
				}
				return serve(ctx, a, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func serve(ctx context.Context, a *app, addr string) error {
	if !a.cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	routerOpts := []httpapi.Option{httpapi.WithLogger(logging.NewAdapter(a.logger))}
	if a.tracerProvider != nil {
		routerOpts = append(routerOpts, httpapi.WithTracerProvider(a.tracerProvider))
	}
	if a.metricsHandler != nil {
		routerOpts = append(routerOpts, httpapi.WithMetricsHandler(a.metricsHandler))
	}
	srv := &http.Server{
		Handler:           httpapi.NewRouter(a.svc, routerOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	a.logger.Sugar().Infow("serving", "addr", ln.Addr().String(), "catalog", a.svc.Catalog().Name)
	serveListening(ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Sugar().Infow("stopped")
	return nil
}

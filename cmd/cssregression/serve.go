package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/cssregression/cssregression"
)

var (
	serveAddr     string
	serveAllowRun bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run history over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, closeSvc, logger, err := newService(false)
		if err != nil {
			return err
		}
		defer closeSvc()

		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           svc.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errc := make(chan error, 1)
		go func() {
			logger.Info("cssregression: listening", "addr", serveAddr)
			errc <- srv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-cmd.Context().Done():
		}

		logger.Info("cssregression: shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server on stdio",
	Long: `Run an MCP server on stdio exposing run history and, with --allow-run,
reference and test runs. Console output is suppressed so stdout carries
only the protocol.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, closeSvc, _, err := newService(serveAllowRun)
		if err != nil {
			return err
		}
		defer closeSvc()

		srv := mcp.NewServer(&mcp.Implementation{Name: "cssregression", Version: appVersion}, nil)
		svc.RegisterMCP(srv)
		return srv.Run(cmd.Context(), &mcp.StdioTransport{})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8089", "listen address")
	mcpCmd.Flags().BoolVar(&serveAllowRun, "allow-run", true, "expose the cssregression_run tool")
}

// newService opens the history store once and, when withRuns is set, lets
// the service start runs that share it.
func newService(withRuns bool) (*cssregression.Service, func(), *slog.Logger, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, nil, nil, err
	}

	r, err := cssregression.New(cssregression.Options{Config: cfg, Logger: logger})
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		if err := r.Close(); err != nil {
			logger.Warn("cssregression: close", "error", err)
		}
	}

	var run cssregression.RunFunc
	if withRuns {
		// Stdout belongs to the MCP protocol.
		run = cssregression.RunnerFunc(cssregression.Options{
			Config:   cfg,
			Logger:   logger,
			Out:      io.Discard,
			Progress: io.Discard,
			Store:    r.Store(),
		})
	}
	if r.Store() == nil {
		logger.Warn("cssregression: run history disabled", "hint", "set store.path or "+cssregression.EnvStorePath)
	}
	return cssregression.NewService(r.Store(), run, logger), closeFn, logger, nil
}

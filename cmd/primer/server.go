package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/primer/internal/api"
	"github.com/kalambet/primer/internal/assistant"
	"github.com/kalambet/primer/internal/auth"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, runServer)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the assistant and preferences over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, runMCP)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session, backend and preference status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, showStatus)
	},
}

func runServer(ctx context.Context, a *app) error {
	fmt.Fprintf(os.Stderr, "primer version %s\n", version)

	addr := fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + addr + "/health"); err == nil {
		resp.Body.Close()
		printWarning("primer is already serving on port %d", a.cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", a.cfg.Server.Port)
	}

	a.restoreSession(ctx)
	if a.cfg.Server.Token == "" {
		slog.Warn("server.token is not set; the local API accepts unauthenticated requests")
	}

	srv := &http.Server{
		Addr: addr,
		Handler: api.NewAppHandler(api.AppDeps{
			Profile:   a.profile,
			Assistant: a.assistant,
			History:   a.store,
			Metrics:   a.metrics,
			Token:     a.cfg.Server.Token,
		}),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		printStep("primer listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(ctx context.Context, a *app) error {
	a.restoreSession(ctx)
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Profile:   a.profile,
		Assistant: a.assistant,
		Version:   version,
	})
	slog.Info("MCP server started (stdio transport)")
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

// statusReport is filled by concurrent probes; each probe owns its fields.
type statusReport struct {
	session    auth.SessionInfo
	sessionErr error
	health     assistant.Health
	healthErr  error
}

func probeStatus(ctx context.Context, a *app) statusReport {
	var r statusReport
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.session, r.sessionErr = a.profile.Session(gctx)
		return nil
	})
	g.Go(func() error {
		r.health, r.healthErr = a.assistant.Health(gctx)
		return nil
	})
	_ = g.Wait()
	return r
}

func showStatus(ctx context.Context, a *app) error {
	r := probeStatus(ctx, a)

	switch {
	case r.sessionErr != nil:
		printStatus("Session", "unknown (%v)", r.sessionErr)
	case r.session.User != nil:
		printStatus("Session", "signed in as %s", r.session.User.Name())
	default:
		printStatus("Session", "signed out")
	}

	if r.healthErr != nil {
		printStatus("Assistant", "unreachable (%v)", r.healthErr)
	} else {
		printStatus("Assistant", "%s at %s", r.health.Status, a.cfg.Backend.APIURL)
	}

	printStatus("Profile API", "%s", a.cfg.ProfileBaseURL())
	printStatus("Preferences", "%s", a.profile.Summary())
	printStatus("Data dir", "%s", a.cfg.Storage.DataDir)
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/contec/internal/api"
	"github.com/kalambet/contec/internal/config"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		return runServer(addr)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show contec status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default 127.0.0.1:<server.port>)")
}

func runServer(addr string) error {
	fmt.Fprintf(os.Stderr, "contec version %s\n", version)

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	if !a.gate.Configured() {
		slog.Warn("trainer password not configured; training is disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	}
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.Deps{
			Controller: a.controller,
			Gate:       a.gate,
			Store:      a.store,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("contec listening", "addr", addr, "backend", a.cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runMCP() error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Controller: a.controller,
		Gate:       a.gate,
		Store:      a.store,
		Version:    version,
	})
	slog.Info("MCP server started (stdio transport)")
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := newAPIClient(cfg)
	if err := client.health(ctx); err != nil {
		printStatus("Server", "stopped")
	} else {
		printStatus("Server", "running on port %d", cfg.Server.Port)
		if cfg.Trainer.Password != "" {
			if n, err := client.knowledgeCount(ctx); err == nil {
				printStatus("Entries", "%d", n)
			}
		}
	}

	printStatus("Backend", "%s", cfg.Storage.Backend)
	if cfg.Storage.Backend == config.BackendFile {
		printStatus("Knowledge file", "%s", cfg.Storage.KnowledgePath())
	} else {
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
	}
	printStatus("Match cutoff", "%g", cfg.Matcher.Cutoff)
	if cfg.Trainer.Password == "" {
		printStatus("Trainer", "password not configured")
	} else {
		printStatus("Trainer", "password configured")
	}
	return nil
}

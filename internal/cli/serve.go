package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/selfedit/internal/httpapi"
	"github.com/rcliao/selfedit/internal/planner"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent over HTTP",
		Long:  "Start an HTTP server exposing POST /run and read-only log endpoints. Stops cleanly on SIGINT or SIGTERM.",
		Run:   runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default: configured http.addr)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")

	cfg := loadConfig()
	if addr == "" {
		addr = cfg.HTTP.Addr
	}
	logger := newLogger(cfg)
	defer logger.Sync()

	pl, err := planner.NewFromConfig(cfg.Planner)
	if err != nil {
		if errors.Is(err, planner.ErrNotConfigured) {
			fmt.Fprintln(os.Stderr, "error: no planner configured; set planner.provider in the config file or SELFEDIT_PLANNER__PROVIDER")
			os.Exit(1)
		}
		exitErr("configure planner", err)
	}

	mem := openLog(cfg, logger)
	defer mem.Close()

	srv := httpapi.NewServer(buildOrchestrator(cfg, mem, pl, logger), mem, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(addr)
	}()
	logger.Info("serving", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			exitErr("serve", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			exitErr("shutdown", err)
		}
		logger.Info("server stopped")
	}
}

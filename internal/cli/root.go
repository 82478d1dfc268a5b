// Package cli implements the selfedit CLI commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/selfedit/internal/config"
	"github.com/rcliao/selfedit/internal/embedding"
	"github.com/rcliao/selfedit/internal/logging"
	"github.com/rcliao/selfedit/internal/loop"
	"github.com/rcliao/selfedit/internal/memory"
	"github.com/rcliao/selfedit/internal/oracle"
	"github.com/rcliao/selfedit/internal/planner"
	"github.com/rcliao/selfedit/internal/policy"
)

var (
	configPath  string
	dbFlag      string
	workDirFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "selfedit",
	Short: "A self-modifying agent with a safety-gated edit loop",
	Long:  "selfedit proposes one patch at a time against its working tree, gates each patch through a path and size policy, runs the test suite, and commits or reverts. Every step lands in an append-only SQLite log.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML; env vars SELFEDIT_* override)")
	RootCmd.PersistentFlags().StringVarP(&dbFlag, "db", "d", "", "Database path (default: <workdir>/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&workDirFlag, "workdir", "w", "", "Working tree the agent may edit (default: current directory)")
}

// loadConfig builds the effective configuration: file and environment via
// config.Load, then command-line flags on top.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	if workDirFlag != "" {
		abs, err := filepath.Abs(workDirFlag)
		if err != nil {
			exitErr("resolve workdir", err)
		}
		cfg.WorkDir = abs
		cfg.AllowedRoots = []string{abs}
		if dbFlag == "" {
			cfg.DBPath = filepath.Join(abs, "memory.db")
		}
	}
	if dbFlag != "" {
		cfg.DBPath = dbFlag
	}
	return cfg
}

func newLogger(cfg *config.Config) *zap.Logger {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		exitErr("create logger", err)
	}
	return logger
}

// openLog opens the message store with whatever embedding provider the
// configuration names. No provider means recall is disabled, not an error.
func openLog(cfg *config.Config, logger *zap.Logger) *memory.Store {
	emb, err := embedding.NewFromConfig(cfg.Embedding)
	if err != nil {
		exitErr("configure embeddings", err)
	}
	s, err := memory.NewStore(cfg.DBPath, emb, logger)
	if err != nil {
		exitErr("open message store", err)
	}
	return s
}

func buildOrchestrator(cfg *config.Config, mem memory.Log, pl planner.Planner, logger *zap.Logger) *loop.Orchestrator {
	pe, err := policy.NewEngine(cfg)
	if err != nil {
		exitErr("build policy engine", err)
	}
	or := oracle.NewRunner(cfg.TestCommand, cfg.WorkDir, cfg.TestTimeout, logger)
	return loop.New(mem, pl, pe, or, cfg, logger)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

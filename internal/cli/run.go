package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/selfedit/internal/planner"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the self-edit loop for a goal",
		Long:  "Run the propose/check/apply/test loop until the goal is satisfied or the step budget is exhausted, then print the run summary as JSON.",
		Run:   runRun,
	}

	cmd.Flags().StringP("goal", "g", "", "Goal to pursue (required)")
	cmd.Flags().Int("max-steps", 0, "Step budget for this run (default: configured max_steps)")
	_ = cmd.MarkFlagRequired("goal")

	RootCmd.AddCommand(cmd)
}

func runRun(cmd *cobra.Command, args []string) {
	goal, _ := cmd.Flags().GetString("goal")
	maxSteps, _ := cmd.Flags().GetInt("max-steps")

	cfg := loadConfig()
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

	res, err := buildOrchestrator(cfg, mem, pl, logger).Run(cmd.Context(), goal, maxSteps)
	if err != nil {
		exitErr("run", err)
	}

	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}

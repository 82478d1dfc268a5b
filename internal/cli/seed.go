package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/selfedit/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the message log with example entries",
		Long:  "Append a few seed messages to the log. Useful for bootstrapping a fresh database with prior context.",
		Run:   runSeed,
	}

	RootCmd.AddCommand(cmd)
}

func runSeed(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	logger := newLogger(cfg)
	defer logger.Sync()

	s := openLog(cfg, logger)
	defer s.Close()

	seeds := []struct {
		role    model.Role
		content string
	}{
		{model.RoleSystem, "Seed: initial system prompt"},
		{model.RoleUser, "Seed: hello"},
		{model.RoleAssistant, "Seed: world"},
	}
	meta := map[string]any{model.MetaType: model.TypeSeed}

	for _, seed := range seeds {
		if _, err := s.AppendMessage(cmd.Context(), seed.role, seed.content, meta); err != nil {
			exitErr("seed", err)
		}
	}

	fmt.Printf("seeded %d messages into %s\n", len(seeds), cfg.DBPath)
}

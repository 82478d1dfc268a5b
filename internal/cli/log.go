package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Dump the message log as JSON",
		Long:  "Dump messages as newline-delimited JSON in insertion order. Limit to the most recent entries with -n.",
		Run:   runLog,
	}

	cmd.Flags().IntP("limit", "n", 0, "Only print the last N messages (0 = all)")

	RootCmd.AddCommand(cmd)
}

func runLog(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	cfg := loadConfig()
	logger := newLogger(cfg)
	defer logger.Sync()

	s := openLog(cfg, logger)
	defer s.Close()

	messages, err := s.AllMessages(cmd.Context())
	if err != nil {
		exitErr("read messages", err)
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			exitErr("encode message", err)
		}
		fmt.Println(string(b))
	}
}

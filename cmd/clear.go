package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelpost/internal/jobs"
	"reelpost/internal/storage"
	"reelpost/pkg/config"
)

var clearChat int64

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove pending scheduled posts",
	Long:  `Remove every pending scheduled post, or only those of one chat with --chat.`,
	RunE:  runClear,
}

func init() {
	clearCmd.Flags().Int64Var(&clearChat, "chat", 0, "Only clear posts of this chat id")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store := openJobStore(cfg)

	var n int
	if cmd.Flags().Changed("chat") {
		n, err = store.RemoveOwner(clearChat)
	} else {
		n, err = store.Clear()
	}
	if err != nil {
		return err
	}

	fmt.Printf("Cleared %d scheduled post(s)\n", n)
	return nil
}

func openWorkspace(cfg *config.Config) *storage.Workspace {
	return storage.NewWorkspace(cfg.Storage.DataDir, cfg.Storage.TempDir, cfg.Storage.VideosDir)
}

func openJobStore(cfg *config.Config) *jobs.Store {
	return jobs.NewStore(openWorkspace(cfg).DataPath(cfg.Storage.JobsFile))
}

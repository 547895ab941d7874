package cmd

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"reelpost/pkg/config"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage who may use the bot",
	Long: `Edit the allowed user list in the runtime settings file. A running bot
picks up the change without a restart. An empty list allows everyone.`,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show allowed Telegram user ids",
	RunE:  runUsersList,
}

var usersAddCmd = &cobra.Command{
	Use:   "add <user-id>...",
	Short: "Allow Telegram user ids",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUsersEdit(true),
}

var usersRemoveCmd = &cobra.Command{
	Use:   "remove <user-id>...",
	Short: "Revoke Telegram user ids",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUsersEdit(false),
}

func init() {
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersRemoveCmd)
	rootCmd.AddCommand(usersCmd)
}

func openSettings(cmd *cobra.Command) (*config.SettingsStore, error) {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return nil, err
	}
	ws := openWorkspace(cfg)
	if err := ws.EnsureDirectories(); err != nil {
		return nil, err
	}
	return config.OpenSettings(ws.DataPath(cfg.Storage.SettingsFile), config.Settings{
		Watermark:    cfg.Bot.Watermark,
		AllowedUsers: cfg.Bot.AllowedUsers,
	})
}

func runUsersList(cmd *cobra.Command, args []string) error {
	settings, err := openSettings(cmd)
	if err != nil {
		return err
	}

	ids := settings.Get().AllowedUsers
	if len(ids) == 0 {
		fmt.Println(authInfoStyle.Render("No restriction: every Telegram user may use the bot"))
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runUsersEdit(add bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ids, err := parseUserIDs(args)
		if err != nil {
			return err
		}
		settings, err := openSettings(cmd)
		if err != nil {
			return err
		}

		next := editUsers(settings.Get().AllowedUsers, ids, add)
		if err := settings.SetAllowedUsers(next); err != nil {
			return err
		}
		fmt.Println(authSuccessStyle.Render(fmt.Sprintf("✓ %d allowed user(s)", len(next))))
		return nil
	}
}

func parseUserIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func editUsers(cur, ids []int64, add bool) []int64 {
	out := slices.Clone(cur)
	for _, id := range ids {
		i := slices.Index(out, id)
		switch {
		case add && i < 0:
			out = append(out, id)
		case !add && i >= 0:
			out = slices.Delete(out, i, i+1)
		}
	}
	return out
}

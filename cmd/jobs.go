package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"reelpost/internal/jobs"
	"reelpost/pkg/config"
)

var (
	jobsChat int64

	jobIDStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	jobDueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	jobDimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and cancel scheduled posts",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending scheduled posts",
	RunE:  runJobsList,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <chat-id> <job-id>",
	Short: "Cancel one scheduled post",
	Args:  cobra.ExactArgs(2),
	RunE:  runJobsCancel,
}

func init() {
	jobsListCmd.Flags().Int64Var(&jobsChat, "chat", 0, "Only list posts of this chat id")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}
	store := openJobStore(cfg)

	var list []jobs.Job
	if cmd.Flags().Changed("chat") {
		list, err = store.ListByOwner(jobsChat)
	} else {
		list, err = store.List()
	}
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No scheduled posts")
		return nil
	}

	loc := cfg.LoadLocation()
	now := time.Now()
	for _, j := range list {
		when := j.ScheduledAt.In(loc).Format("02.01.2006 15:04")
		if j.Due(now, 0) {
			when = jobDueStyle.Render(when + " (overdue)")
		}
		fmt.Printf("%s  chat %d  %s  %s\n", jobIDStyle.Render(j.ID), j.OwnerChatID, j.Platform.Title(), when)
		fmt.Println(jobDimStyle.Render("  " + j.Caption))
		fmt.Println(jobDimStyle.Render("  " + j.VideoPath))
	}
	fmt.Printf("\n%d scheduled post(s)\n", len(list))
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	chat, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", args[0], err)
	}

	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}

	removed, err := openJobStore(cfg).Remove(chat, args[1])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no scheduled post %s for chat %d", args[1], chat)
	}

	fmt.Printf("Cancelled %s\n", args[1])
	return nil
}

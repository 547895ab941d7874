package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh/spinner"
	"github.com/spf13/cobra"

	"reelpost/internal/app"
	"reelpost/internal/dispatch"
	"reelpost/pkg/config"
)

var (
	publishCaption string
	publishTarget  string
)

var publishCmd = &cobra.Command{
	Use:   "publish <file>",
	Short: "Publish a finished video now",
	Long:  `Upload a video to Instagram, YouTube or both, without going through the bot.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPublish,
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "List videos mirrored to Cloud Storage",
	RunE:  runArchiveList,
}

func init() {
	publishCmd.Flags().StringVarP(&publishCaption, "caption", "c", "", "Post caption")
	publishCmd.Flags().StringVarP(&publishTarget, "target", "t", string(dispatch.TargetBoth), "instagram, youtube or both")
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(archiveCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	target, err := dispatch.ParseTarget(publishTarget)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("video not found: %w", err)
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	service, err := app.BuildService(ctx, cfg, app.BuildOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = service.Close() }()

	var (
		outcome *dispatch.Outcome
		pubErr  error
	)
	title := fmt.Sprintf("Publishing to %s", target.Title())
	if err := spinner.New().
		Title(title).
		Context(ctx).
		Action(func() {
			outcome, pubErr = service.Dispatcher().Dispatch(ctx, dispatch.Request{
				VideoPath: path,
				Caption:   publishCaption,
				Target:    target,
			}, nil)
		}).
		Run(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if outcome != nil {
		for _, r := range outcome.Results {
			fmt.Println(authSuccessStyle.Render(fmt.Sprintf("✓ %s: %s", r.Platform.Title(), r.URL)))
		}
		for _, p := range outcome.Skipped {
			fmt.Println(authInfoStyle.Render(fmt.Sprintf("○ %s: skipped", p.Title())))
		}
	}
	if pubErr != nil {
		fmt.Println(authErrorStyle.Render("✗ " + pubErr.Error()))
		return pubErr
	}
	return nil
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	service, err := app.BuildService(ctx, cfg, app.BuildOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = service.Close() }()

	archive := service.Archive()
	if archive == nil {
		return errors.New("GCS mirroring is disabled (set gcs.enabled and GCS_BUCKET)")
	}

	objects, err := archive.List(ctx)
	if err != nil {
		return err
	}
	for _, o := range objects {
		fmt.Println(o)
	}
	fmt.Printf("\n%d object(s) in gs://%s\n", len(objects), cfg.GCSBucket)
	return nil
}

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"reelpost/internal/distribution/youtube"
	"reelpost/pkg/config"
)

const envFile = ".env"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).MarginBottom(1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// Keys moved to Secret Manager when the operator opts in. Ids stay in .env.
var managedSecrets = []string{
	"TELEGRAM_BOT_TOKEN",
	"YOUTUBE_CLIENT_SECRET",
	"INSTAGRAM_ACCESS_TOKEN",
	"GROQ_API_KEY",
}

var gcpServices = []string{
	"youtube.googleapis.com",
	"storage.googleapis.com",
	"secretmanager.googleapis.com",
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard for Reelpost",
	Long: `Check ffmpeg, create the working directories, and write .env and
config.yaml. Values already in .env are offered as defaults.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

type wizard struct {
	ctx     context.Context
	env     map[string]string
	cfg     *config.Config
	project string
}

func runSetup(cmd *cobra.Command, args []string) error {
	fmt.Println(titleStyle.Render("🎬 Reelpost Setup"))

	w := &wizard{ctx: cmd.Context(), env: map[string]string{}, cfg: config.Defaults()}
	if existing, err := godotenv.Read(envFile); err == nil {
		w.env = existing
		fmt.Println(infoStyle.Render("Using values from the existing .env as defaults"))
	}
	if cfg, err := config.LoadFrom(w.ctx, config.DefaultConfigPath); err == nil {
		w.cfg = cfg
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"ffmpeg", w.checkFFmpeg},
		{"directories", w.createDirectories},
		{"Telegram", w.askTelegram},
		{"Google Cloud", w.askGoogleCloud},
		{"Instagram", w.askInstagram},
		{"Groq", w.askGroq},
		{"Secret Manager", w.offerSecretManager},
		{"config.yaml", w.writeConfig},
		{".env", w.writeEnv},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	printNextSteps(w.cfg)
	return nil
}

func (w *wizard) checkFFmpeg() error {
	if commandExists("ffmpeg") && commandExists("ffprobe") {
		fmt.Println(successStyle.Render("✓ ffmpeg found"))
		return nil
	}

	install, err := confirm("ffmpeg not found", "ffmpeg and ffprobe are required to brand videos. Install them?")
	if err != nil {
		return err
	}
	if !install {
		return errors.New("ffmpeg is required, see https://ffmpeg.org/download.html")
	}

	var args []string
	switch runtime.GOOS {
	case "darwin":
		args = []string{"brew", "install", "ffmpeg"}
	case "linux":
		args = []string{"sudo", "apt-get", "install", "-y", "ffmpeg"}
	default:
		return fmt.Errorf("no installer for %s, install ffmpeg manually", runtime.GOOS)
	}
	return withSpinner("Installing ffmpeg", func() error {
		return runTool(args[0], args[1:]...)
	})
}

func (w *wizard) createDirectories() error {
	s := w.cfg.Storage
	for _, dir := range []string{s.DataDir, s.TempDir, s.VideosDir, w.cfg.Audit.Path, "assets"} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	fmt.Println(successStyle.Render("✓ Created directories"))
	return nil
}

func (w *wizard) askTelegram() error {
	token := w.env["TELEGRAM_BOT_TOKEN"]
	watermark := w.cfg.Bot.Watermark
	var owner string
	if len(w.cfg.Bot.AllowedUsers) > 0 {
		owner = strconv.FormatInt(w.cfg.Bot.AllowedUsers[0], 10)
	}

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram Bot Token").
				Description("Create a bot with @BotFather: https://t.me/BotFather").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(required("Telegram Bot Token")),
			huh.NewInput().
				Title("Your Telegram user id").
				Description("Only this user may use the bot. Leave empty to allow everyone.").
				Value(&owner).
				Validate(optionalInt),
			huh.NewInput().
				Title("Watermark").
				Description("Drawn on every branded video, editable later from the bot").
				Value(&watermark),
		),
	).Run()
	if err != nil {
		return err
	}

	w.env["TELEGRAM_BOT_TOKEN"] = strings.TrimSpace(token)
	w.cfg.Bot.Watermark = strings.TrimSpace(watermark)
	if owner = strings.TrimSpace(owner); owner != "" {
		id, _ := strconv.ParseInt(owner, 10, 64)
		w.cfg.Bot.AllowedUsers = []int64{id}
	}
	return nil
}

func (w *wizard) askGoogleCloud() error {
	ok, err := confirm("Use Google Cloud?", "Needed for YouTube uploads, the GCS mirror and Secret Manager")
	if err != nil || !ok {
		return err
	}
	if !commandExists("gcloud") {
		fmt.Println(warnStyle.Render("gcloud CLI not found, see https://cloud.google.com/sdk/docs/install"))
		return nil
	}

	project, err := w.pickProject()
	if err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("Google Cloud skipped: %v", err)))
		return nil
	}
	w.project = project
	w.env["GOOGLE_CLOUD_PROJECT"] = project

	for _, svc := range gcpServices {
		err := withSpinner("Enabling "+svc, func() error {
			return runTool("gcloud", "services", "enable", svc, "--project", project)
		})
		if err != nil {
			fmt.Println(warnStyle.Render(fmt.Sprintf("Could not enable %s: %v", svc, err)))
		}
	}

	if err := w.askYouTube(); err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("YouTube skipped: %v", err)))
	}
	if err := w.askBucket(); err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("GCS mirror skipped: %v", err)))
	}
	return nil
}

func (w *wizard) pickProject() (string, error) {
	current := w.env["GOOGLE_CLOUD_PROJECT"]
	if current == "" {
		current = gcloudValue("config", "get-value", "project")
	}

	var options []huh.Option[string]
	if current != "" {
		options = append(options, huh.NewOption("Use "+current, current))
	}
	options = append(options,
		huh.NewOption("Create a new project", "+new"),
		huh.NewOption("Type a project id", "+manual"),
	)

	var choice string
	if err := huh.NewSelect[string]().Title("Google Cloud project").Options(options...).Value(&choice).Run(); err != nil {
		return "", err
	}
	if choice != "+new" && choice != "+manual" {
		return choice, nil
	}

	var id string
	err := huh.NewInput().
		Title("Project id").
		Description("6-30 characters: lowercase letters, digits and hyphens").
		Placeholder("reelpost-12345").
		Value(&id).
		Validate(validProjectID).
		Run()
	if err != nil {
		return "", err
	}
	if choice == "+manual" {
		return id, nil
	}

	if err := withSpinner("Creating project "+id, func() error {
		return runTool("gcloud", "projects", "create", id)
	}); err != nil {
		return "", err
	}
	_ = runTool("gcloud", "config", "set", "project", id)
	return id, nil
}

func (w *wizard) askYouTube() error {
	ok, err := confirm("Publish to YouTube Shorts?", "Needs an OAuth client of type Desktop app")
	if err != nil || !ok {
		return err
	}

	fmt.Println(infoStyle.Render(`
Create the OAuth client at https://console.cloud.google.com/apis/credentials
(Create credentials, OAuth client ID, Desktop app) and paste it below.
`))

	clientID := w.env["YOUTUBE_CLIENT_ID"]
	clientSecret := w.env["YOUTUBE_CLIENT_SECRET"]
	authNow := true
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("YouTube Client ID").Value(&clientID),
			huh.NewInput().Title("YouTube Client Secret").EchoMode(huh.EchoModePassword).Value(&clientSecret),
			huh.NewConfirm().Title("Sign in to YouTube now?").Description("Opens the browser").Value(&authNow),
		),
	).Run()
	if err != nil {
		return err
	}

	clientID, clientSecret = strings.TrimSpace(clientID), strings.TrimSpace(clientSecret)
	w.setEnv("YOUTUBE_CLIENT_ID", clientID)
	w.setEnv("YOUTUBE_CLIENT_SECRET", clientSecret)
	if clientID == "" || clientSecret == "" || !authNow {
		return nil
	}

	tokenPath := w.env["YOUTUBE_TOKEN_PATH"]
	if tokenPath == "" {
		tokenPath = config.DefaultTokenPath
	}
	if err := runYouTubeAuth(w.ctx, youtube.NewAuth(clientID, clientSecret, tokenPath)); err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("Sign-in failed: %v", err)))
		fmt.Println(infoStyle.Render("Retry later with: reelpost auth youtube"))
	}
	return nil
}

func (w *wizard) askBucket() error {
	ok, err := confirm("Mirror videos to Cloud Storage?", "Keeps a copy of every branded video in a bucket")
	if err != nil || !ok {
		return err
	}

	bucket := w.env["GCS_BUCKET"]
	if bucket == "" {
		bucket = w.project + "-reels"
	}
	var create bool
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Bucket name").Value(&bucket).Validate(required("Bucket name")),
			huh.NewConfirm().Title("Create the bucket now?").Value(&create),
		),
	).Run()
	if err != nil {
		return err
	}

	bucket = strings.TrimPrefix(strings.TrimSpace(bucket), "gs://")
	if create {
		if err := withSpinner("Creating gs://"+bucket, func() error {
			return runTool("gcloud", "storage", "buckets", "create", "gs://"+bucket, "--project", w.project)
		}); err != nil {
			return err
		}
	}

	w.env["GCS_BUCKET"] = bucket
	w.cfg.GCS.Enabled = true
	return nil
}

func (w *wizard) askInstagram() error {
	ok, err := confirm("Publish to Instagram Reels?", "Needs a professional account linked to a Facebook app")
	if err != nil || !ok {
		return err
	}

	fmt.Println(infoStyle.Render(`
In https://developers.facebook.com/apps add the Instagram product with the
instagram_content_publish permission, then create a long-lived token.
`))

	token := w.env["INSTAGRAM_ACCESS_TOKEN"]
	userID := w.env["INSTAGRAM_USER_ID"]
	shareToFeed := w.cfg.Instagram.ShareToFeed
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Instagram Access Token").EchoMode(huh.EchoModePassword).Value(&token),
			huh.NewInput().Title("Instagram User ID").Value(&userID).Validate(optionalInt),
			huh.NewConfirm().Title("Also show reels in the main feed?").Value(&shareToFeed),
		),
	).Run()
	if err != nil {
		return err
	}

	w.setEnv("INSTAGRAM_ACCESS_TOKEN", strings.TrimSpace(token))
	w.setEnv("INSTAGRAM_USER_ID", strings.TrimSpace(userID))
	w.cfg.Instagram.ShareToFeed = shareToFeed
	return nil
}

func (w *wizard) askGroq() error {
	ok, err := confirm("Suggest YouTube tags with Groq?", "Optional, adds tags and a description line")
	if err != nil || !ok {
		return err
	}

	key := w.env["GROQ_API_KEY"]
	if err := huh.NewInput().
		Title("Groq API key").
		Description("https://console.groq.com/keys").
		EchoMode(huh.EchoModePassword).
		Value(&key).
		Run(); err != nil {
		return err
	}

	w.setEnv("GROQ_API_KEY", strings.TrimSpace(key))
	w.cfg.YouTube.Enhance = w.env["GROQ_API_KEY"] != ""
	return nil
}

// offerSecretManager pushes the tokens to Secret Manager and drops them
// from .env, so config.Load resolves them at startup instead.
func (w *wizard) offerSecretManager() error {
	if w.project == "" {
		return nil
	}
	ok, err := confirm("Keep tokens in Secret Manager?", "Tokens are stored in "+w.project+" instead of .env")
	if err != nil || !ok {
		return err
	}

	sm, err := config.NewSecretManager(w.ctx, w.project)
	if err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("Secret Manager unavailable: %v", err)))
		return nil
	}
	defer func() { _ = sm.Close() }()

	stored := 0
	for _, key := range managedSecrets {
		val := w.env[key]
		if val == "" {
			continue
		}
		if err := sm.Store(w.ctx, config.SecretName(key), val); err != nil {
			fmt.Println(warnStyle.Render(fmt.Sprintf("Kept %s in .env: %v", key, err)))
			continue
		}
		delete(w.env, key)
		stored++
	}

	w.cfg.Secrets.Provider = "secretmanager"
	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Stored %d secret(s) in Secret Manager", stored)))
	return nil
}

func (w *wizard) writeConfig() error {
	if err := config.WriteFile(config.DefaultConfigPath, w.cfg); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ Wrote " + config.DefaultConfigPath))
	return nil
}

func (w *wizard) writeEnv() error {
	out := make(map[string]string, len(w.env))
	for k, v := range w.env {
		if v != "" {
			out[k] = v
		}
	}
	if err := godotenv.Write(out, envFile); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ Wrote " + envFile))
	return nil
}

func (w *wizard) setEnv(key, val string) {
	if val == "" {
		delete(w.env, key)
		return
	}
	w.env[key] = val
}

func printNextSteps(cfg *config.Config) {
	fmt.Println()
	fmt.Println(titleStyle.Render("Next steps:"))
	fmt.Printf("  1. Put the frame image at: %s\n", cfg.Video.TemplatePath)
	fmt.Println("  2. Check status with: reelpost auth status")
	fmt.Println("  3. Start the bot: reelpost run")
}

func confirm(title, description string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	return ok, err
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func optionalInt(s string) error {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return errors.New("must be a number")
	}
	return nil
}

func validProjectID(s string) error {
	if len(s) < 6 || len(s) > 30 {
		return errors.New("must be 6-30 characters")
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return fmt.Errorf("invalid character %q", r)
		}
	}
	return nil
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func gcloudValue(args ...string) string {
	out, err := exec.Command("gcloud", args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func runTool(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func withSpinner(title string, fn func() error) error {
	var err error
	if serr := spinner.New().Title(title).Action(func() { err = fn() }).Run(); serr != nil {
		return serr
	}
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ " + title))
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"reelpost/internal/distribution/youtube"
	"reelpost/pkg/config"
)

const authTimeout = 5 * time.Minute

var (
	authInfoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	authSuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	authErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate with publishing platforms",
	Long:  `Authenticate with YouTube and check which platforms are configured.`,
}

var authYouTubeCmd = &cobra.Command{
	Use:   "youtube",
	Short: "Authenticate with YouTube (OAuth)",
	Long:  `Complete the YouTube OAuth flow using YOUTUBE_CLIENT_ID and YOUTUBE_CLIENT_SECRET.`,
	RunE:  runAuthYouTube,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which platforms are configured",
	RunE:  runAuthStatus,
}

func init() {
	authCmd.AddCommand(authYouTubeCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(authInfoStyle.Render("\nPlatform status:\n"))

	if cfg.TelegramToken != "" {
		fmt.Println(authSuccessStyle.Render("✓ Telegram: bot token configured"))
	} else {
		fmt.Println(authErrorStyle.Render("✗ Telegram: missing TELEGRAM_BOT_TOKEN"))
	}

	switch {
	case cfg.YouTubeClientID == "" || cfg.YouTubeClientSecret == "":
		fmt.Println(authErrorStyle.Render("✗ YouTube: missing YOUTUBE_CLIENT_ID or YOUTUBE_CLIENT_SECRET"))
	case youtube.NewAuth(cfg.YouTubeClientID, cfg.YouTubeClientSecret, cfg.YouTubeTokenPath).IsAuthenticated():
		fmt.Println(authSuccessStyle.Render("✓ YouTube: authenticated"))
	default:
		fmt.Println(authErrorStyle.Render("✗ YouTube: credentials set, but not authenticated"))
		fmt.Println(authInfoStyle.Render("  Run: reelpost auth youtube"))
	}

	if cfg.InstagramAccessToken != "" && cfg.InstagramUserID != "" {
		fmt.Println(authSuccessStyle.Render("✓ Instagram: Graph API token configured"))
	} else {
		fmt.Println(authErrorStyle.Render("✗ Instagram: missing INSTAGRAM_ACCESS_TOKEN or INSTAGRAM_USER_ID"))
	}

	if cfg.GroqAPIKey != "" {
		fmt.Println(authSuccessStyle.Render("✓ Groq: API key configured"))
	} else {
		fmt.Println(authInfoStyle.Render("○ Groq: not configured (optional)"))
	}

	if cfg.GCS.Enabled && cfg.GCSBucket != "" {
		fmt.Println(authSuccessStyle.Render("✓ GCS: mirroring to " + cfg.GCSBucket))
	} else {
		fmt.Println(authInfoStyle.Render("○ GCS: not configured (optional)"))
	}

	fmt.Println()
	return nil
}

func runAuthYouTube(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.YouTubeClientID == "" || cfg.YouTubeClientSecret == "" {
		return errors.New("YOUTUBE_CLIENT_ID and YOUTUBE_CLIENT_SECRET must be set in .env")
	}

	return runYouTubeAuth(cmd.Context(), youtube.NewAuth(cfg.YouTubeClientID, cfg.YouTubeClientSecret, cfg.YouTubeTokenPath))
}

// runYouTubeAuth serves the OAuth callback on the redirect URL's port and
// stores the exchanged token.
func runYouTubeAuth(ctx context.Context, auth *youtube.Auth) error {
	redirect, err := url.Parse(youtube.DefaultRedirect)
	if err != nil {
		return err
	}
	auth.SetRedirectURL(redirect.String())

	listener, err := net.Listen("tcp", ":"+redirect.Port())
	if err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	server := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != redirect.Path {
				http.NotFound(w, r)
				return
			}

			code := r.URL.Query().Get("code")
			if code == "" {
				select {
				case errChan <- errors.New("no code in callback"):
				default:
				}
				_, _ = fmt.Fprint(w, "<html><body><h1>Error</h1><p>No authorization code received.</p></body></html>")
				return
			}

			select {
			case codeChan <- code:
			default:
			}
			_, _ = fmt.Fprint(w, "<html><body><h1>Success!</h1><p>You can close this window and return to the terminal.</p></body></html>")
		}),
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL := auth.AuthURL()
	fmt.Println(authInfoStyle.Render("\nOpening browser for YouTube authentication..."))
	fmt.Println(authInfoStyle.Render("If browser doesn't open, visit:\n" + authURL))
	_ = browser.OpenURL(authURL)
	fmt.Println(authInfoStyle.Render("\nWaiting for authentication..."))

	select {
	case code := <-codeChan:
		if err := auth.Exchange(ctx, code); err != nil {
			return err
		}
		fmt.Println(authSuccessStyle.Render("✓ YouTube authentication complete"))
		fmt.Println(authSuccessStyle.Render("  Token saved to: " + auth.TokenPath()))
		return nil
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(authTimeout):
		return errors.New("authentication timed out")
	}
}

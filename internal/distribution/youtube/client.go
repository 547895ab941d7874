package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"reelpost/internal/distribution"
	"reelpost/internal/llm"
	"reelpost/pkg/fsutil"
	"reelpost/pkg/prompts"
)

const (
	maxTitleRunes   = 100
	maxSuggestTags  = 10
	defaultCategory = "22"
	defaultPrivacy  = "public"
	shortsURL       = "https://youtube.com/shorts/"
	DefaultRedirect = "http://localhost:8085/callback"
)

var _ distribution.Uploader = (*Client)(nil)

var scopes = []string{
	yt.YoutubeUploadScope,
	yt.YoutubeScope,
}

type Options struct {
	Auth                *Auth
	CategoryID          string
	DefaultTags         []string
	PrivacyStatus       string
	DescriptionTemplate string
	// Enhancer adds LLM tags and a description line. Optional.
	Enhancer llm.Client
	// Endpoint overrides the API base URL.
	Endpoint string
}

type Client struct {
	auth        *Auth
	categoryID  string
	tags        []string
	privacy     string
	description string
	enhancer    llm.Client
	endpoint    string
}

type Auth struct {
	config    *oauth2.Config
	tokenPath string

	mu    sync.Mutex
	token *oauth2.Token
}

func NewAuth(clientID, clientSecret, tokenPath string) *Auth {
	return &Auth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       scopes,
			RedirectURL:  DefaultRedirect,
		},
		tokenPath: tokenPath,
	}
}

func NewClient(opts Options) *Client {
	c := &Client{
		auth:        opts.Auth,
		categoryID:  opts.CategoryID,
		tags:        opts.DefaultTags,
		privacy:     opts.PrivacyStatus,
		description: opts.DescriptionTemplate,
		enhancer:    opts.Enhancer,
		endpoint:    opts.Endpoint,
	}
	if c.categoryID == "" {
		c.categoryID = defaultCategory
	}
	if c.privacy == "" {
		c.privacy = defaultPrivacy
	}
	return c
}

func (c *Client) Platform() distribution.Platform {
	return distribution.YouTube
}

func (c *Client) Auth() *Auth {
	return c.auth
}

// Upload publishes the file as a Short titled by the caption.
func (c *Client) Upload(ctx context.Context, req distribution.UploadRequest) (*distribution.UploadResponse, error) {
	httpClient, err := c.auth.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth client: %w", err)
	}

	svc, err := c.service(ctx, httpClient)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open video file: %w", err)
	}
	defer func() { _ = f.Close() }()

	meta := c.metadata(ctx, req.Caption)
	video := &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:       meta.title,
			Description: meta.description,
			Tags:        meta.tags,
			CategoryId:  c.categoryID,
		},
		Status: &yt.VideoStatus{
			PrivacyStatus:           c.privacy,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(f).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to upload video: %w", err)
	}
	if uploaded.Id == "" {
		return nil, fmt.Errorf("upload returned no video id")
	}

	return &distribution.UploadResponse{
		ID:       uploaded.Id,
		URL:      shortsURL + uploaded.Id,
		Platform: distribution.YouTube,
	}, nil
}

func (c *Client) service(ctx context.Context, hc *http.Client) (*yt.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}
	return svc, nil
}

type metadata struct {
	title       string
	description string
	tags        []string
}

// metadata builds title, description and tags. Enhancer failures only
// cost the extra tags and description line.
func (c *Client) metadata(ctx context.Context, caption string) metadata {
	m := metadata{
		title: truncateRunes(strings.TrimSpace(caption), maxTitleRunes),
		tags:  append([]string(nil), c.tags...),
	}
	if m.title == "" {
		m.title = "Short"
	}

	var extra string
	if c.enhancer != nil {
		if tags, err := c.enhancer.SuggestTags(ctx, caption, maxSuggestTags); err != nil {
			slog.Warn("Failed to suggest tags", "error", err)
		} else {
			m.tags = mergeTags(m.tags, tags)
		}
		if d, err := c.enhancer.Describe(ctx, caption); err != nil {
			slog.Warn("Failed to describe video", "error", err)
		} else {
			extra = d
		}
	}

	parts := []string{caption}
	if extra != "" {
		parts = append(parts, extra)
	}
	if c.description != "" {
		footer, err := prompts.RenderFooter(c.description, prompts.FooterParams{
			Caption:  caption,
			Tags:     m.tags,
			Hashtags: hashtags(m.tags),
		})
		if err != nil {
			slog.Warn("Failed to render description template", "error", err)
			footer = c.description
		}
		parts = append(parts, footer)
	}
	m.description = strings.Join(parts, "\n\n")
	return m
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func mergeTags(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, t := range append(base, extra...) {
		k := strings.ToLower(t)
		if t == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}

func hashtags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ReplaceAll(t, " ", "")
		if t != "" {
			out = append(out, "#"+t)
		}
	}
	return strings.Join(out, " ")
}

func (a *Auth) TokenPath() string {
	return a.tokenPath
}

func (a *Auth) SetRedirectURL(u string) {
	a.config.RedirectURL = u
}

func (a *Auth) LoadToken() error {
	data, err := os.ReadFile(a.tokenPath)
	if err != nil {
		return fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}

	a.token = &token
	return nil
}

func (a *Auth) SaveToken() error {
	data, err := json.MarshalIndent(a.token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := fsutil.WriteFileAtomic(a.tokenPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

func (a *Auth) AuthURL() string {
	return a.config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (a *Auth) Exchange(ctx context.Context, code string) error {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code: %w", err)
	}

	a.token = token
	return a.SaveToken()
}

// Client returns an HTTP client that refreshes the stored token and writes
// refreshed tokens back to disk.
func (a *Auth) Client(ctx context.Context) (*http.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token == nil {
		if err := a.LoadToken(); err != nil {
			return nil, err
		}
	}

	src := &savingSource{auth: a, base: a.config.TokenSource(ctx, a.token)}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(a.token, src)), nil
}

func (a *Auth) IsAuthenticated() bool {
	if a.token == nil {
		if err := a.LoadToken(); err != nil {
			return false
		}
	}
	return a.token != nil && (a.token.Valid() || a.token.RefreshToken != "")
}

type savingSource struct {
	auth *Auth
	base oauth2.TokenSource
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.auth.mu.Lock()
	defer s.auth.mu.Unlock()
	if tok.AccessToken != s.auth.token.AccessToken {
		s.auth.token = tok
		if err := s.auth.SaveToken(); err != nil {
			slog.Warn("Failed to persist refreshed token", "path", s.auth.tokenPath, "error", err)
		}
	}
	return tok, nil
}

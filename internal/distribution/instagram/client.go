package instagram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"reelpost/internal/distribution"
	"reelpost/pkg/httputil"
)

const (
	defaultGraphURL     = "https://graph.facebook.com"
	defaultUploadURL    = "https://rupload.facebook.com"
	defaultVersion      = "v21.0"
	defaultPollInterval = 5 * time.Second
	defaultPollAttempts = 60
	reelURL             = "https://www.instagram.com/reel/"
)

var (
	ErrProcessing = errors.New("media processing failed")
	ErrTimeout    = errors.New("media processing timed out")
)

var _ distribution.Uploader = (*Client)(nil)

type Options struct {
	AccessToken  string
	UserID       string
	Version      string
	ShareToFeed  bool
	PollInterval time.Duration
	PollAttempts int
	// GraphURL and UploadURL override the API hosts.
	GraphURL  string
	UploadURL string
	HTTP      *httputil.RetryClient
}

// Client publishes Reels through the Instagram Graph API resumable upload.
type Client struct {
	token        string
	userID       string
	version      string
	shareToFeed  bool
	pollInterval time.Duration
	pollAttempts int
	graphURL     string
	uploadURL    string
	http         *httputil.RetryClient
}

func NewClient(opts Options) *Client {
	c := &Client{
		token:        opts.AccessToken,
		userID:       opts.UserID,
		version:      opts.Version,
		shareToFeed:  opts.ShareToFeed,
		pollInterval: opts.PollInterval,
		pollAttempts: opts.PollAttempts,
		graphURL:     strings.TrimRight(opts.GraphURL, "/"),
		uploadURL:    strings.TrimRight(opts.UploadURL, "/"),
		http:         opts.HTTP,
	}
	if c.version == "" {
		c.version = defaultVersion
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.pollAttempts <= 0 {
		c.pollAttempts = defaultPollAttempts
	}
	if c.graphURL == "" {
		c.graphURL = defaultGraphURL
	}
	if c.uploadURL == "" {
		c.uploadURL = defaultUploadURL
	}
	if c.http == nil {
		c.http = httputil.NewRetryClient(&http.Client{Timeout: 10 * time.Minute}, httputil.DefaultRetryConfig())
	}
	return c
}

func (c *Client) Platform() distribution.Platform {
	return distribution.Instagram
}

func (c *Client) Upload(ctx context.Context, req distribution.UploadRequest) (*distribution.UploadResponse, error) {
	if c.token == "" || c.userID == "" {
		return nil, fmt.Errorf("instagram credentials are not set")
	}

	info, err := os.Stat(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat video file: %w", err)
	}

	containerID, err := c.createContainer(ctx, req.Caption)
	if err != nil {
		return nil, err
	}
	slog.Debug("Reel container created", "container_id", containerID)

	if err := c.sendBytes(ctx, containerID, req.FilePath, info.Size()); err != nil {
		return nil, err
	}

	if err := c.awaitFinished(ctx, containerID); err != nil {
		return nil, err
	}

	mediaID, err := c.publish(ctx, containerID)
	if err != nil {
		return nil, err
	}

	return &distribution.UploadResponse{
		ID:       mediaID,
		URL:      c.permalink(ctx, mediaID),
		Platform: distribution.Instagram,
	}, nil
}

func (c *Client) createContainer(ctx context.Context, caption string) (string, error) {
	form := url.Values{
		"media_type":    {"REELS"},
		"upload_type":   {"resumable"},
		"caption":       {caption},
		"share_to_feed": {strconv.FormatBool(c.shareToFeed)},
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, c.graph(c.userID, "media"), form, &resp); err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("failed to create container: empty id")
	}
	return resp.ID, nil
}

// sendBytes streams the file in one request. It is not retried since the
// body cannot be replayed.
func (c *Client) sendBytes(ctx context.Context, containerID, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open video file: %w", err)
	}
	defer func() { _ = f.Close() }()

	u := fmt.Sprintf("%s/ig-api-upload/%s/%s", c.uploadURL, c.version, containerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, f)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "OAuth "+c.token)
	req.Header.Set("offset", "0")
	req.Header.Set("file_size", strconv.FormatInt(size, 10))

	resp, err := c.http.HTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload video: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("failed to upload video: %w", statusError(resp))
	}
	return nil
}

func (c *Client) awaitFinished(ctx context.Context, containerID string) error {
	u := c.graph(containerID) + "?" + url.Values{
		"fields":       {"status_code,status"},
		"access_token": {c.token},
	}.Encode()

	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		var resp struct {
			StatusCode string `json:"status_code"`
			Status     string `json:"status"`
		}
		if err := c.http.GetJSON(ctx, u, &resp); err != nil {
			return fmt.Errorf("failed to check container status: %w", err)
		}

		switch resp.StatusCode {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			return fmt.Errorf("%w: %s %s", ErrProcessing, resp.StatusCode, resp.Status)
		}
		slog.Debug("Reel still processing", "container_id", containerID, "status", resp.StatusCode, "attempt", attempt+1)

		t := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("%w after %d checks", ErrTimeout, c.pollAttempts)
}

func (c *Client) publish(ctx context.Context, containerID string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	form := url.Values{"creation_id": {containerID}}
	if err := c.post(ctx, c.graph(c.userID, "media_publish"), form, &resp); err != nil {
		return "", fmt.Errorf("failed to publish reel: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("failed to publish reel: empty id")
	}
	return resp.ID, nil
}

// permalink never fails: the reel is already live, so a lookup error falls
// back to the shortcode URL or the bare media id.
func (c *Client) permalink(ctx context.Context, mediaID string) string {
	u := c.graph(mediaID) + "?" + url.Values{
		"fields":       {"permalink,shortcode"},
		"access_token": {c.token},
	}.Encode()

	var resp struct {
		Permalink string `json:"permalink"`
		Shortcode string `json:"shortcode"`
	}
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		slog.Warn("Failed to fetch reel permalink", "media_id", mediaID, "error", err)
	}

	switch {
	case resp.Permalink != "":
		return resp.Permalink
	case resp.Shortcode != "":
		return reelURL + resp.Shortcode
	}
	return reelURL + mediaID
}

func (c *Client) post(ctx context.Context, u string, form url.Values, out any) error {
	form.Set("access_token", c.token)
	body := form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.http.DoJSON(req, out)
}

func (c *Client) graph(parts ...string) string {
	return c.graphURL + "/" + c.version + "/" + strings.Join(parts, "/")
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &httputil.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}

// Package acquire downloads source videos from Instagram and TikTok posts.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reelpost/pkg/httputil"
	"reelpost/pkg/progress"
)

var ErrAcquisition = errors.New("acquisition failed")

type Source string

const (
	Instagram Source = "instagram"
	TikTok    Source = "tiktok"
)

func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case Instagram, TikTok:
		return Source(s), nil
	}
	return "", fmt.Errorf("unknown source %q", s)
}

func (s Source) Title() string {
	switch s {
	case Instagram:
		return "Instagram"
	case TikTok:
		return "TikTok"
	}
	return string(s)
}

type Request struct {
	Source Source
	URL    string
	Dest   string
}

type Options struct {
	InstagramEndpoint string
	TikTokEndpoint    string
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// Downloader resolves a post URL to a direct media URL through a JSON
// resolver and streams the media to disk.
type Downloader struct {
	resolver  *httputil.RetryClient
	media     *http.Client
	endpoints map[Source]string
	timeout   time.Duration
}

func NewDownloader(opts Options) *Downloader {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Downloader{
		resolver: httputil.NewRetryClient(hc, httputil.DefaultRetryConfig()),
		media:    hc,
		endpoints: map[Source]string{
			Instagram: opts.InstagramEndpoint,
			TikTok:    opts.TikTokEndpoint,
		},
		timeout: opts.Timeout,
	}
}

// Acquire reports 0 on start, 10 before resolving, 30 once resolved,
// 30-90 while streaming and 100 when the file is in place.
func (d *Downloader) Acquire(ctx context.Context, req Request, onProgress progress.Func) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	onProgress.Report(0)
	onProgress.Report(10)

	mediaURL, err := d.resolve(ctx, req.Source, req.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAcquisition, err)
	}
	onProgress.Report(30)

	if err := d.download(ctx, mediaURL, req.Dest, onProgress); err != nil {
		return fmt.Errorf("%w: %v", ErrAcquisition, err)
	}

	onProgress.Report(100)
	slog.Info("Video downloaded", "source", req.Source, "path", req.Dest)
	return nil
}

type resolveResponse struct {
	Status string `json:"status"`
	Data   struct {
		VideoURL string `json:"videoUrl"`
		Play     string `json:"play"`
	} `json:"data"`
}

func (d *Downloader) resolve(ctx context.Context, src Source, postURL string) (string, error) {
	endpoint := d.endpoints[src]
	if endpoint == "" {
		return "", fmt.Errorf("no resolver configured for %s", src)
	}

	param := "url"
	if src == Instagram {
		param = "postUrl"
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid resolver endpoint: %w", err)
	}
	q := u.Query()
	q.Set(param, strings.TrimSpace(postURL))
	u.RawQuery = q.Encode()

	var resp resolveResponse
	if err := d.resolver.GetJSON(ctx, u.String(), &resp); err != nil {
		return "", fmt.Errorf("failed to resolve %s post: %w", src, err)
	}

	media := resp.Data.VideoURL
	if src == TikTok {
		media = resp.Data.Play
	}
	if media == "" {
		return "", fmt.Errorf("resolver returned no video for %s", postURL)
	}
	return media, nil
}

func (d *Downloader) download(ctx context.Context, mediaURL, dest string, onProgress progress.Func) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return err
	}

	resp, err := d.media.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download video: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download video: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".part-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	w := &countingWriter{w: tmp, total: resp.ContentLength, onProgress: onProgress}
	if _, err := io.Copy(w, resp.Body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write video: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if w.written == 0 {
		return errors.New("downloaded video is empty")
	}

	return os.Rename(tmpName, dest)
}

// countingWriter maps bytes written onto 30-90.
type countingWriter struct {
	w          io.Writer
	total      int64
	written    int64
	onProgress progress.Func
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.written += int64(n)
	if c.total > 0 {
		c.onProgress.Report(30 + int(c.written*60/c.total))
	}
	return n, err
}

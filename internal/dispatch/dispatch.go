package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reelpost/internal/distribution"
	"reelpost/pkg/progress"
)

var (
	ErrUpload        = errors.New("upload failed")
	ErrNotConfigured = errors.New("platform not configured")
)

type Target string

const (
	TargetInstagram Target = "instagram"
	TargetYouTube   Target = "youtube"
	TargetBoth      Target = "both"
)

func ParseTarget(s string) (Target, error) {
	switch Target(s) {
	case TargetInstagram, TargetYouTube, TargetBoth:
		return Target(s), nil
	}
	return "", fmt.Errorf("unknown target %q", s)
}

// Platforms lists the platforms a target publishes to, in upload order.
func (t Target) Platforms() []distribution.Platform {
	switch t {
	case TargetInstagram:
		return []distribution.Platform{distribution.Instagram}
	case TargetYouTube:
		return []distribution.Platform{distribution.YouTube}
	case TargetBoth:
		return []distribution.Platform{distribution.Instagram, distribution.YouTube}
	}
	return nil
}

func (t Target) Title() string {
	if t == TargetBoth {
		return "Instagram + YouTube"
	}
	return distribution.Platform(t).Title()
}

// UploadError is a failure of one platform's upload.
type UploadError struct {
	Platform distribution.Platform
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s upload: %v", e.Platform, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

func (e *UploadError) Is(target error) bool {
	return target == ErrUpload
}

type Request struct {
	VideoPath string
	Caption   string
	Target    Target
}

type Result struct {
	Platform distribution.Platform
	URL      string
	ID       string
}

// Outcome is always returned, even on failure, so results of platforms that
// already succeeded are never lost.
type Outcome struct {
	Target  Target
	Results []Result
	Failed  distribution.Platform
	Skipped []distribution.Platform
	Err     error
}

func (o *Outcome) Succeeded() bool {
	return o.Err == nil
}

// Partial reports a failure after at least one platform published.
func (o *Outcome) Partial() bool {
	return o.Err != nil && len(o.Results) > 0
}

type Recorder interface {
	ObserveDispatch(platform string, ok bool, elapsed time.Duration)
}

type Coordinator struct {
	uploaders map[distribution.Platform]distribution.Uploader
	recorder  Recorder
}

func NewCoordinator(recorder Recorder, uploaders ...distribution.Uploader) *Coordinator {
	c := &Coordinator{
		uploaders: make(map[distribution.Platform]distribution.Uploader),
		recorder:  recorder,
	}
	for _, u := range uploaders {
		if u != nil {
			c.uploaders[u.Platform()] = u
		}
	}
	return c
}

func (c *Coordinator) Configured(p distribution.Platform) bool {
	_, ok := c.uploaders[p]
	return ok
}

// Dispatch publishes one video to the target's platforms strictly in order.
// The first failure stops the remaining platforms. Progress checkpoints are
// 10 for a single platform, 25 and 75 for both, and 100 on success.
func (c *Coordinator) Dispatch(ctx context.Context, req Request, onProgress progress.Func) (*Outcome, error) {
	platforms := req.Target.Platforms()
	outcome := &Outcome{Target: req.Target}

	if len(platforms) == 0 {
		outcome.Err = fmt.Errorf("unknown target %q", req.Target)
		return outcome, outcome.Err
	}

	for i, p := range platforms {
		onProgress.Report(checkpoint(len(platforms), i))

		res, err := c.upload(ctx, p, req)
		if err != nil {
			outcome.Failed = p
			outcome.Skipped = platforms[i+1:]
			outcome.Err = err
			slog.Error("Upload failed",
				"platform", p,
				"path", req.VideoPath,
				"published", len(outcome.Results),
				"error", err,
			)
			return outcome, err
		}

		outcome.Results = append(outcome.Results, *res)
		slog.Info("Upload complete", "platform", p, "url", res.URL, "id", res.ID)
	}

	onProgress.Report(100)
	return outcome, nil
}

func (c *Coordinator) upload(ctx context.Context, p distribution.Platform, req Request) (*Result, error) {
	u, ok := c.uploaders[p]
	if !ok {
		return nil, &UploadError{Platform: p, Err: ErrNotConfigured}
	}

	start := time.Now()
	resp, err := u.Upload(ctx, distribution.UploadRequest{
		FilePath: req.VideoPath,
		Caption:  req.Caption,
	})
	if c.recorder != nil {
		c.recorder.ObserveDispatch(string(p), err == nil, time.Since(start))
	}
	if err != nil {
		return nil, &UploadError{Platform: p, Err: err}
	}

	return &Result{Platform: p, URL: resp.URL, ID: resp.ID}, nil
}

func checkpoint(total, index int) int {
	if total == 1 {
		return 10
	}
	if index == 0 {
		return 25
	}
	return 75
}

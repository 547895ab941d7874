// Package video brands downloaded clips: the clip is framed on a template
// image, captioned, watermarked and compressed for upload.
package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"reelpost/pkg/config"
	"reelpost/pkg/progress"
)

const (
	defaultFFmpegPath = "ffmpeg"
	defaultFFprobe    = "ffprobe"

	watermarkMargin = 60
	stderrTail      = 2048
)

var ErrCompositing = errors.New("compositing failed")

type Request struct {
	Input     string
	Output    string
	Caption   string
	Watermark string
}

type Compositor struct {
	cfg config.VideoConfig
}

func NewCompositor(cfg config.VideoConfig) *Compositor {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = defaultFFmpegPath
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = defaultFFprobe
	}
	return &Compositor{cfg: cfg}
}

// Compose writes the branded video to req.Output. Progress runs 0-80 for the
// overlay pass and 80-100 for compression.
func (c *Compositor) Compose(ctx context.Context, req Request, onProgress progress.Func) error {
	if err := c.compose(ctx, req, onProgress); err != nil {
		return fmt.Errorf("%w: %v", ErrCompositing, err)
	}
	return nil
}

func (c *Compositor) compose(ctx context.Context, req Request, onProgress progress.Func) error {
	if _, err := os.Stat(c.cfg.TemplatePath); err != nil {
		return fmt.Errorf("template not available: %w", err)
	}

	duration, err := c.getVideoDuration(ctx, req.Input)
	if err != nil {
		return fmt.Errorf("failed to get clip duration: %w", err)
	}
	onProgress.Report(0)

	outDir := filepath.Dir(req.Output)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	stamp := time.Now().UnixNano()
	captionPath := filepath.Join(outDir, fmt.Sprintf("caption_%d.txt", stamp))
	lines := wrapCaption(req.Caption, c.cfg.MaxCharsPerLine)
	if err := os.WriteFile(captionPath, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return fmt.Errorf("failed to write caption file: %w", err)
	}
	defer func() { _ = os.Remove(captionPath) }()

	var watermarkPath string
	if wm := strings.TrimSpace(req.Watermark); wm != "" {
		watermarkPath = filepath.Join(outDir, fmt.Sprintf("watermark_%d.txt", stamp))
		if err := os.WriteFile(watermarkPath, []byte(wm), 0644); err != nil {
			return fmt.Errorf("failed to write watermark file: %w", err)
		}
		defer func() { _ = os.Remove(watermarkPath) }()
	}

	maskedPath := filepath.Join(outDir, fmt.Sprintf("tmp_%d_%s", stamp, filepath.Base(req.Output)))
	defer func() { _ = os.Remove(maskedPath) }()

	filter := c.buildFilter(captionPath, len(lines) > 0, watermarkPath)
	overlay := c.overlayArgs(req.Input, filter, maskedPath)
	if err := c.run(ctx, overlay, duration, stageOf(onProgress, 0, 80)); err != nil {
		return fmt.Errorf("overlay pass: %w", err)
	}
	onProgress.Report(80)

	if err := c.run(ctx, c.compressArgs(maskedPath, req.Output), duration, stageOf(onProgress, 80, 100)); err != nil {
		_ = os.Remove(req.Output)
		return fmt.Errorf("compression pass: %w", err)
	}
	onProgress.Report(100)

	slog.Info("Video composed", "input", req.Input, "output", req.Output, "duration", duration)
	return nil
}

func (c *Compositor) buildFilter(captionPath string, hasCaption bool, watermarkPath string) string {
	cfg := c.cfg
	filters := []string{
		fmt.Sprintf("[0:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2[clip]",
			cfg.ClipWidth, cfg.ClipHeight, cfg.ClipWidth, cfg.ClipHeight),
		fmt.Sprintf("[1:v]scale=%d:%d[bg]", cfg.Width, cfg.Height),
		fmt.Sprintf("[bg][clip]overlay=x=(W-w)/2+%d:y=(H-h)/2+%d:shortest=1[base]", cfg.OffsetX, cfg.OffsetY),
	}

	last := "base"
	if hasCaption {
		filters = append(filters, fmt.Sprintf(
			"[%s]drawtext=%stextfile='%s':x=%d:y=%d:fontsize=%d:fontcolor=black:line_spacing=%d[cap]",
			last, c.fontOption(), escapeFilterPath(captionPath), cfg.TextX, cfg.TextY, cfg.TextSize, max(cfg.LineHeight-cfg.TextSize, 0),
		))
		last = "cap"
	}
	if watermarkPath != "" {
		filters = append(filters, fmt.Sprintf(
			"[%s]drawtext=%stextfile='%s':x=(w-text_w)/2:y=h-text_h-%d:fontsize=%d:fontcolor=white:borderw=2:bordercolor=black[wm]",
			last, c.fontOption(), escapeFilterPath(watermarkPath), watermarkMargin, cfg.TextSize,
		))
		last = "wm"
	}
	filters = append(filters, fmt.Sprintf("[%s]format=yuv420p[v]", last))

	return strings.Join(filters, ";")
}

func (c *Compositor) fontOption() string {
	if c.cfg.FontPath == "" {
		return ""
	}
	return fmt.Sprintf("fontfile='%s':", escapeFilterPath(c.cfg.FontPath))
}

func (c *Compositor) overlayArgs(input, filter, output string) []string {
	return []string{
		"-y",
		"-i", input,
		"-loop", "1",
		"-i", c.cfg.TemplatePath,
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "0:a?",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-pix_fmt", "yuv420p",
		"-preset", "ultrafast",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		output,
	}
}

func (c *Compositor) compressArgs(input, output string) []string {
	return []string{
		"-y",
		"-i", input,
		"-vf", fmt.Sprintf("scale=%d:-2", c.cfg.CompressWidth),
		"-c:v", "libx264",
		"-b:v", c.cfg.CompressBitrate,
		"-preset", "veryfast",
		"-crf", strconv.Itoa(c.cfg.CompressCRF),
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		output,
	}
}

// run executes ffmpeg and forwards its -progress output as 0-100.
func (c *Compositor) run(ctx context.Context, args []string, duration float64, onProgress progress.Func) error {
	cmd := exec.CommandContext(ctx, c.cfg.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	readProgress(stdout, duration, onProgress)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w, output: %s", err, tail(stderr.String(), stderrTail))
	}
	return nil
}

func readProgress(r io.Reader, duration float64, onProgress progress.Func) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if pct, ok := parseProgress(scanner.Text(), duration); ok {
			onProgress.Report(pct)
		}
	}
}

// parseProgress reads an "out_time_ms=<microseconds>" line.
func parseProgress(line string, duration float64) (int, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok || key != "out_time_ms" || duration <= 0 {
		return 0, false
	}
	us, err := strconv.ParseInt(value, 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	pct := int(float64(us) / 1e6 / duration * 100)
	return min(pct, 100), true
}

func (c *Compositor) getVideoDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, c.cfg.FFprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var dur float64
	if _, err := fmt.Sscanf(string(output), "%f", &dur); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return dur, nil
}

// wrapCaption greedily packs words into lines of at most maxChars runes.
// Words longer than maxChars get a line of their own.
func wrapCaption(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = 42
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			switch {
			case current == "":
				current = word
			case runeLen(current)+1+runeLen(word) <= maxChars:
				current += " " + word
			default:
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		}
	}
	return lines
}

func runeLen(s string) int {
	return len([]rune(s))
}

// escapeFilterPath quotes a path for use inside a single-quoted filter option.
func escapeFilterPath(p string) string {
	p = filepath.ToSlash(p)
	p = strings.ReplaceAll(p, `\`, `\\`)
	p = strings.ReplaceAll(p, `'`, `'\''`)
	return strings.ReplaceAll(p, ":", `\:`)
}

func stageOf(f progress.Func, lo, hi int) progress.Func {
	return func(pct int) {
		f.Report(lo + (hi-lo)*pct/100)
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

package acquire

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (p *progressLog) report(pct int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, pct)
}

func newMediaServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/media.mp4", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/instagram", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("postUrl") == "" {
			http.Error(w, "missing postUrl", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","data":{"videoUrl":"http://` + r.Host + `/media.mp4"}}`))
	})
	mux.HandleFunc("/tiktok", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") == "" {
			http.Error(w, "missing url", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"play":"http://` + r.Host + `/media.mp4"}}`))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","data":{}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAcquire(t *testing.T) {
	srv := newMediaServer(t, "fake video bytes")

	tests := []struct {
		name   string
		source Source
	}{
		{name: "instagram", source: Instagram},
		{name: "tiktok", source: TikTok},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDownloader(Options{
				InstagramEndpoint: srv.URL + "/instagram",
				TikTokEndpoint:    srv.URL + "/tiktok",
				HTTPClient:        srv.Client(),
			})

			dest := filepath.Join(t.TempDir(), "raw.mp4")
			var log progressLog
			err := d.Acquire(context.Background(), Request{
				Source: tt.source,
				URL:    "https://example.com/p/abc",
				Dest:   dest,
			}, log.report)
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}

			data, err := os.ReadFile(dest)
			if err != nil {
				t.Fatalf("read dest: %v", err)
			}
			if string(data) != "fake video bytes" {
				t.Errorf("content = %q", data)
			}

			if len(log.values) < 4 {
				t.Fatalf("progress = %v, want at least 4 reports", log.values)
			}
			if log.values[0] != 0 || log.values[len(log.values)-1] != 100 {
				t.Errorf("progress = %v, want 0 first and 100 last", log.values)
			}
			for i := 1; i < len(log.values); i++ {
				if log.values[i] < log.values[i-1] {
					t.Errorf("progress went backwards: %v", log.values)
				}
			}
		})
	}
}

func TestAcquireResolverWithoutVideo(t *testing.T) {
	srv := newMediaServer(t, "x")
	d := NewDownloader(Options{InstagramEndpoint: srv.URL + "/empty", HTTPClient: srv.Client()})

	dest := filepath.Join(t.TempDir(), "raw.mp4")
	err := d.Acquire(context.Background(), Request{Source: Instagram, URL: "https://x", Dest: dest}, nil)
	if !errors.Is(err, ErrAcquisition) {
		t.Fatalf("Acquire() error = %v, want ErrAcquisition", err)
	}
	if _, statErr := os.Stat(dest); statErr == nil {
		t.Error("destination exists after failure")
	}
}

func TestAcquireMediaNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/resolve") {
			_, _ = w.Write([]byte(`{"data":{"play":"http://` + r.Host + `/gone.mp4"}}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := NewDownloader(Options{TikTokEndpoint: srv.URL + "/resolve", HTTPClient: srv.Client()})
	dir := t.TempDir()
	err := d.Acquire(context.Background(), Request{Source: TikTok, URL: "https://x", Dest: filepath.Join(dir, "raw.mp4")}, nil)
	if !errors.Is(err, ErrAcquisition) {
		t.Fatalf("Acquire() error = %v, want ErrAcquisition", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("left %d files behind", len(entries))
	}
}

func TestAcquireUnconfiguredSource(t *testing.T) {
	d := NewDownloader(Options{})
	err := d.Acquire(context.Background(), Request{Source: TikTok, URL: "https://x", Dest: filepath.Join(t.TempDir(), "a.mp4")}, nil)
	if !errors.Is(err, ErrAcquisition) {
		t.Errorf("Acquire() error = %v, want ErrAcquisition", err)
	}
}

func TestParseSource(t *testing.T) {
	if s, err := ParseSource("tiktok"); err != nil || s != TikTok {
		t.Errorf("ParseSource(tiktok) = %v, %v", s, err)
	}
	if _, err := ParseSource("vimeo"); err == nil {
		t.Error("ParseSource(vimeo) accepted")
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Hello World", want: "hello-world"},
		{name: "turkish", in: "Güneşli Çiçek ağacı öğün", want: "gunesli-cicek-agaci-ogun"},
		{name: "dottedCapitalI", in: "İstanbul", want: "istanbul"},
		{name: "punctuationRuns", in: "--a!!  b??", want: "a-b"},
		{name: "emojiOnly", in: "🔥🔥", want: ""},
		{name: "digits", in: "Top 10 tips", want: "top-10-tips"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slug(tt.in); got != tt.want {
				t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSlugTruncates(t *testing.T) {
	got := Slug(strings.Repeat("ab ", 50))
	if len(got) > maxSlugLen || strings.HasSuffix(got, "-") {
		t.Errorf("Slug() = %q", got)
	}
}

func TestFileName(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	if got := FileName(Instagram, "Yeni Video", now); got != "instagram_yeni-video_1700000000123.mp4" {
		t.Errorf("FileName() = %q", got)
	}
	if got := FileName(TikTok, "", now); got != "tiktok_video_1700000000123.mp4" {
		t.Errorf("FileName() empty caption = %q", got)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "masked_instagram_yeni-video_1700000000123.mp4", want: "yeni video"},
		{in: "tiktok_a-b_1.mp4", want: "a b"},
		{in: "plain.mp4", want: "plain"},
	}

	for _, tt := range tests {
		if got := DisplayName(tt.in); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

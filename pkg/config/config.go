package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"reelpost/pkg/fsutil"
)

const (
	DefaultConfigPath = "config.yaml"

	defaultPollTimeout      = 10 * time.Second
	defaultProgressInterval = 1500 * time.Millisecond
	defaultLocation         = "Local"
	defaultInterval         = 60 * time.Second
	defaultDataDir          = "./data"
	defaultTempDir          = "./temp"
	defaultVideosDir        = "./videos"
	defaultJobsFile         = "scheduled_posts.json"
	defaultCatalogFile      = "videos.json"
	defaultSettingsFile     = "settings.json"
	defaultTempMaxAge       = 24 * time.Hour
	defaultTemplatePath     = "./assets/template.png"
	defaultFFmpeg           = "ffmpeg"
	defaultFFprobe          = "ffprobe"
	defaultWidth            = 1080
	defaultHeight           = 1920
	defaultClipWidth        = 920
	defaultClipHeight       = 1470
	defaultOffsetX          = 2
	defaultOffsetY          = 135
	defaultTextX            = 85
	defaultTextY            = 270
	defaultTextSize         = 40
	defaultLineHeight       = 50
	defaultMaxCharsPerLine  = 42
	defaultCompressWidth    = 720
	defaultCompressBitrate  = "1000k"
	defaultCompressCRF      = 28
	defaultAcquireTimeout   = 5 * time.Minute
	defaultInstagramResolve = "https://instagram-downloader-git-main-bybittercodes-projects.vercel.app/api/video"
	defaultTikTokResolve    = "https://www.tikwm.com/api/"
	defaultCategoryID       = "22"
	defaultPrivacyStatus    = "public"
	DefaultTokenPath        = "./youtube_token.json"
	defaultGraphVersion     = "v21.0"
	defaultPollInterval     = 5 * time.Second
	defaultPollAttempts     = 60
	defaultGroqModel        = "llama-3.3-70b-versatile"
	defaultAuditDriver      = "file"
	defaultAuditPath        = "./logs"
	defaultGCSPrefix        = "videos"
	defaultSecretsProvider  = "env"
)

type Config struct {
	TelegramToken        string `yaml:"-"`
	YouTubeClientID      string `yaml:"-"`
	YouTubeClientSecret  string `yaml:"-"`
	YouTubeTokenPath     string `yaml:"-"`
	InstagramAccessToken string `yaml:"-"`
	InstagramUserID      string `yaml:"-"`
	GroqAPIKey           string `yaml:"-"`
	GCPProject           string `yaml:"-"`
	GCSBucket            string `yaml:"-"`

	Bot       BotConfig       `yaml:"bot"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Storage   StorageConfig   `yaml:"storage"`
	Video     VideoConfig     `yaml:"video"`
	Acquire   AcquireConfig   `yaml:"acquire"`
	YouTube   YouTubeConfig   `yaml:"youtube"`
	Instagram InstagramConfig `yaml:"instagram"`
	Groq      GroqConfig      `yaml:"groq"`
	Audit     AuditConfig     `yaml:"audit"`
	API       APIConfig       `yaml:"api"`
	GCS       GCSConfig       `yaml:"gcs"`
	Secrets   SecretsConfig   `yaml:"secrets"`
}

type BotConfig struct {
	AllowedUsers     []int64       `yaml:"allowed_users"`
	Watermark        string        `yaml:"watermark"`
	PollTimeout      time.Duration `yaml:"poll_timeout"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	Location         string        `yaml:"location"`
}

type SchedulerConfig struct {
	Interval  time.Duration `yaml:"interval"`
	DueLeeway time.Duration `yaml:"due_leeway"`
}

type StorageConfig struct {
	DataDir      string        `yaml:"data_dir"`
	TempDir      string        `yaml:"temp_dir"`
	VideosDir    string        `yaml:"videos_dir"`
	JobsFile     string        `yaml:"jobs_file"`
	CatalogFile  string        `yaml:"catalog_file"`
	SettingsFile string        `yaml:"settings_file"`
	TempMaxAge   time.Duration `yaml:"temp_max_age"`
}

type VideoConfig struct {
	FFmpegPath      string `yaml:"ffmpeg_path"`
	FFprobePath     string `yaml:"ffprobe_path"`
	TemplatePath    string `yaml:"template_path"`
	FontPath        string `yaml:"font_path"`
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	ClipWidth       int    `yaml:"clip_width"`
	ClipHeight      int    `yaml:"clip_height"`
	OffsetX         int    `yaml:"offset_x"`
	OffsetY         int    `yaml:"offset_y"`
	TextX           int    `yaml:"text_x"`
	TextY           int    `yaml:"text_y"`
	TextSize        int    `yaml:"text_size"`
	LineHeight      int    `yaml:"line_height"`
	MaxCharsPerLine int    `yaml:"max_chars_per_line"`
	CompressWidth   int    `yaml:"compress_width"`
	CompressBitrate string `yaml:"compress_bitrate"`
	CompressCRF     int    `yaml:"compress_crf"`
}

type AcquireConfig struct {
	InstagramEndpoint string        `yaml:"instagram_endpoint"`
	TikTokEndpoint    string        `yaml:"tiktok_endpoint"`
	Timeout           time.Duration `yaml:"timeout"`
}

type YouTubeConfig struct {
	CategoryID          string   `yaml:"category_id"`
	DefaultTags         []string `yaml:"default_tags"`
	PrivacyStatus       string   `yaml:"privacy_status"`
	DescriptionTemplate string   `yaml:"description_template"`
	Enhance             bool     `yaml:"enhance"`
}

type InstagramConfig struct {
	GraphVersion string        `yaml:"graph_version"`
	ShareToFeed  bool          `yaml:"share_to_feed"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollAttempts int           `yaml:"poll_attempts"`
}

type GroqConfig struct {
	Model string `yaml:"model"`
}

type AuditConfig struct {
	Driver string `yaml:"driver"` // "file", "sqlite" or "none"
	Path   string `yaml:"path"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

type GCSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

type SecretsConfig struct {
	Provider string `yaml:"provider"` // "env" or "secretmanager"
}

// Load reads .env and config.yaml from the working directory.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, DefaultConfigPath)
}

func LoadFrom(ctx context.Context, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		TelegramToken:        os.Getenv("TELEGRAM_BOT_TOKEN"),
		YouTubeClientID:      os.Getenv("YOUTUBE_CLIENT_ID"),
		YouTubeClientSecret:  os.Getenv("YOUTUBE_CLIENT_SECRET"),
		YouTubeTokenPath:     getEnvOrDefault("YOUTUBE_TOKEN_PATH", DefaultTokenPath),
		InstagramAccessToken: os.Getenv("INSTAGRAM_ACCESS_TOKEN"),
		InstagramUserID:      os.Getenv("INSTAGRAM_USER_ID"),
		GroqAPIKey:           os.Getenv("GROQ_API_KEY"),
		GCPProject:           os.Getenv("GOOGLE_CLOUD_PROJECT"),
		GCSBucket:            os.Getenv("GCS_BUCKET"),
	}

	if err := loadYAMLConfig(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if cfg.Secrets.Provider == "secretmanager" {
		if cfg.GCPProject == "" {
			return nil, errors.New("secrets.provider is secretmanager but GOOGLE_CLOUD_PROJECT is not set")
		}
		sm, err := NewSecretManager(ctx, cfg.GCPProject)
		if err != nil {
			return nil, err
		}
		defer func() { _ = sm.Close() }()
		resolveSecrets(ctx, cfg, sm)
	}

	return cfg, nil
}

func loadYAMLConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Defaults is what an empty config.yaml resolves to, without any secrets.
func Defaults() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// WriteFile stores the YAML sections of cfg. Secrets stay in the environment.
func WriteFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// LoadLocation resolves bot.location, falling back to the process zone.
func (c *Config) LoadLocation() *time.Location {
	if c.Bot.Location == "" || strings.EqualFold(c.Bot.Location, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Bot.Location)
	if err != nil {
		slog.Warn("Unknown bot.location, using local time", "location", c.Bot.Location, "error", err)
		return time.Local
	}
	return loc
}

func applyDefaults(cfg *Config) {
	applyBotDefaults(cfg)
	applySchedulerDefaults(cfg)
	applyStorageDefaults(cfg)
	applyVideoDefaults(cfg)
	applyAcquireDefaults(cfg)
	applyYouTubeDefaults(cfg)
	applyInstagramDefaults(cfg)
	applyGroqDefaults(cfg)
	applyAuditDefaults(cfg)
	applyGCSDefaults(cfg)
	applySecretsDefaults(cfg)
}

func applyBotDefaults(cfg *Config) {
	if cfg.Bot.PollTimeout == 0 {
		cfg.Bot.PollTimeout = defaultPollTimeout
	}
	if cfg.Bot.ProgressInterval == 0 {
		cfg.Bot.ProgressInterval = defaultProgressInterval
	}
	if cfg.Bot.Location == "" {
		cfg.Bot.Location = defaultLocation
	}
}

func applySchedulerDefaults(cfg *Config) {
	if cfg.Scheduler.Interval <= 0 {
		cfg.Scheduler.Interval = defaultInterval
	}
	if cfg.Scheduler.DueLeeway < 0 {
		cfg.Scheduler.DueLeeway = 0
	}
}

func applyStorageDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = defaultDataDir
	}
	if cfg.Storage.TempDir == "" {
		cfg.Storage.TempDir = defaultTempDir
	}
	if cfg.Storage.VideosDir == "" {
		cfg.Storage.VideosDir = defaultVideosDir
	}
	if cfg.Storage.JobsFile == "" {
		cfg.Storage.JobsFile = defaultJobsFile
	}
	if cfg.Storage.CatalogFile == "" {
		cfg.Storage.CatalogFile = defaultCatalogFile
	}
	if cfg.Storage.SettingsFile == "" {
		cfg.Storage.SettingsFile = defaultSettingsFile
	}
	if cfg.Storage.TempMaxAge == 0 {
		cfg.Storage.TempMaxAge = defaultTempMaxAge
	}
}

func applyVideoDefaults(cfg *Config) {
	v := &cfg.Video
	if v.FFmpegPath == "" {
		v.FFmpegPath = defaultFFmpeg
	}
	if v.FFprobePath == "" {
		v.FFprobePath = defaultFFprobe
	}
	if v.TemplatePath == "" {
		v.TemplatePath = defaultTemplatePath
	}
	if v.Width == 0 {
		v.Width = defaultWidth
	}
	if v.Height == 0 {
		v.Height = defaultHeight
	}
	if v.ClipWidth == 0 {
		v.ClipWidth = defaultClipWidth
	}
	if v.ClipHeight == 0 {
		v.ClipHeight = defaultClipHeight
	}
	if v.OffsetX == 0 {
		v.OffsetX = defaultOffsetX
	}
	if v.OffsetY == 0 {
		v.OffsetY = defaultOffsetY
	}
	if v.TextX == 0 {
		v.TextX = defaultTextX
	}
	if v.TextY == 0 {
		v.TextY = defaultTextY
	}
	if v.TextSize == 0 {
		v.TextSize = defaultTextSize
	}
	if v.LineHeight == 0 {
		v.LineHeight = defaultLineHeight
	}
	if v.MaxCharsPerLine == 0 {
		v.MaxCharsPerLine = defaultMaxCharsPerLine
	}
	if v.CompressWidth == 0 {
		v.CompressWidth = defaultCompressWidth
	}
	if v.CompressBitrate == "" {
		v.CompressBitrate = defaultCompressBitrate
	}
	if v.CompressCRF == 0 {
		v.CompressCRF = defaultCompressCRF
	}
}

func applyAcquireDefaults(cfg *Config) {
	if cfg.Acquire.InstagramEndpoint == "" {
		cfg.Acquire.InstagramEndpoint = defaultInstagramResolve
	}
	if cfg.Acquire.TikTokEndpoint == "" {
		cfg.Acquire.TikTokEndpoint = defaultTikTokResolve
	}
	if cfg.Acquire.Timeout == 0 {
		cfg.Acquire.Timeout = defaultAcquireTimeout
	}
}

func applyYouTubeDefaults(cfg *Config) {
	if cfg.YouTube.CategoryID == "" {
		cfg.YouTube.CategoryID = defaultCategoryID
	}
	if len(cfg.YouTube.DefaultTags) == 0 {
		cfg.YouTube.DefaultTags = []string{"shorts"}
	}
	if cfg.YouTube.PrivacyStatus == "" {
		cfg.YouTube.PrivacyStatus = defaultPrivacyStatus
	}
}

func applyInstagramDefaults(cfg *Config) {
	if cfg.Instagram.GraphVersion == "" {
		cfg.Instagram.GraphVersion = defaultGraphVersion
	}
	if cfg.Instagram.PollInterval == 0 {
		cfg.Instagram.PollInterval = defaultPollInterval
	}
	if cfg.Instagram.PollAttempts == 0 {
		cfg.Instagram.PollAttempts = defaultPollAttempts
	}
}

func applyGroqDefaults(cfg *Config) {
	if cfg.Groq.Model == "" {
		cfg.Groq.Model = defaultGroqModel
	}
}

func applyAuditDefaults(cfg *Config) {
	if cfg.Audit.Driver == "" {
		cfg.Audit.Driver = defaultAuditDriver
	}
	if cfg.Audit.Path == "" && cfg.Audit.Driver != "none" {
		cfg.Audit.Path = defaultAuditPath
		if cfg.Audit.Driver == "sqlite" {
			cfg.Audit.Path = defaultAuditPath + "/actions.db"
		}
	}
}

func applyGCSDefaults(cfg *Config) {
	if cfg.GCS.Prefix == "" {
		cfg.GCS.Prefix = defaultGCSPrefix
	}
}

func applySecretsDefaults(cfg *Config) {
	if cfg.Secrets.Provider == "" {
		cfg.Secrets.Provider = defaultSecretsProvider
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

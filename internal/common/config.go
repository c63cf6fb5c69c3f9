package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // timezone names must resolve in minimal containers

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// ErrInvalidConfig is wrapped by every validation failure returned from Config.Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// SlotTimeLayout is the layout of slot keys ("HH:MM").
const SlotTimeLayout = "15:04"

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"`
	Timezone    string           `toml:"timezone" validate:"required"`
	Logging     LoggingConfig    `toml:"logging"`
	Storage     StorageConfig    `toml:"storage"`
	Fetch       FetchConfig      `toml:"fetch"`
	Notify      NotifyConfig     `toml:"notify"`
	Calendar    CalendarConfig   `toml:"calendar"`
	Guard       GuardConfig      `toml:"guard"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	Webhook     WebhookConfig    `toml:"webhook"`
	Pipelines   []PipelineConfig `toml:"pipelines" validate:"required,min=1,dive"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
	Dir    string   `toml:"dir"`
}

type StorageConfig struct {
	Type   string       `toml:"type" validate:"oneof=file badger"`
	File   FileConfig   `toml:"file"`
	Badger BadgerConfig `toml:"badger"`
}

// FileConfig configures the JSON snapshot directory tree.
type FileConfig struct {
	Root string `toml:"root"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type FetchConfig struct {
	Mode           string   `toml:"mode" validate:"oneof=http browser"`
	UserAgent      string   `toml:"user_agent"`
	RequestTimeout string   `toml:"request_timeout"`
	RetryCount     int      `toml:"retry_count" validate:"min=1"`
	RetryDelays    []string `toml:"retry_delays"`
	RenderWait     string   `toml:"render_wait"` // browser mode only
}

type NotifyConfig struct {
	Provider       string     `toml:"provider" validate:"oneof=line log"`
	RequestTimeout string     `toml:"request_timeout"`
	RetryCount     int        `toml:"retry_count" validate:"min=1"`
	RetryDelays    []string   `toml:"retry_delays"`
	LINE           LINEConfig `toml:"line"`
}

type LINEConfig struct {
	Endpoint    string `toml:"endpoint"`
	AccessToken string `toml:"access_token"`
	UserID      string `toml:"user_id"`
}

type CalendarConfig struct {
	Provider        string      `toml:"provider" validate:"oneof=japan static eodhd"`
	WorkingDays     []string    `toml:"working_days"`
	Holidays        []string    `toml:"holidays"`
	ExchangeClosure bool        `toml:"exchange_closure"`
	EODHD           EODHDConfig `toml:"eodhd"`
}

type EODHDConfig struct {
	BaseURL   string  `toml:"base_url"`
	APIKey    string  `toml:"api_key"`
	Exchange  string  `toml:"exchange"`
	RateLimit float64 `toml:"rate_limit"` // requests per second
}

type GuardConfig struct {
	RecencyThreshold string `toml:"recency_threshold"`
	RecencyPolicy    string `toml:"recency_policy" validate:"oneof=always missing_metadata"`
}

type SchedulerConfig struct {
	Location string `toml:"location"` // zone the trigger expressions are evaluated in
}

type WebhookConfig struct {
	Host      string  `toml:"host"`
	Port      int     `toml:"port" validate:"min=1,max=65535"`
	Secret    string  `toml:"secret"`
	RateLimit float64 `toml:"rate_limit"` // requests per second, 0 disables limiting
	Burst     int     `toml:"burst"`
}

// PipelineConfig describes one scrape/notify job (for example the day-trading
// ranking or the sector ranking).
type PipelineConfig struct {
	Name         string                  `toml:"name" validate:"required"`
	Disabled     bool                    `toml:"disabled"`
	Resolver     string                  `toml:"resolver" validate:"omitempty,oneof=latest nearest"`
	Window       string                  `toml:"window"`
	Slots        map[string]string       `toml:"slots" validate:"required,min=1"`
	Overrides    map[string]SlotOverride `toml:"overrides"`
	SkipTriggers []string                `toml:"skip_triggers"`
	Triggers     []string                `toml:"triggers"` // extra serve-mode triggers resolved by wall clock
	Targets      map[string]TargetConfig `toml:"targets" validate:"required,min=1,dive"`
	Extract      ExtractConfig           `toml:"extract"`
	Report       ReportConfig            `toml:"report"`
}

type SlotOverride struct {
	Target string `toml:"target"`
	Slot   string `toml:"slot"`
}

type TargetConfig struct {
	URL   string `toml:"url" validate:"omitempty,url"`
	Label string `toml:"label"`
}

type ExtractConfig struct {
	Layout    string   `toml:"layout" validate:"omitempty,oneof=stock sector sector_table"`
	Selectors []string `toml:"selectors"`
	Limit     int      `toml:"limit" validate:"min=0"`
}

type ReportConfig struct {
	Mode    string `toml:"mode" validate:"omitempty,oneof=ranking sector"`
	TopN    int    `toml:"top_n" validate:"min=0"`
	BottomN int    `toml:"bottom_n" validate:"min=0"`
}

// NewDefaultConfig returns the built-in configuration: the day-trading ranking
// pipeline against the Matsui morning/afternoon pages, LINE delivery, JSON files.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Timezone:    "Asia/Tokyo",
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
			Dir:    "./logs",
		},
		Storage: StorageConfig{
			Type: "file",
			File: FileConfig{Root: "./data"},
			Badger: BadgerConfig{
				Path: "./data/rankwatch.db",
			},
		},
		Fetch: FetchConfig{
			Mode:           "http",
			UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout: "30s",
			RetryCount:     3,
			RetryDelays:    []string{"5s", "10s", "20s"},
			RenderWait:     "3s",
		},
		Notify: NotifyConfig{
			Provider:       "line",
			RequestTimeout: "30s",
			RetryCount:     3,
			RetryDelays:    []string{"5s", "10s", "20s"},
			LINE: LINEConfig{
				Endpoint: "https://api.line.me/v2/bot/message/push",
			},
		},
		Calendar: CalendarConfig{
			Provider:        "japan",
			WorkingDays:     []string{"mon", "tue", "wed", "thu", "fri"},
			ExchangeClosure: true,
			EODHD: EODHDConfig{
				BaseURL:   "https://eodhd.com/api",
				Exchange:  "TSE",
				RateLimit: 1,
			},
		},
		Guard: GuardConfig{
			RecencyThreshold: "10m",
			RecencyPolicy:    "always",
		},
		Scheduler: SchedulerConfig{
			Location: "UTC",
		},
		Webhook: WebhookConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			RateLimit: 1,
			Burst:     5,
		},
		Pipelines: []PipelineConfig{DefaultRankingPipeline()},
	}
}

// DefaultRankingPipeline is the day-trading ranking job. Trigger ids are the
// UTC cron expressions of the external scheduler.
func DefaultRankingPipeline() PipelineConfig {
	return PipelineConfig{
		Name:     "daytrading",
		Resolver: "latest",
		Slots: map[string]string{
			"09:15": "morning",
			"09:30": "morning",
			"12:00": "morning",
			"12:45": "afternoon",
			"14:30": "afternoon",
		},
		Overrides: map[string]SlotOverride{
			"20 0 * * 1-5": {Target: "morning", Slot: "09:20"},
			"35 0 * * 1-5": {Target: "morning", Slot: "09:35"},
			"2 3 * * 1-5":  {Target: "morning", Slot: "12:02"},
			"47 3 * * 1-5": {Target: "afternoon", Slot: "12:47"},
			"32 5 * * 1-5": {Target: "afternoon", Slot: "14:32"},
		},
		SkipTriggers: []string{"0 3 * * 1-5", "0 7 * * 1-5"},
		Targets: map[string]TargetConfig{
			"morning": {
				URL:   "https://finance.matsui.co.jp/ranking-day-trading-morning/index?condition=0&market=0",
				Label: "morning",
			},
			"afternoon": {
				URL:   "https://finance.matsui.co.jp/ranking-day-trading-afternoon/index?condition=0&market=0",
				Label: "afternoon",
			},
		},
		Extract: ExtractConfig{
			Layout:    "stock",
			Selectors: []string{"table.m-table", "table.ranking-table", "table#rankingTable", "table"},
		},
		Report: ReportConfig{
			Mode: "ranking",
			TopN: 10,
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files. CLI flags are applied by the caller afterwards.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// A file that declares pipelines replaces the built-in ones
		var probe struct {
			Pipelines []PipelineConfig `toml:"pipelines"`
		}
		if err := toml.Unmarshal(data, &probe); err == nil && len(probe.Pipelines) > 0 {
			config.Pipelines = nil
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RANKWATCH_ENV"); env != "" {
		config.Environment = env
	}
	if tz := os.Getenv("RANKWATCH_TIMEZONE"); tz != "" {
		config.Timezone = tz
	}

	if level := os.Getenv("RANKWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("RANKWATCH_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitList(output)
	}

	if storageType := os.Getenv("RANKWATCH_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if root := os.Getenv("RANKWATCH_DATA_DIR"); root != "" {
		config.Storage.File.Root = root
	}
	if badgerPath := os.Getenv("RANKWATCH_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if mode := os.Getenv("RANKWATCH_FETCH_MODE"); mode != "" {
		config.Fetch.Mode = mode
	}
	if userAgent := os.Getenv("RANKWATCH_USER_AGENT"); userAgent != "" {
		config.Fetch.UserAgent = userAgent
	}
	if retryCount := os.Getenv("RANKWATCH_RETRY_COUNT"); retryCount != "" {
		if n, err := strconv.Atoi(retryCount); err == nil {
			config.Fetch.RetryCount = n
			config.Notify.RetryCount = n
		}
	}

	if provider := os.Getenv("RANKWATCH_NOTIFY_PROVIDER"); provider != "" {
		config.Notify.Provider = provider
	}
	if token := os.Getenv("RANKWATCH_LINE_ACCESS_TOKEN"); token != "" {
		config.Notify.LINE.AccessToken = token
	} else if token := os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"); token != "" {
		config.Notify.LINE.AccessToken = token
	}
	if userID := os.Getenv("RANKWATCH_LINE_USER_ID"); userID != "" {
		config.Notify.LINE.UserID = userID
	} else if userID := os.Getenv("LINE_TARGET_USER_ID"); userID != "" {
		config.Notify.LINE.UserID = userID
	}

	if provider := os.Getenv("RANKWATCH_CALENDAR_PROVIDER"); provider != "" {
		config.Calendar.Provider = provider
	}
	if apiKey := os.Getenv("RANKWATCH_EODHD_API_KEY"); apiKey != "" {
		config.Calendar.EODHD.APIKey = apiKey
	} else if apiKey := os.Getenv("EODHD_API_KEY"); apiKey != "" {
		config.Calendar.EODHD.APIKey = apiKey
	}

	if threshold := os.Getenv("RANKWATCH_GUARD_RECENCY_THRESHOLD"); threshold != "" {
		config.Guard.RecencyThreshold = threshold
	}
	if policy := os.Getenv("RANKWATCH_GUARD_RECENCY_POLICY"); policy != "" {
		config.Guard.RecencyPolicy = policy
	}

	if port := os.Getenv("RANKWATCH_WEBHOOK_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Webhook.Port = p
		}
	} else if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Webhook.Port = p
		}
	}
	if host := os.Getenv("RANKWATCH_WEBHOOK_HOST"); host != "" {
		config.Webhook.Host = host
	}
	if secret := os.Getenv("RANKWATCH_WEBHOOK_SECRET"); secret != "" {
		config.Webhook.Secret = secret
	} else if secret := os.Getenv("TRADINGVIEW_SECRET"); secret != "" {
		config.Webhook.Secret = secret
	}
}

// Validate checks struct tags and the cross-field rules (slot keys, override
// targets, trigger expressions, durations). Every error wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	if _, err := time.LoadLocation(c.Scheduler.Location); c.Scheduler.Location != "" && err != nil {
		return fmt.Errorf("%w: scheduler location %q: %v", ErrInvalidConfig, c.Scheduler.Location, err)
	}
	if _, err := ParseWeekdays(c.Calendar.WorkingDays); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for _, d := range c.Calendar.Holidays {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("%w: calendar holiday %q: %v", ErrInvalidConfig, d, err)
		}
	}

	durations := map[string]string{
		"fetch.request_timeout":   c.Fetch.RequestTimeout,
		"fetch.render_wait":       c.Fetch.RenderWait,
		"notify.request_timeout":  c.Notify.RequestTimeout,
		"guard.recency_threshold": c.Guard.RecencyThreshold,
	}
	for name, value := range durations {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
		}
	}
	if _, err := ParseDurations(c.Fetch.RetryDelays); err != nil {
		return fmt.Errorf("%w: fetch.retry_delays: %v", ErrInvalidConfig, err)
	}
	if _, err := ParseDurations(c.Notify.RetryDelays); err != nil {
		return fmt.Errorf("%w: notify.retry_delays: %v", ErrInvalidConfig, err)
	}

	seen := make(map[string]bool)
	for i := range c.Pipelines {
		p := &c.Pipelines[i]
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate pipeline name %q", ErrInvalidConfig, p.Name)
		}
		seen[p.Name] = true
		if err := p.validate(); err != nil {
			return fmt.Errorf("%w: pipeline %s: %v", ErrInvalidConfig, p.Name, err)
		}
	}

	return nil
}

func (p *PipelineConfig) validate() error {
	if _, err := parseDuration(p.Window); err != nil {
		return fmt.Errorf("window: %w", err)
	}
	for slot, target := range p.Slots {
		if _, err := time.Parse(SlotTimeLayout, slot); err != nil {
			return fmt.Errorf("slot %q is not HH:MM", slot)
		}
		if _, ok := p.Targets[target]; !ok {
			return fmt.Errorf("slot %s refers to unknown target %q", slot, target)
		}
	}
	for trigger, o := range p.Overrides {
		if err := ValidateTrigger(trigger); err != nil {
			return err
		}
		if _, ok := p.Targets[o.Target]; !ok {
			return fmt.Errorf("override %q refers to unknown target %q", trigger, o.Target)
		}
		if _, err := time.Parse(SlotTimeLayout, o.Slot); err != nil {
			return fmt.Errorf("override %q slot %q is not HH:MM", trigger, o.Slot)
		}
	}
	for _, trigger := range append(append([]string{}, p.SkipTriggers...), p.Triggers...) {
		if err := ValidateTrigger(trigger); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTrigger validates a five-field cron expression used as a trigger id.
func ValidateTrigger(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Location returns the configured timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SchedulerLocation returns the zone cron triggers are evaluated in (UTC by default).
func (c *Config) SchedulerLocation() *time.Location {
	if c.Scheduler.Location == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Scheduler.Location)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Pipeline returns the named pipeline configuration.
func (c *Config) Pipeline(name string) (*PipelineConfig, bool) {
	for i := range c.Pipelines {
		if c.Pipelines[i].Name == name {
			return &c.Pipelines[i], true
		}
	}
	return nil, false
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// Timeout returns the per-request fetch timeout.
func (f FetchConfig) Timeout() time.Duration {
	return durationOr(f.RequestTimeout, 30*time.Second)
}

// Wait returns how long the browser fetcher lets scripts render.
func (f FetchConfig) Wait() time.Duration {
	return durationOr(f.RenderWait, 3*time.Second)
}

// Delays returns the parsed fetch retry delays.
func (f FetchConfig) Delays() []time.Duration {
	d, _ := ParseDurations(f.RetryDelays)
	return d
}

// Timeout returns the per-request notification timeout.
func (n NotifyConfig) Timeout() time.Duration {
	return durationOr(n.RequestTimeout, 30*time.Second)
}

// Delays returns the parsed notification retry delays.
func (n NotifyConfig) Delays() []time.Duration {
	d, _ := ParseDurations(n.RetryDelays)
	return d
}

// Threshold returns the recency window for the duplicate guard. An explicit
// zero ("0s") disables the window; only an unset value gets the 10m default.
func (g GuardConfig) Threshold() time.Duration {
	if g.RecencyThreshold == "" {
		return 10 * time.Minute
	}
	d, err := parseDuration(g.RecencyThreshold)
	if err != nil || d < 0 {
		return 10 * time.Minute
	}
	return d
}

// NearestWindow returns the tolerance of the nearest-slot strategy.
func (p PipelineConfig) NearestWindow() time.Duration {
	return durationOr(p.Window, 15*time.Minute)
}

// Label returns the display label of a target, defaulting to its name.
func (p PipelineConfig) Label(target string) string {
	if t, ok := p.Targets[target]; ok && t.Label != "" {
		return t.Label
	}
	return target
}

// ParseDurations parses a list of Go duration strings ("5s", "1m30s").
func ParseDurations(values []string) ([]time.Duration, error) {
	out := make([]time.Duration, 0, len(values))
	for _, v := range values {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", v, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("negative duration %q", v)
		}
		out = append(out, d)
	}
	return out, nil
}

// ParseWeekdays converts short or long weekday names into time.Weekday values.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if len(key) >= 3 {
			key = key[:3]
		}
		found := false
		for d := time.Sunday; d <= time.Saturday; d++ {
			if strings.ToLower(d.String()[:3]) == key {
				days = append(days, d)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
	}
	return days, nil
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}

func durationOr(value string, fallback time.Duration) time.Duration {
	d, err := parseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

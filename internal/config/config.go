// Package config provides configuration management for the scanner.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"equity-scanner/internal/analysis/scoring"
	"equity-scanner/internal/analysis/signals"
	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/logging"
	"equity-scanner/internal/monitor"
)

// ConfigFileName is the base name of the configuration file.
const ConfigFileName = "config"

// Config holds all application configuration.
type Config struct {
	Scan     ScanConfig        `mapstructure:"scan"`
	Scoring  ScoringConfig     `mapstructure:"scoring"`
	Signals  SignalsConfig     `mapstructure:"signals"`
	Cache    CacheConfig       `mapstructure:"cache"`
	Store    StoreConfig       `mapstructure:"store"`
	Monitor  MonitorConfig     `mapstructure:"monitor"`
	Notify   NotifyConfig      `mapstructure:"notify"`
	Schedule ScheduleConfig    `mapstructure:"schedule"`
	API      APIConfig         `mapstructure:"api"`
	Summary  SummaryConfig     `mapstructure:"summary"`
	Log      logging.LogConfig `mapstructure:"log"`
}

// ScanConfig holds scan orchestration settings.
type ScanConfig struct {
	Workers       int           `mapstructure:"workers" default:"10" validate:"gte=1,lte=256"`
	LookbackDays  int           `mapstructure:"lookback_days" default:"460" validate:"gte=300"`
	Universe      string        `mapstructure:"universe"`
	MarketSymbol  string        `mapstructure:"market_symbol" default:"QQQ"`
	RecommendTop  int           `mapstructure:"recommend_top" default:"10" validate:"gte=1"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout" default:"15s"`
	RetryAttempts int           `mapstructure:"retry_attempts" default:"3" validate:"gte=1,lte=10"`

	// BreakerFailures is the number of consecutive provider failures that
	// pause fetching for BreakerCooldown. Zero disables the breaker.
	BreakerFailures int           `mapstructure:"breaker_failures" default:"8" validate:"gte=0"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" default:"30s"`
}

// ScoringConfig holds scoring weights. An explicit [scoring.factor] table
// overrides the preset.
type ScoringConfig struct {
	FactorPreset  string                    `mapstructure:"factor_preset" default:"default" validate:"oneof=default aggressive conservative"`
	Factor        *scoring.FactorWeights    `mapstructure:"factor"`
	FinancialMode string                    `mapstructure:"financial_mode" default:"three_part" validate:"oneof=three_part five_part"`
	Financial     *scoring.FinancialWeights `mapstructure:"financial"`
	Blend         BlendConfig               `mapstructure:"blend"`
}

// BlendConfig weights the composite score.
type BlendConfig struct {
	Factor    float64 `mapstructure:"factor" default:"0.5" validate:"gte=0,lte=1"`
	Financial float64 `mapstructure:"financial" default:"0.3" validate:"gte=0,lte=1"`
	Risk      float64 `mapstructure:"risk" default:"0.2" validate:"gte=0,lte=1"`
}

// SignalsConfig holds entry and exit thresholds.
type SignalsConfig struct {
	RSIEntry      float64 `mapstructure:"rsi_entry" default:"35" validate:"gt=0,lt=100"`
	BBEntry       float64 `mapstructure:"bb_entry" default:"20" validate:"gte=0,lte=100"`
	MA50GapEntry  float64 `mapstructure:"ma50_gap_entry" default:"-3" validate:"lt=0"`
	DownDaysEntry int     `mapstructure:"down_days_entry" default:"3" validate:"gte=1"`
	MinConditions int     `mapstructure:"min_conditions" default:"3" validate:"gte=1,lte=4"`
	StopLossPct   float64 `mapstructure:"stop_loss_pct" default:"-7" validate:"lt=0"`
	TakeProfitPct float64 `mapstructure:"take_profit_pct" default:"15" validate:"gt=0"`
	RSIExit       float64 `mapstructure:"rsi_exit" default:"70" validate:"gt=0,lte=100"`
	MA50GapExit   float64 `mapstructure:"ma50_gap_exit" default:"-5" validate:"lt=0"`
}

// CacheConfig selects and configures the bar cache backend.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend" default:"memory" validate:"oneof=memory redis sqlite none"`
	TTL           time.Duration `mapstructure:"ttl" default:"6h"`
	MaxSize       int           `mapstructure:"max_size" default:"1000" validate:"gte=1"`
	RedisAddr     string        `mapstructure:"redis_addr" default:"localhost:6379"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" validate:"gte=0"`
	RedisPrefix   string        `mapstructure:"redis_prefix" default:"equity-scanner"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// MonitorConfig holds alert thresholds.
type MonitorConfig struct {
	PriceChangePct  float64 `mapstructure:"price_change_pct" default:"3" validate:"gt=0"`
	RSIOversold     float64 `mapstructure:"rsi_oversold" default:"30" validate:"gt=0,lt=100"`
	RSIOverbought   float64 `mapstructure:"rsi_overbought" default:"70" validate:"gt=0,lt=100"`
	StochOversold   float64 `mapstructure:"stoch_oversold" default:"20" validate:"gte=0,lte=100"`
	StochOverbought float64 `mapstructure:"stoch_overbought" default:"80" validate:"gte=0,lte=100"`
	VolumeSpike     float64 `mapstructure:"volume_spike" default:"2" validate:"gt=1"`
	ADXStrongTrend  float64 `mapstructure:"adx_strong_trend" default:"25" validate:"gt=0"`
}

// NotifyConfig holds notification configuration.
type NotifyConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level" default:"all" validate:"oneof=all alerts_only reports_only errors_only"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url" validate:"omitempty,url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIURL   string `mapstructure:"api_url" default:"https://api.telegram.org"`
}

// KafkaConfig holds Kafka publisher configuration.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic" default:"scanner.alerts"`
}

// ScheduleConfig holds the cron expressions of the scheduled jobs.
type ScheduleConfig struct {
	RecommendCron string `mapstructure:"recommend_cron" default:"30 16 * * 1-5"`
	MonitorCron   string `mapstructure:"monitor_cron" default:"*/30 9-16 * * 1-5"`
	Timezone      string `mapstructure:"timezone" default:"America/New_York"`
	Notify        bool   `mapstructure:"notify" default:"true"`
}

// APIConfig holds the HTTP server settings.
type APIConfig struct {
	Addr          string        `mapstructure:"addr" default:":8080"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout" default:"15s"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout" default:"2m"`
	MaxSymbols    int           `mapstructure:"max_symbols" default:"500" validate:"gte=1"`
	StreamHistory int           `mapstructure:"stream_history" default:"20" validate:"gte=0"`
}

// SummaryConfig holds the chat-completion settings.
type SummaryConfig struct {
	Model     string        `mapstructure:"model" default:"gpt-4o-mini"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	MaxTokens int           `mapstructure:"max_tokens" default:"400" validate:"gte=50"`
	Timeout   time.Duration `mapstructure:"timeout" default:"30s"`
}

// Enabled reports whether summaries can be produced.
func (s SummaryConfig) Enabled() bool {
	return s.APIKey != ""
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/equity-scanner"
	}
	return filepath.Join(home, ".config", "equity-scanner")
}

// Path returns the config file path inside configDir.
func Path(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, ConfigFileName+".toml")
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	cfg.fillPaths(DefaultConfigDir())
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A commented
// template is written when no config file exists yet.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := loadConfigFile(configDir, ConfigFileName, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	cfg.fillPaths(configDir)

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func (c *Config) fillPaths(configDir string) {
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(configDir, "scanner.db")
	}
	if c.Log.FilePath == "" {
		c.Log.FilePath = filepath.Join(configDir, "logs", "scanner.log")
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCANNER_OPENAI_API_KEY"); v != "" {
		cfg.Summary.APIKey = v
	}
	if v := os.Getenv("SCANNER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("SCANNER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scan.Workers = n
		}
	}
	if v := os.Getenv("SCANNER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SCANNER_TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.Telegram.BotToken = v
	}
}

var validate = validator.New()

// Validate checks field ranges and the cross-field constraints the
// component constructors would otherwise reject later.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return apperrors.NewValidationError(fe.Namespace(), fe.Value(), "failed "+fe.Tag()+" "+fe.Param())
		}
		return fmt.Errorf("%w: %v", apperrors.ErrConfigInvalid, err)
	}

	if _, err := c.ScoringConfig(); err != nil {
		return err
	}
	if err := c.Signals.Entry().Validate(); err != nil {
		return err
	}
	if err := c.Signals.Exit().Validate(); err != nil {
		return err
	}
	if err := c.Monitor.Thresholds().Validate(); err != nil {
		return err
	}

	if c.Notify.Webhook.Enabled && c.Notify.Webhook.URL == "" {
		return apperrors.NewValidationError("notify.webhook.url", "", "required when the webhook is enabled")
	}
	if c.Notify.Telegram.Enabled && (c.Notify.Telegram.BotToken == "" || c.Notify.Telegram.ChatID == "") {
		return apperrors.NewValidationError("notify.telegram", c.Notify.Telegram.ChatID, "bot_token and chat_id are required when telegram is enabled")
	}
	if c.Notify.Kafka.Enabled && len(c.Notify.Kafka.Brokers) == 0 {
		return apperrors.NewValidationError("notify.kafka.brokers", c.Notify.Kafka.Brokers, "at least one broker is required when kafka is enabled")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return apperrors.NewValidationError("schedule.timezone", c.Schedule.Timezone, err.Error())
	}

	return nil
}

// ScoringConfig resolves the preset and explicit weights into a validated
// scoring configuration.
func (c *Config) ScoringConfig() (scoring.Config, error) {
	factor, err := scoring.FactorPreset(c.Scoring.FactorPreset)
	if err != nil {
		return scoring.Config{}, apperrors.NewValidationError("scoring.factor_preset", c.Scoring.FactorPreset, err.Error())
	}
	if c.Scoring.Factor != nil {
		factor = *c.Scoring.Factor
	}

	mode := scoring.FinancialMode(c.Scoring.FinancialMode)
	financial := scoring.DefaultFinancialWeights(mode)
	if c.Scoring.Financial != nil {
		financial = *c.Scoring.Financial
	}

	sc := scoring.Config{
		Factor:           factor,
		FinancialMode:    mode,
		FinancialWeights: financial,
		Blend: scoring.BlendWeights{
			Factor:    c.Scoring.Blend.Factor,
			Financial: c.Scoring.Blend.Financial,
			Risk:      c.Scoring.Blend.Risk,
		},
	}
	if err := sc.Validate(); err != nil {
		return scoring.Config{}, err
	}
	return sc, nil
}

// Entry returns the entry thresholds.
func (s SignalsConfig) Entry() signals.EntryConfig {
	return signals.EntryConfig{
		RSIMax:        s.RSIEntry,
		BBPositionMax: s.BBEntry,
		MA50GapMax:    s.MA50GapEntry,
		MinDownDays:   s.DownDaysEntry,
		MinConditions: s.MinConditions,
	}
}

// Exit returns the exit thresholds.
func (s SignalsConfig) Exit() signals.ExitConfig {
	return signals.ExitConfig{
		StopLossPct:   s.StopLossPct,
		TakeProfitPct: s.TakeProfitPct,
		RSIExit:       s.RSIExit,
		MA50GapExit:   s.MA50GapExit,
	}
}

// Thresholds returns the monitor alert thresholds.
func (m MonitorConfig) Thresholds() monitor.Thresholds {
	return monitor.Thresholds{
		PriceChangePct:  m.PriceChangePct,
		RSIOversold:     m.RSIOversold,
		RSIOverbought:   m.RSIOverbought,
		StochOversold:   m.StochOversold,
		StochOverbought: m.StochOverbought,
		VolumeSpike:     m.VolumeSpike,
		ADXStrongTrend:  m.ADXStrongTrend,
	}
}

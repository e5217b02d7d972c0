package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Equity Scanner Configuration

[scan]
# Concurrent symbol analyses
workers = 10
# Calendar days of daily bars to fetch (the 200-day average needs ~300)
lookback_days = 460
# Universe YAML file; empty uses the built-in list
universe = ""
# Index used for the market condition
market_symbol = "QQQ"
# Default number of recommendations
recommend_top = 10
# Provider request timeout and attempts
fetch_timeout = "15s"
retry_attempts = 3
# Consecutive provider failures that pause fetching; 0 disables
breaker_failures = 8
breaker_cooldown = "30s"

[scoring]
# Factor weight preset: default, aggressive, conservative
factor_preset = "default"
# Financial score: three_part or five_part
financial_mode = "three_part"

# Explicit factor weights override the preset and must sum to 1
# [scoring.factor]
# momentum = 0.30
# quality = 0.25
# value = 0.20
# profitability = 0.15
# low_volatility = 0.10

[scoring.blend]
factor = 0.5
financial = 0.3
risk = 0.2

[signals]
# Entry rules
rsi_entry = 35.0
bb_entry = 20.0
ma50_gap_entry = -3.0
down_days_entry = 3
min_conditions = 3
# Exit rules (percent from buy price)
stop_loss_pct = -7.0
take_profit_pct = 15.0
rsi_exit = 70.0
ma50_gap_exit = -5.0

[cache]
# Bar cache backend: memory, redis, sqlite, none
backend = "memory"
ttl = "6h"
max_size = 1000
redis_addr = "localhost:6379"
redis_password = ""
redis_db = 0
redis_prefix = "equity-scanner"

[store]
# SQLite database; empty uses scanner.db in this directory
path = ""

[monitor]
price_change_pct = 3.0
rsi_oversold = 30.0
rsi_overbought = 70.0
stoch_oversold = 20.0
stoch_overbought = 80.0
volume_spike = 2.0
adx_strong_trend = 25.0

[notify]
enabled = false
# Notification level: all, alerts_only, reports_only, errors_only
level = "all"

[notify.webhook]
enabled = false
url = ""

[notify.telegram]
enabled = false
bot_token = ""
chat_id = ""

[notify.kafka]
enabled = false
brokers = []
topic = "scanner.alerts"

[schedule]
recommend_cron = "30 16 * * 1-5"
monitor_cron = "*/30 9-16 * * 1-5"
timezone = "America/New_York"
# Send job results through the notify channels
notify = true

[api]
addr = ":8080"
read_timeout = "15s"
write_timeout = "2m"
max_symbols = 500
# Notifications replayed to a new /api/stream client; 0 disables the stream
stream_history = 20

[summary]
# Summaries are disabled without an API key (or SCANNER_OPENAI_API_KEY)
model = "gpt-4o-mini"
api_key = ""
max_tokens = 400
timeout = "30s"

[log]
level = "info"
console = true
file = true
max_size = 50
max_backups = 5
max_age = 30
`

// WriteTemplate writes the commented default config into configDir and
// returns its path. An existing file is left untouched.
func WriteTemplate(configDir string) (string, error) {
	path := Path(configDir)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing config template: %w", err)
	}
	return path, nil
}

// createTemplateConfig writes the template on first run. Loading then
// continues with the defaults, which the template mirrors.
func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

package store

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MinCandlesFloor is the fewest candles the slow EMA is ever computed from.
const MinCandlesFloor = 30

type Config struct {
	Mode        string  `yaml:"mode"`
	DataSource  string  `yaml:"data_source"`
	Symbol      string  `yaml:"symbol"`
	PollSeconds float64 `yaml:"poll_seconds"`
	AutoStart   bool    `yaml:"auto_start"`
	Exchange    struct {
		Testnet        bool    `yaml:"testnet"`
		CandleInterval string  `yaml:"candle_interval"`
		CandleLimit    int     `yaml:"candle_limit"`
		BookDepth      int     `yaml:"book_depth"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		QuoteAsset     string  `yaml:"quote_asset"`
		PaperBalance   float64 `yaml:"paper_balance"`
	} `yaml:"exchange"`
	Leverage struct {
		Min      int     `yaml:"min"`
		Max      int     `yaml:"max"`
		Exponent float64 `yaml:"exponent"`
	} `yaml:"leverage"`
	Risk struct {
		MarginUsagePct       float64 `yaml:"margin_usage_pct"`
		DrawdownClosePct     float64 `yaml:"drawdown_close_pct"`
		FeeRate              float64 `yaml:"fee_rate"`
		MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
		DerateAfterLosses    int     `yaml:"derate_after_losses"`
		DerateLeverage       float64 `yaml:"derate_leverage"`
		DerateScalp          float64 `yaml:"derate_scalp"`
		ScalpMin             float64 `yaml:"scalp_min"`
		ScalpMax             float64 `yaml:"scalp_max"`
		CloseOnStop          bool    `yaml:"close_on_stop"`
	} `yaml:"risk"`
	Signal struct {
		EMAFast      int       `yaml:"ema_fast"`
		EMASlow      int       `yaml:"ema_slow"`
		MinCandles   int       `yaml:"min_candles"`
		RelThreshold float64   `yaml:"rel_threshold"`
		LearningRate float64   `yaml:"learning_rate"`
		BookLevels   int       `yaml:"book_levels"`
		Prior        []float64 `yaml:"prior"`
	} `yaml:"signal"`
	Monitor struct {
		MinWaitSeconds float64 `yaml:"min_wait_seconds"`
		WindowSeconds  float64 `yaml:"window_seconds"`
		MinChecks      int     `yaml:"min_checks"`
		MaxChecks      int     `yaml:"max_checks"`
	} `yaml:"monitor"`
	News struct {
		Enabled         bool   `yaml:"enabled"`
		Query           string `yaml:"query"`
		PageSize        int    `yaml:"page_size"`
		CacheSeconds    int    `yaml:"cache_seconds"`
		RatePerMinute   int    `yaml:"rate_per_minute"`
		ScraperFallback bool   `yaml:"scraper_fallback"`
		FeedURL         string `yaml:"feed_url"`
	} `yaml:"news"`
	Onchain struct {
		Enabled       bool    `yaml:"enabled"`
		MinValue      float64 `yaml:"min_value"`
		RatePerMinute int     `yaml:"rate_per_minute"`
	} `yaml:"onchain"`
	Journal struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"journal"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	TradeLog struct {
		Dir           string `yaml:"dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"trade_log"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.DataSource != "STATIC" && c.DataSource != "LIVE" {
		return fmt.Errorf("invalid data_source '%s': must be 'STATIC' or 'LIVE'", c.DataSource)
	}
	if c.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if c.PollSeconds <= 0 {
		return fmt.Errorf("poll_seconds must be positive, got %.2f", c.PollSeconds)
	}
	if c.Leverage.Min < 1 || c.Leverage.Max < c.Leverage.Min {
		return fmt.Errorf("leverage range invalid: min=%d max=%d", c.Leverage.Min, c.Leverage.Max)
	}
	if c.Risk.MarginUsagePct <= 0 || c.Risk.MarginUsagePct > 100 {
		return fmt.Errorf("risk.margin_usage_pct must be between 0-100, got %.2f", c.Risk.MarginUsagePct)
	}
	if c.Risk.DrawdownClosePct <= 0 || c.Risk.DrawdownClosePct >= 1 {
		return fmt.Errorf("risk.drawdown_close_pct must be in (0,1), got %.4f", c.Risk.DrawdownClosePct)
	}
	if c.Risk.FeeRate < 0 {
		return fmt.Errorf("risk.fee_rate cannot be negative, got %.6f", c.Risk.FeeRate)
	}
	if c.Risk.MaxConsecutiveLosses < 1 {
		return fmt.Errorf("risk.max_consecutive_losses must be at least 1, got %d", c.Risk.MaxConsecutiveLosses)
	}
	if c.Risk.ScalpMin <= 0 || c.Risk.ScalpMax < c.Risk.ScalpMin {
		return fmt.Errorf("risk scalp range invalid: min=%.5f max=%.5f", c.Risk.ScalpMin, c.Risk.ScalpMax)
	}
	if c.Signal.EMAFast <= 0 || c.Signal.EMASlow <= c.Signal.EMAFast {
		return fmt.Errorf("signal ema spans invalid: fast=%d slow=%d", c.Signal.EMAFast, c.Signal.EMASlow)
	}
	if c.Signal.MinCandles < MinCandlesFloor {
		return fmt.Errorf("signal.min_candles must be at least %d, got %d", MinCandlesFloor, c.Signal.MinCandles)
	}
	if c.Signal.RelThreshold < 0 || c.Signal.LearningRate <= 0 {
		return fmt.Errorf("signal thresholds invalid: rel_threshold=%.6f learning_rate=%.4f", c.Signal.RelThreshold, c.Signal.LearningRate)
	}
	if c.Exchange.CandleLimit < c.Signal.MinCandles {
		return fmt.Errorf("exchange.candle_limit %d is below signal.min_candles %d", c.Exchange.CandleLimit, c.Signal.MinCandles)
	}
	if c.Monitor.MinWaitSeconds <= 0 || c.Monitor.MinChecks < 1 || c.Monitor.MaxChecks < c.Monitor.MinChecks {
		return fmt.Errorf("monitor timing invalid: min_wait=%.2f checks=[%d,%d]", c.Monitor.MinWaitSeconds, c.Monitor.MinChecks, c.Monitor.MaxChecks)
	}
	if len(c.Signal.Prior) != 3 {
		return fmt.Errorf("signal.prior must have exactly 3 weights, got %d", len(c.Signal.Prior))
	}
	if c.Journal.Backend != "json" && c.Journal.Backend != "sqlite" {
		return fmt.Errorf("journal.backend must be 'json' or 'sqlite', got '%s'", c.Journal.Backend)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML over the defaults and validates. Keys present in
// the document win, so an explicit zero (fee_rate: 0) is kept.
func ParseConfig(b []byte) (*Config, error) {
	c := Default()
	// derived from the backend after decoding
	c.Journal.Path = ""
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	if c.Journal.Path == "" {
		c.Journal.Path = defaultJournalPath(c.Journal.Backend)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return c, nil
}

func defaultJournalPath(backend string) string {
	if backend == "sqlite" {
		return "bot_state.db"
	}
	return "bot_state.json"
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.ApplyDefaults()
	return &c
}

func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.DataSource == "" {
		c.DataSource = "STATIC"
	}
	if c.Symbol == "" {
		c.Symbol = "ETHUSDT"
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 1.0
	}
	if c.Exchange.CandleInterval == "" {
		c.Exchange.CandleInterval = "1m"
	}
	if c.Exchange.CandleLimit == 0 {
		c.Exchange.CandleLimit = 120
	}
	if c.Exchange.BookDepth == 0 {
		c.Exchange.BookDepth = 50
	}
	if c.Exchange.TimeoutSeconds == 0 {
		c.Exchange.TimeoutSeconds = 8
	}
	if c.Exchange.QuoteAsset == "" {
		c.Exchange.QuoteAsset = "USDT"
	}
	if c.Exchange.PaperBalance == 0 {
		c.Exchange.PaperBalance = 1000.0
	}
	if c.Leverage.Min == 0 {
		c.Leverage.Min = 9
	}
	if c.Leverage.Max == 0 {
		c.Leverage.Max = 60
	}
	if c.Leverage.Exponent == 0 {
		c.Leverage.Exponent = 1.5
	}
	if c.Risk.MarginUsagePct == 0 {
		c.Risk.MarginUsagePct = 80.0
	}
	if c.Risk.DrawdownClosePct == 0 {
		c.Risk.DrawdownClosePct = 0.03
	}
	if c.Risk.FeeRate == 0 {
		c.Risk.FeeRate = 0.0006
	}
	if c.Risk.MaxConsecutiveLosses == 0 {
		c.Risk.MaxConsecutiveLosses = 5
	}
	if c.Risk.DerateAfterLosses == 0 {
		c.Risk.DerateAfterLosses = 3
	}
	if c.Risk.DerateLeverage == 0 {
		c.Risk.DerateLeverage = 0.6
	}
	if c.Risk.DerateScalp == 0 {
		c.Risk.DerateScalp = 0.8
	}
	if c.Risk.ScalpMin == 0 {
		c.Risk.ScalpMin = 0.0004
	}
	if c.Risk.ScalpMax == 0 {
		c.Risk.ScalpMax = 0.002
	}
	if c.Signal.EMAFast == 0 {
		c.Signal.EMAFast = 5
	}
	if c.Signal.EMASlow == 0 {
		c.Signal.EMASlow = 30
	}
	if c.Signal.MinCandles == 0 {
		c.Signal.MinCandles = 30
	}
	if c.Signal.RelThreshold == 0 {
		c.Signal.RelThreshold = 0.0003
	}
	if c.Signal.LearningRate == 0 {
		c.Signal.LearningRate = 0.03
	}
	if c.Signal.BookLevels == 0 {
		c.Signal.BookLevels = 20
	}
	if len(c.Signal.Prior) == 0 {
		c.Signal.Prior = []float64{0.6, 0.3, 0.1}
	}
	if c.Monitor.MinWaitSeconds == 0 {
		c.Monitor.MinWaitSeconds = 0.2
	}
	if c.Monitor.WindowSeconds == 0 {
		c.Monitor.WindowSeconds = 2.0
	}
	if c.Monitor.MinChecks == 0 {
		c.Monitor.MinChecks = 3
	}
	if c.Monitor.MaxChecks == 0 {
		c.Monitor.MaxChecks = 30
	}
	if c.News.Query == "" {
		c.News.Query = "ethereum OR eth"
	}
	if c.News.PageSize == 0 {
		c.News.PageSize = 5
	}
	if c.News.CacheSeconds == 0 {
		c.News.CacheSeconds = 60
	}
	if c.News.RatePerMinute == 0 {
		c.News.RatePerMinute = 30
	}
	if c.Onchain.MinValue == 0 {
		c.Onchain.MinValue = 200
	}
	if c.Onchain.RatePerMinute == 0 {
		c.Onchain.RatePerMinute = 60
	}
	if c.Journal.Backend == "" {
		c.Journal.Backend = "json"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = defaultJournalPath(c.Journal.Backend)
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":5000"
	}
	if c.TradeLog.Dir == "" {
		c.TradeLog.Dir = "logs"
	}
}

func (c *Config) PollInterval() time.Duration {
	return seconds(c.PollSeconds)
}

// MarginFraction is the share of balance committed as margin, never below 1%.
func (c *Config) MarginFraction() float64 {
	return math.Max(0.01, c.Risk.MarginUsagePct/100.0)
}

// MonitorWait is the sleep between exit checks: max(min_wait, poll/2).
func (c *Config) MonitorWait() time.Duration {
	return seconds(math.Max(c.Monitor.MinWaitSeconds, c.PollSeconds/2))
}

// MonitorChecks bounds the exit loop so that it spans roughly window_seconds.
func (c *Config) MonitorChecks() int {
	wait := math.Max(c.Monitor.MinWaitSeconds, c.PollSeconds/2)
	n := c.Monitor.WindowSeconds / wait
	n = math.Min(float64(c.Monitor.MaxChecks), n)
	n = math.Max(float64(c.Monitor.MinChecks), n)
	return int(n)
}

func (c *Config) Paper() bool {
	return c.Mode == "DRY_RUN"
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

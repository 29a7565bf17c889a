package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("mode: DRY_RUN\n"))
	require.NoError(t, err)

	assert.Equal(t, "STATIC", cfg.DataSource)
	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, 9, cfg.Leverage.Min)
	assert.Equal(t, 60, cfg.Leverage.Max)
	assert.Equal(t, 0.8, cfg.MarginFraction())
	assert.Equal(t, 5, cfg.Risk.MaxConsecutiveLosses)
	assert.Equal(t, []float64{0.6, 0.3, 0.1}, cfg.Signal.Prior)
	assert.Equal(t, "bot_state.json", cfg.Journal.Path)
	assert.Equal(t, time.Second, cfg.PollInterval())
	assert.True(t, cfg.Paper())
}

func TestMonitorTiming(t *testing.T) {
	cfg := Default()

	// poll 1s -> wait 0.5s, 2s window -> 4 checks
	assert.Equal(t, 500*time.Millisecond, cfg.MonitorWait())
	assert.Equal(t, 4, cfg.MonitorChecks())

	// fast polling is floored at 0.2s and capped at 10 checks by the window
	cfg.PollSeconds = 0.1
	assert.Equal(t, 200*time.Millisecond, cfg.MonitorWait())
	assert.Equal(t, 10, cfg.MonitorChecks())

	// slow polling never drops below the minimum check count
	cfg.PollSeconds = 10
	assert.Equal(t, 5*time.Second, cfg.MonitorWait())
	assert.Equal(t, 3, cfg.MonitorChecks())
}

func TestMarginFractionFloor(t *testing.T) {
	cfg := Default()
	cfg.Risk.MarginUsagePct = 0.5
	assert.Equal(t, 0.01, cfg.MarginFraction())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"mode", "mode: PAPER\n"},
		{"data source", "data_source: FILE\n"},
		{"leverage", "leverage:\n  min: 20\n  max: 10\n"},
		{"margin", "risk:\n  margin_usage_pct: 150\n"},
		{"drawdown", "risk:\n  drawdown_close_pct: 1.5\n"},
		{"ema spans", "signal:\n  ema_fast: 30\n  ema_slow: 5\n"},
		{"prior", "signal:\n  prior: [0.5, 0.5]\n"},
		{"min candles", "signal:\n  min_candles: 10\n"},
		{"candle limit", "exchange:\n  candle_limit: 20\n"},
		{"poll", "poll_seconds: 0\n"},
		{"journal", "journal:\n  backend: redis\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "mode: LIVE\ndata_source: LIVE\nsymbol: ETHUSDT\npoll_seconds: 2\njournal:\n  backend: sqlite\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Paper())
	assert.Equal(t, "bot_state.db", cfg.Journal.Path)
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestExplicitZeroOverridesDefault(t *testing.T) {
	cfg, err := ParseConfig([]byte("risk:\n  fee_rate: 0\n  drawdown_close_pct: 0.05\nsignal:\n  prior: [0.5, 0.25, 0.25]\n"))
	require.NoError(t, err)

	assert.Equal(t, 0.0, cfg.Risk.FeeRate)
	assert.Equal(t, 0.05, cfg.Risk.DrawdownClosePct)
	assert.Equal(t, []float64{0.5, 0.25, 0.25}, cfg.Signal.Prior)
	// untouched keys in the same section keep their defaults
	assert.Equal(t, 5, cfg.Risk.MaxConsecutiveLosses)
	assert.Equal(t, 0.0004, cfg.Risk.ScalpMin)
}

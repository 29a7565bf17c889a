package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/joho/godotenv"

	"eth-scalper/internal/api"
	"eth-scalper/internal/engine"
	"eth-scalper/internal/engine/engineobs"
	"eth-scalper/internal/eod"
	"eth-scalper/internal/eod/eodobs"
	"eth-scalper/internal/exchange/binance"
	"eth-scalper/internal/exchange/coingecko"
	"eth-scalper/internal/exchange/exchangeobs"
	"eth-scalper/internal/exchange/paper"
	"eth-scalper/internal/interfaces"
	"eth-scalper/internal/journal"
	"eth-scalper/internal/logger"
	"eth-scalper/internal/news"
	"eth-scalper/internal/onchain"
	"eth-scalper/internal/store"
	"eth-scalper/internal/trace"
	"eth-scalper/internal/tradelog"
)

const staticStartPrice = 2000.0

// initializeSystem initializes logger, tracer, and EOD summarizer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	eod.SetDefaultSummarizer(eodobs.Wrap(eod.NewSummarizer()))
	return nil
}

func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("SCALPER_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	tradelog.SetDir(cfg.TradeLog.Dir)
	return cfg, nil
}

// compressOldLogs gzips trade logs older than the retention window.
func compressOldLogs(ctx context.Context, cfg *store.Config) {
	if cfg.TradeLog.RetentionDays <= 0 {
		return
	}
	if err := tradelog.CompressOlder(cfg.TradeLog.RetentionDays); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

type credentials struct {
	binanceKey, binanceSecret string
	newsAPIKey                string
	etherscanKey              string
}

func loadCredentials() credentials {
	return credentials{
		binanceKey:    os.Getenv("BINANCE_API_KEY"),
		binanceSecret: os.Getenv("BINANCE_API_SECRET"),
		newsAPIKey:    os.Getenv("NEWSAPI_KEY"),
		etherscanKey:  os.Getenv("ETHERSCAN_API_KEY"),
	}
}

func (c credentials) exchange() bool {
	return c.binanceKey != "" && c.binanceSecret != ""
}

// newHTTPClient is shared by every outbound REST client so they reuse one
// connection pool and the configured exchange timeout.
func newHTTPClient(cfg *store.Config) *http.Client {
	return &http.Client{Timeout: time.Duration(cfg.Exchange.TimeoutSeconds) * time.Second}
}

func clientOptions(hc *http.Client) []api.ClientOption {
	return []api.ClientOption{api.WithHTTPClient(hc), api.WithLogging(logger.IsDebugEnabled())}
}

// initializePorts picks market data and execution by mode and data source, and
// wraps both with observability.
func initializePorts(ctx context.Context, cfg *store.Config, creds credentials, js journal.Store, hc *http.Client) (interfaces.MarketData, interfaces.Execution) {
	var market interfaces.MarketData
	var fc *futures.Client
	if cfg.DataSource == "LIVE" || !cfg.Paper() {
		fc = binance.NewFuturesClient(cfg, creds.binanceKey, creds.binanceSecret)
		fc.HTTPClient = hc
		gecko := coingecko.New(append(clientOptions(hc), api.WithRateLimit(30, 1))...)
		market = binance.NewMarket(fc, cfg, gecko)
		logger.Info(ctx, "Using LIVE market data from Binance futures", "symbol", cfg.Symbol, "testnet", cfg.Exchange.Testnet)
	} else {
		market = paper.NewStaticMarket(staticStartPrice, time.Now().UnixNano())
		logger.Info(ctx, "Using STATIC synthetic market data")
	}
	market = exchangeobs.WrapMarket(market)

	var exec interfaces.Execution
	if cfg.Paper() {
		balance := js.Load(ctx).Balance
		if balance <= 0 {
			balance = cfg.Exchange.PaperBalance
		}
		exec = paper.NewBroker(balance, market.LastPrice)
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated", "balance", balance)
	} else {
		if !creds.exchange() {
			logger.Warn(ctx, "LIVE mode without BINANCE_API_KEY/BINANCE_API_SECRET; start is refused")
		}
		exec = binance.NewAccount(fc, cfg)
	}
	return market, exchangeobs.WrapExecution(exec)
}

// initializeSentiment builds the headline service, with the Etherscan whale
// watcher when a key is configured.
func initializeSentiment(ctx context.Context, cfg *store.Config, creds credentials, hc *http.Client) interfaces.Sentiment {
	var whales news.WhaleSource
	if cfg.Onchain.Enabled && creds.etherscanKey != "" {
		whales = onchain.NewEtherscan(creds.etherscanKey, append(clientOptions(hc), api.WithRateLimit(cfg.Onchain.RatePerMinute, 1))...)
	} else if cfg.Onchain.Enabled {
		logger.Warn(ctx, "On-chain watcher enabled but ETHERSCAN_API_KEY is not set")
	}
	if cfg.News.Enabled && creds.newsAPIKey == "" && !cfg.News.ScraperFallback {
		logger.Warn(ctx, "News enabled with no NEWSAPI_KEY and no scraper fallback; sentiment stays neutral")
	}
	return news.NewServiceFromConfig(cfg, creds.newsAPIKey, whales, clientOptions(hc)...)
}

func initializeEngine(cfg *store.Config, market interfaces.MarketData, sent interfaces.Sentiment, exec interfaces.Execution, js journal.Store) interfaces.Engine {
	eng := engine.New(cfg, market, sent, exec, js)
	return engineobs.Wrap(eng)
}

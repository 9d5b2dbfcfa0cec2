// Command arbbot runs the parity arbitrage engine: it loads per-profile
// configuration, starts the venue P and venue K suppliers, and drives one
// arbitrage engine per profile from the profile multiplexer.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mreid/parity-arb/internal/arbengine"
	"github.com/mreid/parity-arb/internal/coinfsm"
	"github.com/mreid/parity-arb/internal/config"
	"github.com/mreid/parity-arb/internal/metrics"
	"github.com/mreid/parity-arb/internal/multiplexer"
	"github.com/mreid/parity-arb/internal/obslog"
	"github.com/mreid/parity-arb/internal/runlog"
	"github.com/mreid/parity-arb/internal/venue/kalshivenue"
	"github.com/mreid/parity-arb/internal/venue/polyvenue"
)

func main() {
	var (
		profilesFlag string
		coinsFlag    string
		auto         bool
		headless     bool
		configPath   string
	)

	root := &cobra.Command{
		Use:   "arbbot",
		Short: "Paper-trading parity arbitrage engine across venue P and venue K",
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles := splitCSV(profilesFlag)
			coins := splitCSV(coinsFlag)
			return run(configPath, profiles, coins, auto, headless)
		},
	}

	root.Flags().StringVar(&profilesFlag, "profiles", "default", "comma-separated profile names to run")
	root.Flags().StringVar(&coinsFlag, "coins", "BTC", "comma-separated coin symbols to trade")
	root.Flags().BoolVar(&auto, "auto", false, "run unattended, no interactive confirmation on entries")
	root.Flags().BoolVar(&headless, "headless", false, "do not write per-tick render summaries to the run directory")
	root.Flags().StringVar(&configPath, "config", "configs/config.yaml", "path to the profile configuration YAML")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func run(configPath string, profiles, coins []string, auto, headless bool) error {
	// Venue credentials (KALSHI_API_KEY_ID, etc.) are commonly kept in a
	// local .env file during development, following the teacher's config
	// loader; a missing .env is not an error, real env vars still apply.
	_ = godotenv.Load()

	zl, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer zl.Sync()

	doc, err := config.Load(configPath)
	if err != nil {
		zl.Error("config error", zap.Error(err))
		os.Exit(1)
	}
	if err := doc.Validate(); err != nil {
		zl.Error("config error", zap.Error(err))
		os.Exit(1)
	}

	runDir, err := runlog.Allocate(".")
	if err != nil {
		zl.Error("run directory allocation failed", zap.Error(err))
		os.Exit(1)
	}
	defer runDir.Close()
	_ = runDir.System.Log(runlog.NewSystemEvent(fmt.Sprintf("arbbot starting, profiles=%v coins=%v auto=%v headless=%v", profiles, coins, auto, headless)))

	evalIntervalMs := multiplexer.DefaultEvalIntervalMs
	if v := os.Getenv("ARB_EVAL_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			zl.Error("config error", zap.String("field", "ARB_EVAL_INTERVAL_MS"), zap.String("value", v))
			os.Exit(1)
		}
		evalIntervalMs = n
	}

	reg := prometheus.NewRegistry()
	mset := metrics.NewSet(reg)

	clock := func() int64 { return time.Now().UnixMilli() }
	startedMs := clock()

	kalshiCfg := kalshivenue.VenueConfig{
		APIKeyID:    os.Getenv("KALSHI_API_KEY_ID"),
		PrivKeyPath: envDefault("KALSHI_PRIV_KEY_PATH", "./kalshi_private_key.pem"),
		Env:         envDefault("KALSHI_ENV", "demo"),
	}
	polyCfg := polyvenue.VenueConfig{
		GammaBaseURL: envDefault("POLY_GAMMA_BASE_URL", "https://gamma-api.polymarket.com"),
		CLOBBaseURL:  envDefault("POLY_CLOB_BASE_URL", "https://clob.polymarket.com"),
		WSMarketURL:  envDefault("POLY_WS_MARKET_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		EventSlugs:   map[string]string{"BTC": "bitcoin-up-or-down", "ETH": "ethereum-up-or-down"},
	}

	sysLogger := obslog.New(zl, "system", 256, clock)

	supplierK, err := kalshivenue.New(kalshiCfg, sysLogger)
	if err != nil {
		sysLogger.Log("kalshi supplier init failed: "+err.Error(), obslog.LevelError)
		os.Exit(1)
	}
	supplierP := polyvenue.New(polyCfg, sysLogger)

	if err := supplierP.Start(coins); err != nil {
		sysLogger.Log("venue P start failed: "+err.Error(), obslog.LevelError)
	}
	if err := supplierK.Start(coins); err != nil {
		sysLogger.Log("venue K start failed: "+err.Error(), obslog.LevelError)
	}

	engines := make([]*arbengine.Engine, 0, len(profiles))
	for _, profile := range profiles {
		pc, ok := doc.Profiles[profile]
		if !ok {
			sysLogger.Log(fmt.Sprintf("profile %q not found in config, skipping", profile), obslog.LevelWarn)
			_ = runDir.Mismatch.Log(runlog.NewMismatch(profile, "", "profile not found in config"))
			continue
		}

		if _, err := runDir.Profile(profile); err != nil {
			sysLogger.Log("profile log open failed: "+err.Error(), obslog.LevelError)
			os.Exit(1)
		}

		cfgs := make(map[string]coinfsm.Config, len(coins))
		profileCoins := make([]string, 0, len(coins))
		for _, coin := range coins {
			cc, ok := pc.Coins[coin]
			if !ok {
				sysLogger.Log(fmt.Sprintf("profile %q: coin %s requested on the command line but not configured, skipping", profile, coin), obslog.LevelWarn)
				_ = runDir.Mismatch.Log(runlog.NewMismatch(profile, coin, "coin requested but not present in profile config"))
				continue
			}
			cfgs[coin] = toEngineConfig(cc)
			profileCoins = append(profileCoins, coin)
		}

		profileLogger := obslog.New(zl, profile, 512, clock)
		sink := runlog.EngineSink{Dir: runDir}
		engines = append(engines, arbengine.New(profile, profileCoins, cfgs, profileLogger, mset, sink, startedMs))
	}

	mux := multiplexer.New(engines, supplierP, supplierK, multiplexer.Config{
		EvalIntervalMs: evalIntervalMs,
		Now:            clock,
		Render:         renderFunc(headless, runDir),
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		sysLogger.Log("received shutdown signal", obslog.LevelInfo)
		mux.Stop()
	}()

	mux.Run()
	sysLogger.Log("arbbot stopped", obslog.LevelInfo)
	return nil
}

func toEngineConfig(cc config.CoinConfig) coinfsm.Config {
	return coinfsm.Config{
		TradeAllowedTimeLeft: cc.TradeAllowedTimeLeft,
		TradeStopTimeLeft:    cc.TradeStopTimeLeft,
		MinGap:               cc.MinGap,
		MaxSpendTotal:        cc.MaxSpendTotal,
		MinSpendTotal:        cc.MinSpendTotal,
		MaxSpread:            cc.MaxSpread,
		MinDepthValue:        cc.MinDepthValue,
		MaxPriceStalenessSec: cc.MaxPriceStalenessSec,
		FillUsd:              cc.FillUsd,
		DecisionLatencyMs:    cc.DecisionLatencyMs,
		CooldownMs:           cc.CooldownMs,
	}
}

// renderFunc persists each render tick's per-profile summary as a "render"
// record in that profile's <profile>.log sink; the terminal dashboard (a
// separate process per spec §4.11) tails the run directory independently.
// When headless, rendering is skipped entirely.
func renderFunc(headless bool, runDir *runlog.Dir) multiplexer.RenderFunc {
	if headless {
		return func(int64, []multiplexer.RenderView) {}
	}
	return func(nowMs int64, views []multiplexer.RenderView) {
		for _, v := range views {
			sink, err := runDir.Profile(v.Engine)
			if err != nil {
				continue
			}
			_ = sink.Log(map[string]any{
				"type":    "render",
				"profile": v.Engine,
				"ts_ms":   nowMs,
				"summary": v.Summary,
			})
		}
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

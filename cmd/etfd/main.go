package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/basketfi/etf-engine/internal/config"
	"github.com/basketfi/etf-engine/internal/dex"
	"github.com/basketfi/etf-engine/internal/engine"
	"github.com/basketfi/etf-engine/internal/ledger"
	"github.com/basketfi/etf-engine/internal/logger"
	"github.com/basketfi/etf-engine/internal/oracle"
	"github.com/basketfi/etf-engine/internal/rebalancer"
	"github.com/basketfi/etf-engine/internal/state"
	"github.com/basketfi/etf-engine/internal/types"
	"github.com/basketfi/etf-engine/internal/utils"
	"github.com/basketfi/etf-engine/internal/web"
)

const (
	DEFAULT_CONFIG_NAME    = "default"
	DEFAULT_CONFIG_VERSION = 1
)

// main is the entry point for the ETF tier engine daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("ETF Tier Engine Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load Engine Parameters
	params, err := state.LoadActiveEngineParameters(DEFAULT_CONFIG_NAME)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load active engine parameters, using defaults and saving.")
		defaultParams := config.DefaultEngineParameters
		if _, err := state.SaveEngineParameters(defaultParams, DEFAULT_CONFIG_NAME, DEFAULT_CONFIG_VERSION, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default engine parameters.")
		}
		params = &defaultParams
	}
	log.Info().Msg("Engine parameters loaded successfully.")

	if params.PayoutMode != "pro_rata" {
		log.Fatal().Str("payout_mode", params.PayoutMode).
			Msg("Unsupported payout mode; only pro_rata redemptions are implemented")
	}

	minDeposit, err := utils.ParseDec(params.MinDepositUSD)
	if err != nil {
		log.Fatal().Err(err).Str("min_deposit_usd", params.MinDepositUSD).
			Msg("Invalid minimum deposit in engine parameters")
	}
	targetTier, ok := types.TierFromName(params.TargetTier)
	if !ok {
		log.Fatal().Str("target_tier", params.TargetTier).
			Msg("Target tier in engine parameters is not on the ladder")
	}

	store := state.NewStore()

	// --- 2. Price Oracle Initialization ---
	chainOracle, err := oracle.NewRESTChainOracle(config.ChainOracleREST)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize chain oracle client")
	}
	priceAPI, err := oracle.NewPriceAPIClient(config.PriceAPI, config.AssetToAPIId)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize price API client")
	}

	oracleCfg := oracle.Config{
		MaxPriceAge:           time.Duration(params.MaxPriceAgeSeconds) * time.Second,
		MaxDeviationBps:       params.MaxDeviationBps,
		DisableStalenessCheck: params.StalenessCheckDisabled,
	}
	aggregator, err := oracle.NewAggregator(oracleCfg, chainOracle, priceAPI, store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize price oracle aggregator")
	}

	// --- 3. Rebalancer Initialization (with Safety Switch) ---
	liveAdapter, err := dex.NewRESTAdapter(config.DexAPI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize DEX adapter")
	}
	var dexAdapter dex.Adapter
	if config.Mode == config.ModeManage {
		log.Warn().Msg("Initializing engine in MANAGE mode. Corrective swaps will be executed.")
		dexAdapter = liveAdapter
	} else {
		log.Info().Msg("Initializing engine in OBSERVE mode. Swaps are quoted but never executed.")
		dexAdapter = dex.ReadOnly(liveAdapter)
	}

	rebCfg := rebalancer.Config{
		DriftToleranceBps: params.DriftToleranceBps,
		MaxSlippageBps:    params.MaxSlippageBps,
		SwapTimeout:       time.Duration(params.SwapTimeoutSeconds) * time.Second,
	}
	reb, err := rebalancer.New(rebCfg, dexAdapter, types.AssetID(config.AssetA), types.AssetID(config.AssetB))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize rebalancer")
	}

	// --- 4. Create Engine Instance with Dependency Injection ---
	log.Info().Msg("Creating engine instance with dependency injection...")

	engineCfg := engine.Config{
		Oracle:     aggregator,
		Ledger:     ledger.NewMemoryLedger(),
		Rebalancer: reb,
		Store:      store,
		Params: engine.Params{
			AssetA:               types.AssetID(config.AssetA),
			AssetB:               types.AssetID(config.AssetB),
			MinDepositUSD:        minDeposit,
			TargetTier:           targetTier,
			MaxSlippageBps:       params.MaxSlippageBps,
			MaxRebalanceAttempts: params.MaxRebalanceAttempts,
			AllowStalePricing:    config.AllowStalePricing,
		},
	}

	eng, err := engine.NewEngine(engineCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine instance")
	}

	log.Info().Msg("Engine instance created successfully")

	// --- 5. Start Web Server ---
	webServer := web.NewWebServer(config.WebListenAddr, eng)
	go func() {
		log.Info().Str("addr", config.WebListenAddr).Msg("Starting monitoring web server")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 6. Start Drift-Check Loop ---
	interval := time.Duration(params.RebalanceIntervalMinutes) * time.Minute
	log.Info().Str("interval", interval.String()).Str("mode", config.Mode).Msg("Starting drift-check loop")

	ctx := context.Background()
	eng.RunLoop(ctx, interval)
}

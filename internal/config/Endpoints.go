package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// ChainOracleREST is the REST gateway of the host ledger's oracle module,
	// the primary price source.
	ChainOracleREST string
	// PriceAPI is the off-chain price API used when the chain oracle is
	// unavailable.
	PriceAPI string
	// DexAPI is the DEX adapter endpoint used for rebalancing quotes and swaps.
	DexAPI string
	// WebListenAddr is the bind address for the monitoring web server.
	WebListenAddr string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	ChainOracleREST, err = getEnv("CHAIN_ORACLE_REST")
	if err != nil {
		return err
	}

	PriceAPI, err = getEnv("PRICE_API")
	if err != nil {
		return err
	}

	DexAPI, err = getEnv("DEX_API")
	if err != nil {
		return err
	}

	WebListenAddr, err = getEnv("WEB_LISTEN_ADDR")
	if err != nil {
		return err
	}

	log.Debug().
		Str("ChainOracleREST", ChainOracleREST).
		Str("PriceAPI", PriceAPI).
		Str("DexAPI", DexAPI).
		Str("WebListenAddr", WebListenAddr).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

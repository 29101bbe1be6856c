package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// AssetA is the symbol of the native staking asset held by the pool.
	AssetA string
	// AssetB is the symbol of the BTC-pegged asset held by the pool.
	AssetB string

	// Mode selects how the engine runs: "observe" only monitors and logs,
	// "manage" also executes corrective swaps.
	Mode string

	// AllowStalePricing lets deposits and redemptions settle on a price
	// flagged stale instead of rejecting them.
	AllowStalePricing bool

	// DBHost, DBPort, DBUser, DBPassword, DBName, DBSSLMode configure the
	// PostgreSQL connection used for audit and snapshot persistence.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

const (
	ModeObserve = "observe"
	ModeManage  = "manage"
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	AssetA, err = getEnv("ASSET_A_SYMBOL")
	if err != nil {
		return err
	}

	AssetB, err = getEnv("ASSET_B_SYMBOL")
	if err != nil {
		return err
	}
	if AssetA == AssetB {
		return errors.New("ASSET_A_SYMBOL and ASSET_B_SYMBOL must name distinct assets")
	}

	Mode, err = getEnv("ETF_MODE")
	if err != nil {
		return err
	}
	Mode = strings.ToLower(Mode)
	if Mode != ModeObserve && Mode != ModeManage {
		return errors.New("ETF_MODE must be either \"observe\" or \"manage\", got: " + Mode)
	}

	AllowStalePricing, err = getEnvAsBool("ALLOW_STALE_PRICING")
	if err != nil {
		return err
	}

	DBHost, err = getEnv("DB_HOST")
	if err != nil {
		return err
	}
	DBPort, err = getEnvAsInt("DB_PORT")
	if err != nil {
		return err
	}
	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}
	DBPassword, err = getEnv("DB_PASSWORD")
	if err != nil {
		return err
	}
	DBName, err = getEnv("DB_NAME")
	if err != nil {
		return err
	}
	DBSSLMode, err = getEnv("DB_SSLMODE")
	if err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("AssetA", AssetA).
		Str("AssetB", AssetB).
		Str("Mode", Mode).
		Bool("AllowStalePricing", AllowStalePricing).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsInt retrieves an environment variable as an int. Returns error if not set or invalid.
func getEnvAsInt(key string) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBool retrieves an environment variable as a bool. Returns error if not set or invalid.
func getEnvAsBool(key string) (bool, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return false, err
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid boolean, got: " + valueStr)
	}
	return value, nil
}

package configs

import (
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string
		Env      string
		LogLevel string
	}
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
	}
	WebSocket struct {
		PingInterval   string
		MaxMessageSize int
		RateLimit      float64 // messages per second per client
		RateBurst      int
	}
	Auth struct {
		SecretKey string
	}
	Auction struct {
		FactoryAddress string
		Owner          string
		FeeCollector   string
		FeePercent     int
		MinDuration    time.Duration
		SettleInterval time.Duration // how often the settlement poller runs
	}
	Oracle struct {
		StalenessBound time.Duration
		Feeds          []FeedConfig
	}
	NFT struct {
		Contract string // address the collection is deployed at
		Name     string
		Symbol   string
	}
	Tokens []TokenConfig // fungible payment tokens registered at startup
	Features struct {
		EnableLogging    bool
		AllowCrossOrigin bool
		DevFaucet        bool // fund accounts on demand, dev only
	}
}

// TokenConfig registers one fungible payment token. Tokens listed here can
// be used as an auction's payment asset; each should also carry a feed in
// the oracle section or bids against it will be rejected.
type TokenConfig struct {
	Address string
	Name    string
	Symbol  string
}

// FeedConfig seeds one price feed. Price is a decimal string in USD per
// whole asset unit; an empty Asset means the native currency.
type FeedConfig struct {
	Asset         string
	Description   string
	Price         string
	FeedDecimals  uint8
	AssetDecimals uint8
}

func LoadConfig() (*Config, error) {
	// Load .env file
	if err := godotenv.Load("./configs/.env"); err != nil {
		log.Info("No .env file found")
	}

	viper.SetConfigName("config")    // Name of the config file (without extension)
	viper.SetConfigType("yaml")      // Config file type
	viper.AddConfigPath("./configs") // Path to look for the config file
	viper.AutomaticEnv()             // Automatically map environment variables

	// Allow dots in environment variables to map to nested keys
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read the config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	// Manually substitute environment variables in the config
	substituteEnvVarsInConfig()

	// Unmarshal the config into a struct
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Auction.MinDuration == 0 {
		cfg.Auction.MinDuration = time.Minute
	}
	if cfg.Auction.SettleInterval == 0 {
		cfg.Auction.SettleInterval = 30 * time.Second
	}
	if cfg.Oracle.StalenessBound == 0 {
		cfg.Oracle.StalenessBound = time.Hour
	}
	if cfg.WebSocket.RateLimit == 0 {
		cfg.WebSocket.RateLimit = 1
	}
	if cfg.WebSocket.RateBurst == 0 {
		cfg.WebSocket.RateBurst = 3
	}
}

// Helper function to manually replace environment variables in config file values
func substituteEnvVarsInConfig() {
	// Iterate over each key-value pair in viper's config
	for _, key := range viper.AllKeys() {
		// Get the current value
		value := viper.GetString(key)

		// Check if the value contains environment variable syntax (e.g., ${PORT})
		if strings.Contains(value, "${") {
			// Replace environment variables in the value (e.g., ${PORT})
			replacedValue := os.Expand(value, func(name string) string {
				// Lookup the environment variable's value
				return os.Getenv(name)
			})

			// Set the replaced value back into viper
			viper.Set(key, replacedValue)

		}
	}
}

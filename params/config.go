package params

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type API struct {
	ListenAddr string
}

type Storage struct {
	DBPath string
}

type JWT struct {
	// KeysFile maps key id -> {algorithm, PEM file}.
	KeysFile string
	// SignKeyID selects the production signing key from the set.
	SignKeyID string
}

type Watcher struct {
	// WSURL is the watcher service websocket endpoint. Empty disables the
	// streaming client; payments then arrive via the HTTP callback only.
	WSURL string
	// RefreshInterval paces watch-set recomputation from active offers.
	RefreshInterval time.Duration
}

type Config struct {
	API     API
	Storage Storage
	JWT     JWT
	Watcher Watcher
	LogFile string
}

func Default() Config {
	return Config{
		API:     API{ListenAddr: ":8500"},
		Storage: Storage{DBPath: "data/market.db"},
		JWT: JWT{
			KeysFile:  "keys/keys.json",
			SignKeyID: "es256_0",
		},
		Watcher: Watcher{
			WSURL:           "",
			RefreshInterval: 30 * time.Second,
		},
		LogFile: "data/marketd.log",
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.API.ListenAddr = getEnv("API_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.Storage.DBPath = getEnv("DB_PATH", cfg.Storage.DBPath)
	cfg.JWT.KeysFile = getEnv("JWT_KEYS_FILE", cfg.JWT.KeysFile)
	cfg.JWT.SignKeyID = getEnv("JWT_SIGN_KEY_ID", cfg.JWT.SignKeyID)
	cfg.Watcher.WSURL = getEnv("WATCHER_WS_URL", cfg.Watcher.WSURL)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	if v := os.Getenv("WATCHER_REFRESH_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Watcher.RefreshInterval = time.Duration(ms) * time.Millisecond
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

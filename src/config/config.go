package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// EnvFileVar names an alternate .env path when none sits beside the
	// executable.
	EnvFileVar = "REGION_SNIP_ENV"

	DefaultHotkey   = "Ctrl+D"
	DefaultSaveName = "region.png"
)

type Config struct {
	Hotkey            string
	NudgeStep         int
	DefaultSaveName   string
	EnableFileLogging bool
}

func Load() (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, use REGION_SNIP_ENV as a path to a config file
	if envPath := resolveEnvPath(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	cfg := &Config{
		Hotkey:            getEnvWithDefault("HOTKEY", DefaultHotkey),
		NudgeStep:         getEnvInt("NUDGE_STEP", 1),
		DefaultSaveName:   getEnvWithDefault("DEFAULT_SAVE_NAME", DefaultSaveName),
		EnableFileLogging: strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
	}
	if cfg.NudgeStep < 1 {
		cfg.NudgeStep = 1
	}

	return cfg, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(EnvFileVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMarkerName = "databases"
	DefaultBuildTool  = "staramr"
	DefaultConfigFile = "testboot.yaml"

	// HistoryDisabled turns off session history when used as the history DB.
	HistoryDisabled = "off"
)

var (
	DefaultBuildArgs   = []string{"db", "build"}
	DefaultTestCommand = []string{"go", "test", "./..."}
)

type Config struct {
	Root           string   `yaml:"root,omitempty"`
	MarkerName     string   `yaml:"marker_name"`
	BuildTool      string   `yaml:"build_tool"`
	BuildArgs      []string `yaml:"build_args"`
	TestCommand    []string `yaml:"test_command"`
	DiscoveryRoot  string   `yaml:"discovery_root,omitempty"`
	OnBuildFailure string   `yaml:"on_build_failure"`
	HistoryDB      string   `yaml:"history_db,omitempty"`
	LogLevel       string   `yaml:"log_level"`
}

func Defaults() *Config {
	return &Config{
		MarkerName:     DefaultMarkerName,
		BuildTool:      DefaultBuildTool,
		BuildArgs:      append([]string(nil), DefaultBuildArgs...),
		TestCommand:    append([]string(nil), DefaultTestCommand...),
		OnBuildFailure: "abort",
		LogLevel:       "info",
	}
}

// Load layers defaults, the YAML file at path, .env and the process
// environment, in that order. An empty path falls back to TESTBOOT_CONFIG and
// then to testboot.yaml in the working directory if it exists.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		if p := os.Getenv("TESTBOOT_CONFIG"); p != "" {
			path = p
			explicit = true
		} else {
			path = DefaultConfigFile
		}
	}
	if err := cfg.mergeFile(path, explicit); err != nil {
		return nil, err
	}

	cfg.Root = getEnv("TESTBOOT_ROOT", cfg.Root)
	cfg.MarkerName = getEnv("TESTBOOT_MARKER", cfg.MarkerName)
	cfg.BuildTool = getEnv("TESTBOOT_BUILD_TOOL", cfg.BuildTool)
	cfg.BuildArgs = getEnvFields("TESTBOOT_BUILD_ARGS", cfg.BuildArgs)
	cfg.TestCommand = getEnvFields("TESTBOOT_TEST_COMMAND", cfg.TestCommand)
	cfg.DiscoveryRoot = getEnv("TESTBOOT_DISCOVERY_ROOT", cfg.DiscoveryRoot)
	cfg.OnBuildFailure = getEnv("TESTBOOT_ON_BUILD_FAILURE", cfg.OnBuildFailure)
	cfg.HistoryDB = getEnv("TESTBOOT_HISTORY_DB", cfg.HistoryDB)
	cfg.LogLevel = getEnv("TESTBOOT_LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// HistoryDBPath returns the session history DSN for root, or "" when history
// is disabled. The default lives in the user cache directory, one database
// per root, so nothing besides the marker is written under root.
func (c *Config) HistoryDBPath(root string) string {
	switch strings.TrimSpace(c.HistoryDB) {
	case HistoryDisabled:
		return ""
	case "":
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return ""
		}
		return filepath.Join(cacheDir, "testboot", rootKey(root), "sessions.sqlite")
	default:
		return c.HistoryDB
	}
}

func rootKey(root string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(root)))
	return hex.EncodeToString(sum[:8])
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFields(key string, defaultValue []string) []string {
	if value := strings.Fields(os.Getenv(key)); len(value) > 0 {
		return value
	}
	return defaultValue
}

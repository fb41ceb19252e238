package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EffectiveConfigResult is the merged view of flags, env and config file
// that the rest of the process consumes.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	// Source records which input won: "flags", "env" or "config".
	Source string
}

// Addr returns the listen address derived from the server block.
func (c *Config) Addr() string {
	host := c.Server.Address
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Load reads and parses the YAML config at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	return &cfg, nil
}

// ParseCommandFlags parses process flags and reports which were set
// explicitly so they can win over env and config file values.
func ParseCommandFlags() (addr, db, cfgPath string, setFlags map[string]bool) {
	addrFlag := flag.String("addr", ":8080", "listen address")
	dbFlag := flag.String("db", "./data", "pebble database path")
	cfgFlag := flag.String("config", "", "path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrFlag, *dbFlag, *cfgFlag, setFlags
}

// ResolveConfigPath picks the config file path: explicit flag wins, then
// the ROUNDTABLE_CONFIG env var, then the conventional default.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet && flagVal != "" {
		return flagVal
	}
	if p := os.Getenv("ROUNDTABLE_CONFIG"); p != "" {
		return p
	}
	return "roundtable.yaml"
}

// LoadEffective merges config file and environment into an effective
// config. Flags are applied by the caller on top of the result.
func LoadEffective(path string) (EffectiveConfigResult, error) {
	cfg := &Config{}
	source := "default"
	if b, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return EffectiveConfigResult{}, fmt.Errorf("invalid config yaml %s: %w", path, err)
		}
		source = "config"
	}
	envUsed := applyEnv(cfg)
	if envUsed {
		source = "env"
	}
	applyDefaults(cfg)
	return EffectiveConfigResult{
		Config: cfg,
		Addr:   cfg.Addr(),
		DBPath: cfg.Server.DBPath,
		Source: source,
	}, nil
}

// applyEnv overlays ROUNDTABLE_* environment variables onto cfg and
// reports whether any were present.
func applyEnv(cfg *Config) bool {
	used := false
	if v := os.Getenv("ROUNDTABLE_ADDR"); v != "" {
		used = true
		host, port, err := net.SplitHostPort(v)
		if err == nil {
			cfg.Server.Address = host
			if p, perr := strconv.Atoi(port); perr == nil {
				cfg.Server.Port = p
			}
		}
	}
	if v := os.Getenv("ROUNDTABLE_DB_PATH"); v != "" {
		used = true
		cfg.Server.DBPath = v
	}
	if v := os.Getenv("ROUNDTABLE_LOG_LEVEL"); v != "" {
		used = true
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("ROUNDTABLE_COMPLETION_BASE_URL"); v != "" {
		used = true
		cfg.Completion.BaseURL = v
	}
	if v := os.Getenv("ROUNDTABLE_COMPLETION_MODEL"); v != "" {
		used = true
		cfg.Completion.Model = v
	}
	if v := os.Getenv("ROUNDTABLE_AUTONOMOUS"); v != "" {
		used = true
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			cfg.Autonomous.Enabled = true
		default:
			cfg.Autonomous.Enabled = false
		}
	}
	return used
}

func applyDefaults(cfg *Config) {
	if cfg.Server.DBPath == "" {
		cfg.Server.DBPath = "./data"
	}
	if cfg.Security.RateLimit.WindowSeconds <= 0 {
		cfg.Security.RateLimit.WindowSeconds = 60
	}
	if cfg.Security.RateLimit.MaxPerWindow <= 0 {
		cfg.Security.RateLimit.MaxPerWindow = 120
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = "gpt-4o-mini"
	}
	if cfg.Completion.APIKeyEnv == "" {
		cfg.Completion.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Completion.Temperature == 0 {
		cfg.Completion.Temperature = 0.8
	}
	if cfg.Completion.MaxTokens == 0 {
		cfg.Completion.MaxTokens = 512
	}
	if cfg.Completion.RPS == 0 {
		cfg.Completion.RPS = 2
	}
	if cfg.Completion.Burst == 0 {
		cfg.Completion.Burst = 4
	}
	if cfg.Discussion.PaceMinMS == 0 {
		cfg.Discussion.PaceMinMS = 800
	}
	if cfg.Discussion.PaceMaxMS == 0 {
		cfg.Discussion.PaceMaxMS = 1300
	}
	if cfg.Discussion.ContextWindow == 0 {
		cfg.Discussion.ContextWindow = 6
	}
	if cfg.Discussion.MaxRounds == 0 {
		cfg.Discussion.MaxRounds = 12
	}
	if cfg.Autonomous.Cron == "" {
		cfg.Autonomous.Cron = "*/10 * * * *"
	}
}

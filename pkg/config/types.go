package config

// Config is the main configuration struct.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Security   SecurityConfig   `yaml:"security"`
	Logging    LoggingConfig    `yaml:"logging"`
	Completion CompletionConfig `yaml:"completion"`
	Discussion DiscussionConfig `yaml:"discussion"`
	Autonomous AutonomousConfig `yaml:"autonomous"`
	Validation ValidationConfig `yaml:"validation"`
}

// ServerConfig holds http and tls settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	DBPath  string    `yaml:"db_path"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SecurityConfig holds security related settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	// RateLimit is a fixed-window counter keyed by (route, identity).
	RateLimit struct {
		WindowSeconds int `yaml:"window_seconds"`
		MaxPerWindow  int `yaml:"max_per_window"`
	} `yaml:"rate_limit"`
	APIKeys struct {
		Backend  []string `yaml:"backend"`
		Frontend []string `yaml:"frontend"`
	} `yaml:"api_keys"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// CompletionConfig configures the outbound completion-service client.
type CompletionConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// Outbound throttle (token bucket) toward the completion service.
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// DiscussionConfig tunes the turn scheduler.
type DiscussionConfig struct {
	// Inter-turn pacing delay bounds in milliseconds.
	PaceMinMS int `yaml:"pace_min_ms"`
	PaceMaxMS int `yaml:"pace_max_ms"`
	// How many trailing messages are sent as generation context.
	ContextWindow int `yaml:"context_window"`
	// MaxRounds caps the total persona turns a topic accumulates; the
	// last configured round always runs as a single turn.
	MaxRounds int `yaml:"max_rounds"`
}

// AutonomousConfig controls the autonomous actor tick runner.
type AutonomousConfig struct {
	Enabled bool `yaml:"enabled"`
	// Cron expression for the tick schedule (5-field).
	Cron string `yaml:"cron"`
}

// ValidationConfig carries inbound payload limits.
type ValidationConfig struct {
	MaxTitleLen   int `yaml:"max_title_len"`
	MaxContentLen int `yaml:"max_content_len"`
	MaxTags       int `yaml:"max_tags"`
}

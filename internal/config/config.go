package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the full runtime configuration tree. Values come from
// defaults, then an optional TOML file, then environment variables
// (env wins).
type Config struct {
	Gemini   GeminiConfig   `toml:"gemini"`
	Session  SessionConfig  `toml:"session"`
	Redis    RedisConfig    `toml:"redis"`
	Guard    GuardConfig    `toml:"guard"`
	HTTP     HTTPConfig     `toml:"http"`
	Database DatabaseConfig `toml:"database"`
	Health   HealthConfig   `toml:"health"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ThinkingConfig struct {
	LevelDefault string `toml:"level"`
	LevelHints   string `toml:"level_hints"`
	LevelAnswer  string `toml:"level_answer"`
	LevelVerify  string `toml:"level_verify"`

	// Budgets are token caps for models without categorical levels.
	// Zero means "omit".
	BudgetDefault int `toml:"budget"`
	BudgetHints   int `toml:"budget_hints"`
	BudgetAnswer  int `toml:"budget_answer"`
	BudgetVerify  int `toml:"budget_verify"`
}

// LevelForTask resolves the categorical thinking level for a task tag.
func (t ThinkingConfig) LevelForTask(task string) string {
	switch task {
	case "hints":
		return t.LevelHints
	case "answer":
		return t.LevelAnswer
	case "verify":
		return t.LevelVerify
	default:
		return t.LevelDefault
	}
}

// BudgetForTask resolves the integer thinking budget for a task tag.
func (t ThinkingConfig) BudgetForTask(task string) int {
	switch task {
	case "hints":
		return t.BudgetHints
	case "answer":
		return t.BudgetAnswer
	case "verify":
		return t.BudgetVerify
	default:
		return t.BudgetDefault
	}
}

type GeminiConfig struct {
	APIKeys          []string       `toml:"api_keys"`
	DefaultModel     string         `toml:"model"`
	HintsModel       string         `toml:"hints_model"`
	AnswerModel      string         `toml:"answer_model"`
	VerifyModel      string         `toml:"verify_model"`
	Temperature      float64        `toml:"temperature"`
	MaxTokens        int            `toml:"max_tokens"`
	TimeoutSeconds   int            `toml:"timeout_seconds"`
	MaxRetries       int            `toml:"max_retries"`
	ModelCacheSize   int            `toml:"model_cache_size"`
	FailoverAttempts int            `toml:"failover_attempts"`
	Thinking         ThinkingConfig `toml:"thinking"`
}

// ModelForTask resolves the per-task model override, falling back to the
// default model.
func (g GeminiConfig) ModelForTask(task string) string {
	switch task {
	case "hints":
		if g.HintsModel != "" {
			return g.HintsModel
		}
	case "answer":
		if g.AnswerModel != "" {
			return g.AnswerModel
		}
	case "verify":
		if g.VerifyModel != "" {
			return g.VerifyModel
		}
	}
	return g.DefaultModel
}

// IsGemini3 reports whether the model carries categorical thinking levels
// instead of integer budgets.
func IsGemini3(model string) bool {
	return strings.Contains(strings.ToLower(model), "gemini-3")
}

type SessionConfig struct {
	MaxSessions     int `toml:"max_sessions"`
	TTLMinutes      int `toml:"ttl_minutes"`
	HistoryMaxPairs int `toml:"history_max_pairs"`
}

type RedisConfig struct {
	URL     string `toml:"url"`
	Enabled bool   `toml:"enabled"`
}

type GuardConfig struct {
	Enabled          bool    `toml:"enabled"`
	Threshold        float64 `toml:"threshold"`
	AnomalyThreshold float64 `toml:"anomaly_threshold"`
	RulepacksDir     string  `toml:"rulepacks_dir"`
	CacheSize        int     `toml:"cache_size"`
	CacheTTLSeconds  int     `toml:"cache_ttl_seconds"`
}

type HTTPConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	HTTP2Enabled bool   `toml:"http2_enabled"`
}

// Addr returns the host:port bind address.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Name     string `toml:"name"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	MinPool  int    `toml:"min_pool"`
	MaxPool  int    `toml:"max_pool"`
}

// DSN builds the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?pool_min_conns=%d&pool_max_conns=%d",
		d.User, d.Password, d.Host, d.Port, d.Name, d.MinPool, d.MaxPool,
	)
}

type HealthConfig struct {
	Enabled             bool     `toml:"enabled"`
	URLs                []string `toml:"urls"`
	IntervalSeconds     int      `toml:"interval_seconds"`
	MaxFailures         int      `toml:"max_failures"`
	TimeoutSeconds      float64  `toml:"timeout_seconds"`
	StartupGraceSeconds int      `toml:"startup_grace_seconds"`
	RestartCmd          []string `toml:"restart_cmd"`
	RestartContainers   []string `toml:"restart_containers"`
	DockerSocket        string   `toml:"docker_socket"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Gemini: GeminiConfig{
			DefaultModel:     "gemini-2.5-flash-preview-09-2025",
			Temperature:      0.7,
			MaxTokens:        8192,
			TimeoutSeconds:   60,
			MaxRetries:       6,
			ModelCacheSize:   20,
			FailoverAttempts: 2,
			Thinking: ThinkingConfig{
				LevelDefault: "low",
				LevelHints:   "low",
				LevelAnswer:  "low",
				LevelVerify:  "low",
				BudgetHints:  8192,
				BudgetAnswer: 4096,
				BudgetVerify: 2048,
			},
		},
		Session: SessionConfig{
			MaxSessions:     50,
			TTLMinutes:      1440,
			HistoryMaxPairs: 10,
		},
		Redis: RedisConfig{
			URL:     "redis://localhost:46379",
			Enabled: true,
		},
		Guard: GuardConfig{
			Enabled:          true,
			Threshold:        0.85,
			AnomalyThreshold: 0.5,
			RulepacksDir:     "rulepacks",
			CacheSize:        10000,
			CacheTTLSeconds:  3600,
		},
		HTTP: HTTPConfig{
			Host:         "127.0.0.1",
			Port:         40527,
			HTTP2Enabled: true,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			Name:    "twentyq",
			User:    "twentyq",
			MinPool: 1,
			MaxPool: 5,
		},
		Health: HealthConfig{
			Enabled:             true,
			IntervalSeconds:     60,
			MaxFailures:         5,
			TimeoutSeconds:      3,
			StartupGraceSeconds: 15,
			DockerSocket:        "/var/run/docker.sock",
		},
		Logging: LoggingConfig{Level: "INFO"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = os.Getenv("QUIZGATE_CONFIG")
	}
	if path == "" {
		path = "quizgate.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	applyEnv(&cfg)

	if len(cfg.Health.URLs) == 0 {
		cfg.Health.URLs = []string{fmt.Sprintf("http://%s/health/ready", cfg.HTTP.Addr())}
	}
	return cfg
}

var listSplit = regexp.MustCompile(`[,\s]+`)

func applyEnv(cfg *Config) {
	if keys := envList("GOOGLE_API_KEYS"); len(keys) > 0 {
		cfg.Gemini.APIKeys = keys
	} else if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		cfg.Gemini.APIKeys = []string{v}
	}
	envStr("GEMINI_MODEL", &cfg.Gemini.DefaultModel)
	envStr("GEMINI_HINTS_MODEL", &cfg.Gemini.HintsModel)
	envStr("GEMINI_ANSWER_MODEL", &cfg.Gemini.AnswerModel)
	envStr("GEMINI_VERIFY_MODEL", &cfg.Gemini.VerifyModel)
	envFloat("GEMINI_TEMPERATURE", &cfg.Gemini.Temperature)
	envInt("GEMINI_MAX_TOKENS", &cfg.Gemini.MaxTokens)
	envInt("GEMINI_TIMEOUT", &cfg.Gemini.TimeoutSeconds)
	envInt("GEMINI_MAX_RETRIES", &cfg.Gemini.MaxRetries)
	envInt("GEMINI_MODEL_CACHE_SIZE", &cfg.Gemini.ModelCacheSize)
	envInt("GEMINI_FAILOVER_ATTEMPTS", &cfg.Gemini.FailoverAttempts)
	envStr("GEMINI_THINKING_LEVEL", &cfg.Gemini.Thinking.LevelDefault)
	envStr("GEMINI_THINKING_LEVEL_HINTS", &cfg.Gemini.Thinking.LevelHints)
	envStr("GEMINI_THINKING_LEVEL_ANSWER", &cfg.Gemini.Thinking.LevelAnswer)
	envStr("GEMINI_THINKING_LEVEL_VERIFY", &cfg.Gemini.Thinking.LevelVerify)
	envInt("GEMINI_THINKING_BUDGET", &cfg.Gemini.Thinking.BudgetDefault)
	envInt("GEMINI_THINKING_BUDGET_HINTS", &cfg.Gemini.Thinking.BudgetHints)
	envInt("GEMINI_THINKING_BUDGET_ANSWER", &cfg.Gemini.Thinking.BudgetAnswer)
	envInt("GEMINI_THINKING_BUDGET_VERIFY", &cfg.Gemini.Thinking.BudgetVerify)

	envInt("MAX_SESSIONS", &cfg.Session.MaxSessions)
	envInt("SESSION_TTL_MINUTES", &cfg.Session.TTLMinutes)
	envInt("SESSION_HISTORY_MAX_PAIRS", &cfg.Session.HistoryMaxPairs)
	if cfg.Session.HistoryMaxPairs < 0 {
		cfg.Session.HistoryMaxPairs = 0
	}

	envStr("REDIS_URL", &cfg.Redis.URL)
	envBool("LANGGRAPH_REDIS_ENABLED", &cfg.Redis.Enabled)

	envBool("GUARD_ENABLED", &cfg.Guard.Enabled)
	envFloat("GUARD_THRESHOLD", &cfg.Guard.Threshold)
	envFloat("GUARD_ANOMALY_THRESHOLD", &cfg.Guard.AnomalyThreshold)
	envStr("RULEPACKS_DIR", &cfg.Guard.RulepacksDir)
	envInt("GUARD_CACHE_SIZE", &cfg.Guard.CacheSize)
	envInt("GUARD_CACHE_TTL", &cfg.Guard.CacheTTLSeconds)

	envStr("HTTP_HOST", &cfg.HTTP.Host)
	envInt("HTTP_PORT", &cfg.HTTP.Port)
	envBool("HTTP2_ENABLED", &cfg.HTTP.HTTP2Enabled)

	envStr("DB_HOST", &cfg.Database.Host)
	envInt("DB_PORT", &cfg.Database.Port)
	envStr("DB_NAME", &cfg.Database.Name)
	envStr("DB_USER", &cfg.Database.User)
	envStr("DB_PASSWORD", &cfg.Database.Password)
	envInt("DB_MIN_POOL", &cfg.Database.MinPool)
	envInt("DB_MAX_POOL", &cfg.Database.MaxPool)

	envBool("BOT_HEALTH_ENABLED", &cfg.Health.Enabled)
	if urls := envList("BOT_HEALTH_URLS"); len(urls) > 0 {
		cfg.Health.URLs = urls
	} else if v := strings.TrimSpace(os.Getenv("BOT_HEALTH_URL")); v != "" {
		cfg.Health.URLs = []string{v}
	}
	envInt("BOT_HEALTH_INTERVAL_SECONDS", &cfg.Health.IntervalSeconds)
	envInt("BOT_HEALTH_MAX_FAILURES", &cfg.Health.MaxFailures)
	envFloat("BOT_HEALTH_TIMEOUT_SECONDS", &cfg.Health.TimeoutSeconds)
	envInt("BOT_HEALTH_STARTUP_GRACE_SECONDS", &cfg.Health.StartupGraceSeconds)
	if v := strings.TrimSpace(os.Getenv("BOT_RESTART_CMD")); v != "" {
		cfg.Health.RestartCmd = strings.Fields(v)
	}
	if containers := envList("BOT_RESTART_CONTAINERS"); len(containers) > 0 {
		cfg.Health.RestartContainers = containers
	}
	envStr("BOT_DOCKER_SOCKET", &cfg.Health.DockerSocket)

	envStr("LOG_LEVEL", &cfg.Logging.Level)
	envBool("LOG_JSON", &cfg.Logging.JSON)

	if cfg.Gemini.MaxRetries < 1 {
		cfg.Gemini.MaxRetries = 1
	}
	if cfg.Gemini.FailoverAttempts < 1 {
		cfg.Gemini.FailoverAttempts = 1
	}
	if cfg.Health.IntervalSeconds < 1 {
		cfg.Health.IntervalSeconds = 1
	}
	if cfg.Health.MaxFailures < 1 {
		cfg.Health.MaxFailures = 1
	}
	if cfg.Health.StartupGraceSeconds < 0 {
		cfg.Health.StartupGraceSeconds = 0
	}
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if len(c.Gemini.APIKeys) == 0 {
		return fmt.Errorf("no Gemini API key configured (GOOGLE_API_KEY or GOOGLE_API_KEYS)")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port %d", c.HTTP.Port)
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		return fmt.Errorf("GEMINI_TIMEOUT must be positive, got %d", c.Gemini.TimeoutSeconds)
	}
	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("MAX_SESSIONS must be positive, got %d", c.Session.MaxSessions)
	}
	if c.Guard.Threshold < 0 {
		return fmt.Errorf("GUARD_THRESHOLD must not be negative, got %f", c.Guard.Threshold)
	}
	return nil
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	}
}

func envList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := listSplit.Split(raw, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

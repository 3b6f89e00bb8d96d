package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type DB struct {
	User     string
	Pass     string
	Host     string
	Port     string
	Name     string
	MaxConns int // pgx pool ceiling
}

type NSQ struct {
	NsqdTCPAddr    string // e.g. nsqd:4150
	LookupHTTPAddr string // e.g. http://nsqlookupd:4161
	TasksTopic     string // NSQ topic for task envelopes
	WorkerChannel  string // NSQ channel name for workers
}

type Redis struct {
	Addr     string // rate-limit counter store, e.g. redis:6379
	Password string
	DB       int
}

type Worker struct {
	Concurrency int           // bounded worker count
	MaxRetries  int           // retries after the first attempt
	RetryBase   time.Duration // first backoff delay
	RetryMax    time.Duration // backoff ceiling
	JitterPct   float64       // backoff jitter fraction (0.0-1.0)
	SoftLimit   time.Duration // soft per-task time limit
	HardLimit   time.Duration // hard per-task time limit
	HTTPPort    string        // worker metrics/health port
}

type LLM struct {
	APIKey      string
	Model       string
	MaxTokens   int
	BaseURL     string // override for testing against a stub
	HTTPTimeout time.Duration
}

type Retrieval struct {
	Endpoint string // vector search service base URL, empty disables
	TopK     int
}

type API struct {
	HTTPPort      string        // :8080
	RatePerMinute int           // rate limiter ceiling per client
	SyncWait      time.Duration // max wait for async=false calls
	JWTPublicKey  string        // PEM, empty disables bearer auth
	JWTIssuer     string
	JWTAudience   string
}

type Maintenance struct {
	Retention time.Duration // delete task/webhook rows older than this
	Interval  time.Duration // sweep cadence
}

type Config struct {
	AppName     string
	DB          DB
	NSQ         NSQ
	Redis       Redis
	Worker      Worker
	LLM         LLM
	Retrieval   Retrieval
	API         API
	Maintenance Maintenance
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func FromEnv() Config {
	return Config{
		AppName: getenv("APP_NAME", "triagent"),
		DB: DB{
			User:     getenv("DB_USER", "postgres"),
			Pass:     getenv("DB_PASS", "postgres"),
			Host:     getenv("DB_HOST", "postgres"),
			Port:     getenv("DB_PORT", "5432"),
			Name:     getenv("DB_NAME", "triagent"),
			MaxConns: getenvInt("DB_MAX_CONNS", 10),
		},
		NSQ: NSQ{
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			TasksTopic:     getenv("NSQ_TASKS_TOPIC", "tasks"),
			WorkerChannel:  getenv("NSQ_WORKER_CHANNEL", "workers"),
		},
		Redis: Redis{
			Addr:     getenv("REDIS_ADDR", "redis:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Worker: Worker{
			Concurrency: getenvInt("WORKER_CONCURRENCY", 4),
			MaxRetries:  getenvInt("MAX_RETRIES", 3),
			RetryBase:   getenvDuration("RETRY_BASE", 30*time.Second),
			RetryMax:    getenvDuration("RETRY_MAX", 120*time.Second),
			JitterPct:   getenvFloat("RETRY_JITTER_PCT", 0.25),
			SoftLimit:   getenvDuration("TASK_SOFT_LIMIT", 240*time.Second),
			HardLimit:   getenvDuration("TASK_HARD_LIMIT", 300*time.Second),
			HTTPPort:    ":" + getenv("WORKER_HTTP_PORT", "8082"),
		},
		LLM: LLM{
			APIKey:      getenv("ANTHROPIC_API_KEY", ""),
			Model:       getenv("MODEL_NAME", "claude-sonnet-4-20250514"),
			MaxTokens:   getenvInt("LLM_MAX_TOKENS", 4096),
			BaseURL:     getenv("LLM_BASE_URL", "https://api.anthropic.com"),
			HTTPTimeout: getenvDuration("LLM_HTTP_TIMEOUT", 120*time.Second),
		},
		Retrieval: Retrieval{
			Endpoint: getenv("RETRIEVAL_ENDPOINT", ""),
			TopK:     getenvInt("RETRIEVAL_TOP_K", 5),
		},
		API: API{
			HTTPPort:      ":" + getenv("HTTP_PORT", "8080"),
			RatePerMinute: getenvInt("RATE_PER_MINUTE", 60),
			SyncWait:      getenvDuration("SYNC_WAIT", 5*time.Minute),
			JWTPublicKey:  getenv("JWT_PUBLIC_KEY", ""),
			JWTIssuer:     getenv("JWT_ISSUER", "triagent"),
			JWTAudience:   getenv("JWT_AUDIENCE", "triagent-api"),
		},
		Maintenance: Maintenance{
			Retention: getenvDuration("RETENTION_WINDOW", 7*24*time.Hour),
			Interval:  getenvDuration("MAINTENANCE_INTERVAL", time.Hour),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}

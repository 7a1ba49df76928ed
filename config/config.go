package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"aster"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`

	// Path to the sqlite day store
	DatabasePath string `env:"DB_PATH" env-default:"aster.db"`
	// Path to the JSON accounts file
	AccountsPath string `env:"ACCOUNTS_PATH" env-default:"accounts.json"`

	// Redis host for the credential store
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`

	// OAuth client credentials used for token refresh exchanges
	GitHubClientID          string `env:"GITHUB_CLIENT_ID" env-default:""`
	GitHubClientSecret      string `env:"GITHUB_CLIENT_SECRET" env-default:""`
	AzureDevOpsClientID     string `env:"AZURE_DEVOPS_CLIENT_ID" env-default:""`
	AzureDevOpsClientSecret string `env:"AZURE_DEVOPS_CLIENT_SECRET" env-default:""`

	// Refresh settings
	// Time between automatic refresh cycles; 0 disables the ticker
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" env-default:"5m"`
	// Minimum gap between manual refresh triggers
	RefreshDebounce time.Duration `env:"REFRESH_DEBOUNCE" env-default:"30s"`
	// Upper bound on one full refresh cycle
	CycleTimeout time.Duration `env:"CYCLE_TIMEOUT" env-default:"2m"`
	// Grace period before a cycle re-fetches today's cached row; zero means
	// today is re-fetched on every cycle
	TodayMaxAge time.Duration `env:"TODAY_MAX_AGE" env-default:"0"`
	// Default heatmap window when preferences do not set one; refresh cycles
	// keep this many days warm
	HeatmapWindowDays int `env:"HEATMAP_WINDOW_DAYS" env-default:"90"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}

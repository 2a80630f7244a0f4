package tracehub

import (
	"io/fs"
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port            int
	databaseURL     string
	webhookURL      string
	logger          *slog.Logger
	version         string
	judgeProviders  []JudgeProvider
	extraMigrations []fs.FS
}

// WithPort overrides the TCP port from config (TRACEHUB_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config
// (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithWebhookURL overrides the case notification webhook target
// (WEBHOOK_URL env var).
func WithWebhookURL(url string) Option {
	return func(o *resolvedOptions) { o.webhookURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs and telemetry.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithJudgeProvider registers an additional judge provider alongside the
// built-in heuristic and LLM providers. A provider whose Name collides with
// a built-in replaces it.
func WithJudgeProvider(p JudgeProvider) Option {
	return func(o *resolvedOptions) { o.judgeProviders = append(o.judgeProviders, p) }
}

// WithExtraMigrations adds an additional SQL migration filesystem to run
// after the embedded migrations. Multiple filesystems may be registered;
// they are applied in registration order.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}

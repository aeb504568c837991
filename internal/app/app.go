// Package app wires configuration into the long-lived pieces shared by the
// CLI commands: the model provider, the tool registry, tracing and the run log.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"merchantama/internal/agent"
	"merchantama/internal/config"
	"merchantama/internal/db"
	"merchantama/internal/llm"
	"merchantama/internal/runlog"
	"merchantama/internal/session"
	"merchantama/internal/tools"
	"merchantama/internal/trace"
)

// Answer is the structured reply shape used when agent.structured_output is set.
type Answer struct {
	Response       string `json:"response" jsonschema:"description=The answer to the merchant's question"`
	HappinessLevel bool   `json:"happinessLevel" jsonschema:"description=Whether the merchant seems satisfied"`
}

type App struct {
	cfg      *config.Config
	provider llm.Provider
	registry *agent.Registry
	schema   map[string]any

	withRunLog    bool
	database      *db.DB
	runs          *runlog.Store
	shutdownTrace func(context.Context) error
}

type Option func(*App)

// WithProvider replaces the OpenAI provider built from the config.
func WithProvider(p llm.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithRunLog opens the run log database named in the config.
func WithRunLog() Option {
	return func(a *App) { a.withRunLog = true }
}

// New builds the application. Tracing starts when enabled in the config.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}

	if a.provider == nil {
		if cfg.OpenAI.APIKey == "" {
			return nil, errors.New("openai api key is not set (OPENAI_API_KEY or [openai] api_key)")
		}
		a.provider = llm.NewOpenAI(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model,
			llm.WithTemperature(cfg.OpenAI.Temperature))
	}

	registry, err := tools.MerchantRegistry(cfg.Services.Brave.APIKey)
	if err != nil {
		return nil, fmt.Errorf("building tools: %w", err)
	}
	a.registry = registry

	if cfg.Agent.StructuredOutput {
		a.schema, err = agent.SchemaFor[Answer]()
		if err != nil {
			return nil, fmt.Errorf("building output schema: %w", err)
		}
	}

	if cfg.Trace.Enabled {
		a.shutdownTrace, err = trace.Init(ctx, trace.Config{
			Endpoint: cfg.Trace.Endpoint,
			URLPath:  cfg.Trace.URLPath,
			APIKey:   cfg.Trace.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing tracing: %w", err)
		}
	}

	if a.withRunLog && cfg.DB.Path != "" {
		if err := a.openRunLog(); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}
	return a, nil
}

func (a *App) openRunLog() error {
	database, err := db.Open(a.cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return fmt.Errorf("migrating database: %w", err)
	}
	a.database = database
	a.runs = runlog.NewStore(database)
	slog.Info("run log enabled", "path", a.cfg.DB.Path)
	return nil
}

// RunLog returns the run log store, or nil when it is disabled.
func (a *App) RunLog() *runlog.Store { return a.runs }

// NewRunner builds the merchant agent with the given lifecycle hooks.
func (a *App) NewRunner(hooks agent.Hooks) (agent.Runner, error) {
	opts := []agent.Option{
		agent.WithInstructions(a.cfg.Agent.Instructions),
		agent.WithMaxTurns(a.cfg.Agent.MaxTurns),
		agent.WithHooks(hooks),
	}
	if a.schema != nil {
		opts = append(opts, agent.WithOutputSchema("merchant_answer", a.schema))
	}
	return agent.NewReactRunner(a.cfg.Agent.Name, a.provider, a.registry, opts...)
}

// NewSession starts a session for one merchant.
func (a *App) NewSession(merchantID int64) (*session.Session, error) {
	return session.New(merchantID, a.NewRunner,
		session.WithStartTimeout(a.cfg.Agent.StartTimeout.Duration))
}

// Close flushes traces and closes the run log database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.shutdownTrace != nil {
		errs = append(errs, a.shutdownTrace(ctx))
	}
	if a.database != nil {
		errs = append(errs, a.database.Close())
	}
	return errors.Join(errs...)
}

package bootstrap

import (
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"mailflow/adapter/out/persistence"
	"mailflow/adapter/out/provider"
	"mailflow/adapter/out/realtime"
	"mailflow/config"
	"mailflow/core/agent/llm"
	"mailflow/core/port/out"
	"mailflow/core/service/email"
	"mailflow/core/service/listener"
	"mailflow/core/service/sync"
	"mailflow/infra/database"
	"mailflow/pkg/logger"
)

// Dependencies is the wired object graph shared by the API and the
// engine. Both modes can run in one process; they share the same
// adapters and services.
type Dependencies struct {
	Config *config.Config
	DB     *sqlx.DB

	// Repositories
	EmailRepo out.EmailRepository

	// Providers
	Mailbox *provider.IMAPAdapter

	// Realtime
	RealtimeAdapter *realtime.SSEAdapter

	// Agent
	LLMClient *llm.Client

	// Services
	EmailService *email.Service
	SyncService  *sync.Service
	Registry     *listener.Registry
	Dispatcher   *listener.Dispatcher
	Scheduler    *listener.Scheduler
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	if cfg.EmailAddress == "" || cfg.EmailPassword == "" {
		return nil, nil, fmt.Errorf("EMAIL_ADDRESS and EMAIL_APP_PASSWORD are required")
	}

	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Logger()
	log := logger.Default()

	// SQLite mirror
	db, err := database.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	cleanups = append(cleanups, func() { db.Close() })
	if err := persistence.Migrate(db); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	deps.DB = db
	deps.EmailRepo = persistence.NewEmailAdapter(db)

	// IMAP
	deps.Mailbox = provider.NewIMAPAdapter(&provider.IMAPConfig{
		Host:              cfg.IMAPHost,
		Port:              cfg.IMAPPort,
		Username:          cfg.EmailAddress,
		Password:          cfg.EmailPassword,
		ConnectTimeout:    cfg.IMAPConnectTimeout,
		KeepaliveInterval: time.Duration(cfg.IMAPKeepaliveSec) * time.Second,
		IdleRenewInterval: time.Duration(cfg.IMAPIdleRenewMin) * time.Minute,
		MaxMessageBytes:   cfg.IMAPMaxMessageBytes,
		FetchBatchSize:    cfg.SyncBatchSize,
	}, zlog)
	cleanups = append(cleanups, func() { deps.Mailbox.Close() })

	// Realtime
	deps.RealtimeAdapter = realtime.NewSSEAdapter(zlog)

	// Agent gateway
	deps.LLMClient = llm.NewClient(llm.ClientConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		ModelHaiku:  cfg.LLMModelHaiku,
		ModelSonnet: cfg.LLMModelSonnet,
		ModelOpus:   cfg.LLMModelOpus,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     time.Duration(cfg.LLMTimeoutSec) * time.Second,
	})

	// Services
	deps.EmailService = email.New(deps.EmailRepo, deps.Mailbox, log)
	deps.SyncService = sync.New(deps.EmailRepo, deps.Mailbox, &sync.Config{
		DefaultWindow: time.Duration(cfg.SyncDefaultWindowDays) * 24 * time.Hour,
		IdleOverfetch: cfg.SyncIdleOverfetch,
	}, log)

	// Listener runtime
	deps.Registry = listener.NewRegistry(cfg.ListenersDir, log)
	contexts := &listener.ContextFactory{
		Emails:   deps.EmailService,
		Store:    deps.EmailRepo,
		Realtime: deps.RealtimeAdapter,
		Agent:    deps.LLMClient,
		Log:      log,
	}
	deps.Dispatcher = listener.NewDispatcher(deps.Registry, contexts, deps.RealtimeAdapter, log)
	deps.Scheduler = listener.NewScheduler(deps.Registry, deps.Dispatcher, log)

	// Registry reloads announce themselves to connected clients.
	deps.Registry.OnChange(deps.RealtimeAdapter.PushListenersUpdate)

	// Sync results feed the listener pipeline.
	deps.SyncService.SetEventSink(deps.Dispatcher)

	return deps, cleanup, nil
}

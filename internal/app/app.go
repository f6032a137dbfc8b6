package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/atvirokodosprendimai/erpcore/internal/adapters/events"
	"github.com/atvirokodosprendimai/erpcore/internal/adapters/gormdb"
	"github.com/atvirokodosprendimai/erpcore/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/erpcore/internal/auth"
	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
	"github.com/atvirokodosprendimai/erpcore/internal/core/ports"
	"github.com/atvirokodosprendimai/erpcore/internal/core/usecase"
	"github.com/atvirokodosprendimai/erpcore/internal/metrics"
	"github.com/atvirokodosprendimai/erpcore/migrations"
)

type Config struct {
	Addr        string
	DBPath      string
	PostgresDSN string

	JWTSecret    string
	TenantHeader string

	BootstrapAPIKey  string
	BootstrapKeyName string
	BootstrapRole    string

	WebhookURL    string
	WebhookSecret string

	SupportedLocales []string
	DefaultLocale    string
	DefaultTimezone  string
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewServer wires storage, use cases, the outbox dispatcher, and the HTTP
// surface. Migrations run before anything touches the database; on postgres
// the schema is expected to be managed out of band.
func NewServer(ctx context.Context, cfg Config, log *zap.Logger) (*http.Server, io.Closer, error) {
	var db *gormdb.DB
	var switcher ports.SchemaSwitcher
	var err error

	if cfg.PostgresDSN != "" {
		db, err = gormdb.OpenPostgres(cfg.PostgresDSN, 0, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		switcher = gormdb.NewPostgresSchemaSwitcher()
	} else {
		db, err = gormdb.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		switcher = gormdb.NoopSchemaSwitcher{}

		writeSQLDB, err := db.WriteSQLDB()
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
		}
		migCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = migrations.Up(migCtx, writeSQLDB)
		cancel()
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}

	tenantRepo := gormdb.NewTenantRepository(db)
	auditRepo := gormdb.NewAuditLogRepository(db)
	recordStore := gormdb.NewRecordStore(db)
	schemaRepo := gormdb.NewSchemaRepository(db)
	apiKeyRepo := gormdb.NewAPIKeyRepository(db)
	outboxRepo := gormdb.NewOutboxRepository(db)

	recorder := usecase.NewAuditRecorder(auditRepo)
	resolver := usecase.NewTenantResolver(tenantRepo, switcher, log)
	schemaService := usecase.NewSchemaService(schemaRepo)
	recordService := usecase.NewRecordService(recordStore, schemaService, recorder)
	authService := usecase.NewAuthService(apiKeyRepo)
	prefs := usecase.NewPrefsResolver(cfg.SupportedLocales, cfg.DefaultLocale, cfg.DefaultTimezone)

	tenantService, err := usecase.NewTenantService(tenantRepo, recorder)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	tokens, err := auth.NewTokens(cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	var publisher ports.EventPublisher
	if cfg.WebhookURL != "" {
		publisher = events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, 0)
	} else {
		publisher = events.NewLogPublisher(log)
	}
	dispatcher := usecase.NewOutboxDispatcher(outboxRepo, publisher, log, 2*time.Second, 100)
	dispatcher.Start(context.Background())

	if cfg.BootstrapAPIKey != "" {
		name := cfg.BootstrapKeyName
		if name == "" {
			name = "bootstrap"
		}
		role := cfg.BootstrapRole
		if role == "" {
			role = domain.RoleAdmin
		}

		bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := authService.Provision(bootstrapCtx, name, role, cfg.BootstrapAPIKey)
		bootstrapCancel()
		if err != nil {
			_ = dispatcher.Close()
			_ = db.Close()
			return nil, nil, fmt.Errorf("bootstrap api key: %w", err)
		}
	}

	handler := httpapi.NewHandler(httpapi.HandlerConfig{
		Resolver:      resolver,
		Records:       recordService,
		Schemas:       schemaService,
		TenantService: tenantService,
		Recorder:      recorder,
		AuthService:   authService,
		Tokens:        tokens,
		Prefs:         prefs,
		Metrics:       metrics.New(),
		Log:           log,
		TenantHeader:  cfg.TenantHeader,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{dispatcher, db}}, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/atvirokodosprendimai/erpcore/internal/app"
	"github.com/atvirokodosprendimai/erpcore/internal/auth"
	"github.com/atvirokodosprendimai/erpcore/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "erpcore",
		Usage: "Multi-tenant ERP core: tenant resolution and audit trail",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: ":8080",
				Usage: "HTTP listen address",
			},
			&cli.StringFlag{
				Name:  "db-path",
				Value: "./erpcore.sqlite",
				Usage: "SQLite file path",
			},
			&cli.StringFlag{
				Name:    "postgres-dsn",
				Sources: cli.EnvVars("ERPCORE_POSTGRES_DSN"),
				Usage:   "Postgres DSN; when set, overrides the sqlite backend and enables schema isolation",
			},
			&cli.StringFlag{
				Name:    "jwt-secret",
				Sources: cli.EnvVars("ERPCORE_JWT_SECRET"),
				Usage:   "HMAC secret for user token verification",
			},
			&cli.StringFlag{
				Name:    "tenant-header",
				Value:   "X-Tenant-ID",
				Sources: cli.EnvVars("ERPCORE_TENANT_HEADER"),
				Usage:   "Header consulted first during tenant resolution",
			},
			&cli.StringFlag{
				Name:    "bootstrap-api-key",
				Sources: cli.EnvVars("ERPCORE_BOOTSTRAP_API_KEY"),
				Usage:   "Optional admin API key to upsert at startup",
			},
			&cli.StringFlag{
				Name:    "bootstrap-key-name",
				Value:   "bootstrap",
				Sources: cli.EnvVars("ERPCORE_BOOTSTRAP_KEY_NAME"),
				Usage:   "Name for the bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("ERPCORE_WEBHOOK_URL"),
				Usage:   "Audit outbox webhook target URL (enables push delivery)",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("ERPCORE_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
			},
			&cli.StringFlag{
				Name:    "locales",
				Value:   "en",
				Sources: cli.EnvVars("ERPCORE_LOCALES"),
				Usage:   "Comma-separated supported locales; the first is the default",
			},
			&cli.StringFlag{
				Name:    "timezone",
				Value:   "UTC",
				Sources: cli.EnvVars("ERPCORE_TIMEZONE"),
				Usage:   "Default timezone",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("ERPCORE_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "env",
				Value:   "development",
				Sources: cli.EnvVars("ERPCORE_ENV"),
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:  "mint-token",
				Usage: "Mint a user JWT for testing",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "jwt-secret", Sources: cli.EnvVars("ERPCORE_JWT_SECRET")},
					&cli.StringFlag{Name: "user", Required: true, Usage: "User id (token subject)"},
					&cli.StringFlag{Name: "tenant", Usage: "Tenant affiliation claim"},
				},
				Action: mintToken,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func serve(ctx context.Context, c *cli.Command) error {
	zlog, err := logger.New(logger.Config{
		Level:       c.String("log-level"),
		Environment: c.String("env"),
		ServiceName: "erpcore",
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = zlog.Sync() }()

	locales := splitNonEmpty(c.String("locales"))
	defaultLocale := ""
	if len(locales) > 0 {
		defaultLocale = locales[0]
	}

	cfg := app.Config{
		Addr:             c.String("addr"),
		DBPath:           c.String("db-path"),
		PostgresDSN:      c.String("postgres-dsn"),
		JWTSecret:        c.String("jwt-secret"),
		TenantHeader:     c.String("tenant-header"),
		BootstrapAPIKey:  c.String("bootstrap-api-key"),
		BootstrapKeyName: c.String("bootstrap-key-name"),
		WebhookURL:       c.String("webhook-url"),
		WebhookSecret:    c.String("webhook-secret"),
		SupportedLocales: locales,
		DefaultLocale:    defaultLocale,
		DefaultTimezone:  c.String("timezone"),
	}

	server, closer, err := app.NewServer(ctx, cfg, zlog)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer func() {
		if closeErr := closer.Close(); closeErr != nil {
			zlog.Error("close resources", zap.Error(closeErr))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case sig := <-sigCh:
		zlog.Info("received signal", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func mintToken(_ context.Context, c *cli.Command) error {
	tokens, err := auth.NewTokens(c.String("jwt-secret"), 24*time.Hour)
	if err != nil {
		return err
	}
	token, err := tokens.Mint(c.String("user"), c.String("tenant"), time.Now())
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

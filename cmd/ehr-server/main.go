package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/ehrai/internal/config"
	"github.com/ehr/ehrai/internal/domain/identity"
	"github.com/ehr/ehrai/internal/domain/labreport"
	"github.com/ehr/ehrai/internal/domain/prescription"
	"github.com/ehr/ehrai/internal/domain/records"
	"github.com/ehr/ehrai/internal/domain/structuring"
	"github.com/ehr/ehrai/internal/platform/activity"
	"github.com/ehr/ehrai/internal/platform/auth"
	"github.com/ehr/ehrai/internal/platform/blobstore"
	"github.com/ehr/ehrai/internal/platform/db"
	"github.com/ehr/ehrai/internal/platform/llm"
	"github.com/ehr/ehrai/internal/platform/middleware"
	"github.com/ehr/ehrai/internal/platform/notification"
	"github.com/ehr/ehrai/internal/platform/reporting"
	"github.com/ehr/ehrai/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "ehr-server",
		Short: "Clinic EHR API server with prescription structuring",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(structureCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
}

// migrationFiles returns the embedded schema, or dir when one is given.
func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationFiles(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationFiles(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

// readInput returns the text of path, or of stdin when path is empty or "-".
func readInput(path string, stdin io.Reader) (string, error) {
	if path == "" || path == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

func structureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "structure [file]",
		Short: "Structure a dictated prescription read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, _ := cmd.Flags().GetString("strategy")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.WarnLevel)

			var path string
			if len(args) == 1 {
				path = args[0]
			}
			text, err := readInput(path, cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			ctx := cmd.Context()
			svc, err := newStructuringService(ctx, cfg, nil, nil, logger)
			if err != nil {
				return err
			}

			req := structuring.Request{Text: text}
			var sp *structuring.StructuredPrescription
			switch strategy {
			case "local":
				sp, err = svc.StructureLocal(ctx, req)
			case "remote":
				sp, err = svc.StructureRemote(ctx, req)
			case "auto":
				var out *structuring.Outcome
				if out, err = svc.StructureAuto(ctx, req); err == nil {
					sp = out.Result
					if out.FallbackReason != "" {
						fmt.Fprintf(cmd.ErrOrStderr(), "remote structuring unavailable (%s), used local\n", out.FallbackReason)
					}
				}
			default:
				return fmt.Errorf("unknown strategy %q (want local, remote or auto)", strategy)
			}
			if err != nil {
				if raw := structuring.RawResponse(err); raw != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "raw model response:\n%s\n", raw)
				}
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), structuring.Summary(sp))
			return nil
		},
	}
	cmd.Flags().String("strategy", "auto", "Extraction strategy: local, remote or auto")
	return cmd
}

// parseRoles splits a comma separated role list and rejects unknown roles.
func parseRoles(raw string) ([]string, error) {
	var roles []string
	for _, r := range strings.Split(raw, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		switch r {
		case auth.RoleAdmin, auth.RoleDoctor, auth.RolePatient:
			roles = append(roles, r)
		default:
			return nil, fmt.Errorf("unknown role %q", r)
		}
	}
	if len(roles) == 0 {
		return nil, errors.New("at least one role is required")
	}
	return roles, nil
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development token signed with AUTH_SIGNING_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			rawRoles, _ := cmd.Flags().GetString("roles")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return errors.New("AUTH_SIGNING_KEY is not set")
			}
			if cfg.IsProduction() {
				return errors.New("development tokens cannot be issued when ENV=production")
			}
			if subject == "" {
				return errors.New("--subject is required")
			}
			roles, err := parseRoles(rawRoles)
			if err != nil {
				return err
			}

			token, err := auth.SignToken([]byte(cfg.AuthSigningKey), subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Record id of the admin, doctor or patient")
	cmd.Flags().String("roles", auth.RoleDoctor, "Comma separated roles")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

// newStructuringService builds the local and, when a key is configured, the
// remote extractor. patients and logs may be nil.
func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		AppName:  "ehr-server",
	}
}

func newStructuringService(ctx context.Context, cfg *config.Config, patients structuring.PatientLookup, logs structuring.AILogRepository, logger zerolog.Logger) (*structuring.Service, error) {
	var model structuring.Model
	if cfg.RemoteStructuringEnabled() {
		gm, err := llm.NewGeminiModel(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		model = gm
	}
	remote := structuring.NewRemoteExtractor(model, patients, structuring.RemoteConfig{
		ModelName:       cfg.StructuringModel,
		Timeout:         cfg.StructuringTimeout,
		MaxOutputTokens: cfg.StructuringMaxTokens,
	}, logger)
	return structuring.NewService(structuring.NewLocalExtractor(), remote, logs, logger), nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	if cfg.BlobBackend != "s3" {
		return blobstore.NewMemoryStore(cfg.MaxUploadBytes), nil
	}
	client, err := blobstore.NewS3Client(ctx, cfg.S3Endpoint)
	if err != nil {
		return nil, err
	}
	return blobstore.NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix, cfg.MaxUploadBytes), nil
}

// newPublisher returns nil when no queue is configured.
func newPublisher(ctx context.Context, cfg *config.Config) (notification.Publisher, error) {
	if cfg.SQSQueueName == "" {
		return nil, nil
	}
	client, err := notification.NewSQSClient(ctx, cfg.S3Endpoint)
	if err != nil {
		return nil, err
	}
	pub, err := notification.NewSQSPublisher(ctx, client, cfg.SQSQueueName)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

func runServer(migrate bool) error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if migrate {
		n, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Int("applied", n).Msg("migrations applied")
	}

	// Activity trail
	activityStore := activity.NewPGStore(pool)
	var recorder activity.Recorder = activityStore
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub := activity.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaActivityTopic)
		defer kafkaPub.Close()
		recorder = activity.Fanout(activityStore, kafkaPub)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaActivityTopic).Msg("streaming activity to kafka")
	}
	activityLog := activity.NewLogger(recorder, logger)

	// Outbound integrations
	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create blob store")
	}
	publisher, err := newPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create notification publisher")
	}
	notifier := notification.NewNotifier(publisher, notification.NewTemplateEngine(), logger)

	// Domain services
	identitySvc := identity.NewService(identity.NewDoctorRepo(pool), identity.NewPatientRepo(pool), activityLog)
	structuringSvc, err := newStructuringService(ctx, cfg, identitySvc, structuring.NewAILogRepo(pool), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create structuring service")
	}
	if !structuringSvc.RemoteConfigured() {
		logger.Warn().Msg("GEMINI_API_KEY is not set: remote structuring is disabled")
	}
	prescriptionRepo := prescription.NewRepo(pool)
	reportRepo := labreport.NewRepo(pool)
	prescriptionSvc := prescription.NewService(prescriptionRepo, identitySvc, notifier, activityLog)
	reportSvc := labreport.NewService(reportRepo, blobs, identitySvc, notifier, activityLog, logger)
	recordsSvc := records.NewService(identitySvc, prescriptionRepo, reportRepo, activityLog)
	dashboardSvc := reporting.NewService(reporting.NewPGStore(pool))

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			c.Set(middleware.RequestIDKey, id)
		},
	}))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{HSTS: !cfg.IsDev()}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(middleware.DefaultBodyLimit, cfg.MaxUploadBytes, labreport.UploadPath))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	if cfg.IsDev() && cfg.AuthSigningKey == "" && cfg.AuthIssuer == "" && cfg.AuthJWKSURL == "" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}
	e.Use(middleware.Activity(activityLog))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")

	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)
	structuring.NewHandler(structuringSvc).RegisterRoutes(apiV1, middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.StructuringRate,
		BurstSize:         cfg.StructuringBurst,
		KeyFunc:           middleware.UserKey,
	}))
	prescription.NewHandler(prescriptionSvc).RegisterRoutes(apiV1)
	labreport.NewHandler(reportSvc).RegisterRoutes(apiV1)
	records.NewHandler(recordsSvc).RegisterRoutes(apiV1)
	reporting.NewHandler(dashboardSvc).RegisterRoutes(apiV1)
	activity.NewHandler(activityStore).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Str("blob_backend", cfg.BlobBackend).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

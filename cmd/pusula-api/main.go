package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pusulahq/pusula/backend/internal/auth"
	"github.com/pusulahq/pusula/backend/internal/config"
	"github.com/pusulahq/pusula/backend/internal/database"
	"github.com/pusulahq/pusula/backend/internal/erp"
	"github.com/pusulahq/pusula/backend/internal/events"
	"github.com/pusulahq/pusula/backend/internal/insight"
	"github.com/pusulahq/pusula/backend/internal/logging"
	"github.com/pusulahq/pusula/backend/internal/notify"
	"github.com/pusulahq/pusula/backend/internal/server"
	"github.com/pusulahq/pusula/backend/internal/store"
	syncengine "github.com/pusulahq/pusula/backend/internal/sync"
	"github.com/pusulahq/pusula/backend/internal/textgen"
	"github.com/pusulahq/pusula/backend/internal/timesheet"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pusula-api",
		Short: "Pusula CRM backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Bearer token signing secret (overrides env)")
	cmd.PersistentFlags().String("erp-base-url", defaults.GetString("erp.base_url"), "ERP API base URL")
	cmd.PersistentFlags().String("erp-api-token", "", "ERP API bearer token (overrides env)")
	cmd.PersistentFlags().Duration("erp-fetch-timeout", defaults.GetDuration("erp.fetch_timeout"), "Timeout for one ERP fetch")
	cmd.PersistentFlags().String("agent-cron", defaults.GetString("agent.cron"), "Cron schedule for the proactive agent scan")
	cmd.PersistentFlags().String("gemini-api-key", "", "Gemini API key (overrides env)")
	cmd.PersistentFlags().String("gemini-model", defaults.GetString("gemini.model"), "Gemini model name")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "erp.base_url", "erp-base-url")
	bindFlag(cmd, "erp.api_token", "erp-api-token")
	bindFlag(cmd, "erp.fetch_timeout", "erp-fetch-timeout")
	bindFlag(cmd, "agent.cron", "agent-cron")
	bindFlag(cmd, "gemini.api_key", "gemini-api-key")
	bindFlag(cmd, "gemini.model", "gemini-model")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, false)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AuthSigningSecret),
		Issuer:        appConfig.AuthIssuer,
		Audience:      appConfig.AuthAudience,
		TokenTTL:      appConfig.AuthTokenTTL,
	})

	dispatcher := events.NewDispatcher()
	idProvider := store.NewUUIDProvider()

	settingsService, err := store.NewSettingsService(store.SettingsServiceConfig{
		Database: db,
		Clock:    time.Now,
	})
	if err != nil {
		return err
	}

	engine, err := syncengine.NewEngine(syncengine.EngineConfig{
		Database:     db,
		Settings:     settingsService,
		Clock:        time.Now,
		IDProvider:   idProvider,
		Logger:       logger,
		Events:       dispatcher,
		FetchTimeout: appConfig.ERPFetchTimeout,
	})
	if err != nil {
		return err
	}

	erpClient := erp.NewClient(appConfig.ERPBaseURL, appConfig.ERPAPIToken)

	timesheetService, err := timesheet.NewService(timesheet.ServiceConfig{
		Database: db,
		Config: timesheet.Config{
			Workplace: timesheet.Coordinate{
				Latitude:  appConfig.WorkplaceLatitude,
				Longitude: appConfig.WorkplaceLongitude,
			},
			RadiusMeters: appConfig.WorkplaceRadiusM,
		},
	})
	if err != nil {
		return err
	}

	notifier, err := notify.NewService(notify.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
		Events:     dispatcher,
	})
	if err != nil {
		return err
	}

	generator := textgen.NewDisabledGenerator()
	if appConfig.GeminiAPIKey != "" {
		geminiGenerator, err := textgen.NewGeminiGenerator(ctx, textgen.GeminiConfig{
			APIKey: appConfig.GeminiAPIKey,
			Model:  appConfig.GeminiModel,
		})
		if err != nil {
			return err
		}
		generator = geminiGenerator
	} else {
		logger.Warn("gemini api key not configured, follow-up drafting will be skipped")
	}

	agent, err := insight.NewAgent(insight.AgentConfig{
		Database:   db,
		Settings:   settingsService,
		Notifier:   notifier,
		Generator:  generator,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenValidator: tokenIssuer,
		SyncEngine:     engine,
		ERPClient:      erpClient,
		Timesheets:     timesheetService,
		Notifier:       notifier,
		Settings:       settingsService,
		Agent:          agent,
		Events:         dispatcher,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	scheduler, err := startScheduler(appConfig.AgentCronSpec, settingsService, agent, notifier, logger)
	if err != nil {
		return err
	}
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"registrar/internal/config"
	"registrar/internal/credential"
	"registrar/internal/directory"
	"registrar/internal/document"
	"registrar/internal/domain"
	"registrar/internal/github"
	"registrar/internal/repository/memory"
	session_ps "registrar/internal/repository/postgres"
	"registrar/internal/service/mirror"
	"registrar/internal/service/sheet"
	"registrar/internal/service/tg"
	"registrar/internal/store"
	"registrar/internal/utils"
	pkg_config "registrar/pkg/config"
	"registrar/pkg/db/postgres"
	"registrar/pkg/masker"
	"registrar/pkg/tgbotapisfm"
	"registrar/pkg/zaplogger"
)

func main() {
	bootLogger, err := zaplogger.New("info")
	if err != nil {
		panic(err)
	}

	cfg := config.Config{}
	utils.HandleFatalError(pkg_config.LoadEnv(".env", &cfg, bootLogger), "error loading configs", bootLogger)

	logger, err := zaplogger.New(cfg.LogLevel)
	utils.HandleFatalError(err, "error creating logger", bootLogger)
	defer logger.Sync()

	utils.HandleFatalError(cfg.Validate(), "invalid config", logger)
	utils.HandleFatalError(masker.LogConfigs(logger, &cfg), "error logging configs", logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := newStorage(cfg, logger)
	utils.HandleFatalError(err, "error opening session storage", logger)

	creds := credential.NewKeeper(storage, credential.DefaultKey)
	if cfg.GitHubToken != "" {
		utils.HandleFatalError(creds.Set(ctx, cfg.GitHubToken), "error seeding credential", logger)
	}

	client := github.NewClient(cfg.GitHubAPI, creds, logger.Named("github"))
	roster := document.NewRoster(client.File(github.Location{
		Owner:  cfg.RosterConfig.Owner,
		Repo:   cfg.RosterConfig.Repo,
		Path:   cfg.RosterConfig.Path,
		Branch: cfg.RosterConfig.Branch,
	}), logger)

	var ledger domain.RevenueLedger
	if cfg.RevenueConfig.Enabled {
		ledger = document.NewRevenue(client.File(github.Location{
			Owner:  cfg.RevenueConfig.Owner,
			Repo:   cfg.RevenueConfig.Repo,
			Path:   cfg.RevenueConfig.Path,
			Branch: cfg.RevenueConfig.Branch,
		}), cfg.RevenueConfig.Amount, logger)
	}

	newSession := func(name string) *store.Store {
		return store.New(store.Config{
			Roster:      roster,
			Storage:     storage,
			Ledger:      ledger,
			Credentials: creds,
			Verifier:    client,
			TTL:         cfg.CacheConfig.TTL,
		}, logger.Named(name))
	}

	opts := tg.Options{
		VerifyBaseURL:   cfg.VerifyConfig.BaseURL,
		RegistrationFee: cfg.RevenueConfig.Amount,
		RequestTimeout:  cfg.CacheConfig.RequestTimeout,
	}
	if cfg.DirectoryConfig.File != "" {
		students, err := directory.Load(cfg.DirectoryConfig.File, logger.Named("directory"))
		utils.HandleFatalError(err, "error loading student directory", logger)
		opts.Directory = students
	}

	var sheetMirror *mirror.Mirror
	if cfg.GoogleSheetConfig.Enabled() {
		sheetMirror, err = newMirror(ctx, cfg, newSession("mirror"), logger)
		utils.HandleFatalError(err, "error creating sheet mirror", logger)
		defer sheetMirror.Stop()
		opts.Mirror = sheetMirror
	}

	admins, err := cfg.TelegramConfig.AdminIDs()
	utils.HandleFatalError(err, "invalid admin list", logger)

	tgHandler := tg.NewTGHandler(newSession("bot"), opts, logger.Named("tg"))
	bot, err := tgbotapisfm.NewBot(tgbotapisfm.Config{
		Token:           cfg.TelegramConfig.BotToken,
		Expiration:      24 * time.Hour,
		CleanupInterval: 1 * time.Hour,
		States:          tgHandler.StatesMap(),
		DefaultState:    tg.StateIdle,
	}, []int64{}, logger.Named("bot"))
	utils.HandleFatalError(err, "error creating bot", logger)
	bot.AllowList = admins

	errChan := bot.Start(0, 30)
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("bot stopped", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		bot.Stop()
	}
}

func newStorage(cfg config.Config, logger *zap.Logger) (domain.SessionStorage, error) {
	switch cfg.StorageBackend {
	case "postgres":
		db, err := postgres.NewGormConnection(cfg.DBConfig, logger)
		if err != nil {
			return nil, err
		}
		repo := session_ps.NewSessionRepository(db)
		if err := repo.Migrate(); err != nil {
			return nil, err
		}
		return repo, nil
	default:
		if cfg.StorageFile != "" {
			return memory.NewWithFile(cfg.StorageFile)
		}
		return memory.New(), nil
	}
}

func newMirror(ctx context.Context, cfg config.Config, session *store.Store, logger *zap.Logger) (*mirror.Mirror, error) {
	credsOpt, err := sheet.CredentialsOption(ctx, cfg.GoogleSheetConfig.CredentialsBase64)
	if err != nil {
		return nil, err
	}
	colMap := sheet.NewDefaultColumnMap()
	if cfg.GoogleSheetConfig.Columns != "" {
		colMap = sheet.CreateColumnMapFromOrder(cfg.GoogleSheetConfig.Columns)
	}
	sheetService, err := sheet.NewSheetService(ctx, sheet.Settings{
		SpreadsheetID: cfg.GoogleSheetConfig.SheetID,
		SheetID:       cfg.GoogleSheetConfig.TabID,
		PauseMs:       cfg.GoogleSheetConfig.PauseMs,
		VerifyBaseURL: cfg.VerifyConfig.BaseURL,
	}, colMap, credsOpt)
	if err != nil {
		return nil, err
	}
	return mirror.NewMirror(sheetService, session, cfg.GoogleSheetConfig.SyncInterval, logger.Named("mirror")), nil
}

package main

import (
	"log"
	"net/http"

	"github.com/cloudcanvas/accounts/config"
	"github.com/cloudcanvas/accounts/dbhelper"
	"github.com/cloudcanvas/accounts/mailer"
	"github.com/cloudcanvas/accounts/oauth"
	"github.com/cloudcanvas/accounts/passwords"
	"github.com/cloudcanvas/accounts/routes"
	"github.com/cloudcanvas/accounts/sessions"
	"github.com/cloudcanvas/accounts/twofactor"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const issuerName = "CloudCanvas"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var logger *zap.Logger
	if cfg.Production {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	db, err := dbhelper.OpenDB(cfg)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	if err := dbhelper.InitDB(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	users := &dbhelper.UserDB{DB: db}
	sessionStore := &dbhelper.SessionDB{DB: db}
	links := &dbhelper.LinkDB{DB: db}
	history := &dbhelper.HistoryDB{DB: db}
	challenges := &dbhelper.ChallengeDB{DB: db}
	codes := &dbhelper.CodeDB{DB: db}
	backups := &dbhelper.BackupDB{DB: db}

	var mail mailer.Sender
	if cfg.SMTP.Host != "" {
		mail = &mailer.SMTPSender{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Logger:   logger,
		}
	} else {
		mail = &mailer.DisabledSender{Logger: logger}
	}

	passwordService := passwords.NewService(history)
	sessionManager := sessions.NewManager(cfg.SessionSecret, sessionStore, logger)
	twoFactorEngine := twofactor.NewEngine(
		users,
		challenges,
		codes,
		backups,
		sessionManager,
		mail,
		issuerName,
		logger,
	)
	reconciler := oauth.NewReconciler(users, links, cfg.AdminEmails, logger)
	providers := oauth.NewRegistry(
		oauth.NewGoogleProvider(cfg.Google),
		oauth.NewGitHubProvider(cfg.GitHub),
	)

	api := &routes.API{
		Users:      users,
		Passwords:  passwordService,
		Sessions:   sessionManager,
		TwoFactor:  twoFactorEngine,
		Providers:  providers,
		Reconciler: reconciler,
		Logger:     logger,
		Secure:     cfg.Production,
		AppURL:     cfg.AppURL,
		LoginURL:   cfg.LoginURL,
	}

	r := mux.NewRouter()
	r.StrictSlash(true)
	routes.CreateRoutes(r, api)

	logger.Info("listening", zap.String("port", cfg.Port))
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/novelboard/internal/auth"
	"github.com/MarcoPoloResearchLab/novelboard/internal/config"
	"github.com/MarcoPoloResearchLab/novelboard/internal/logging"
	"github.com/MarcoPoloResearchLab/novelboard/internal/server"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	sessionIssuer     = "novelboard-auth"
	sessionAudience   = "novelboard-api"
	sessionCookieName = "novelboard_session"
)

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	app, err := buildComponents(appConfig, db, logger)
	if err != nil {
		return err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        sessionIssuer,
		Audience:      sessionAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}
	validator, err := tokenIssuer.Validator(sessionCookieName)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:             tokenIssuer,
		Authenticator:      validator,
		Dashboard:          app.service,
		Sessions:           server.NewSessionRegistry(appConfig.TokenTTL, nil),
		Roster:             app.classifier.Roster(),
		SharedPassword:     appConfig.SharedPassword,
		LoginRatePerMinute: appConfig.LoginRatePerMinute,
		AllowedOrigins:     appConfig.AllowedOrigins,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.Stringers("reviewers", app.classifier.Roster().Reviewers()))
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

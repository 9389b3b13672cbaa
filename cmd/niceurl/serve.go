package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	v1 "go_niceurl/api/v1"
	"go_niceurl/api/v1/resolve"
	"go_niceurl/internal/auth"
	"go_niceurl/internal/db"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Migrate {
		if err := db.Migrate(a.db, logrus.NewEntry(a.logger)); err != nil {
			return err
		}
	}

	var tokens *auth.Tokens
	if a.cfg.JWT.Secret != "" {
		tokens = auth.NewTokens(a.cfg.JWT.Secret, a.cfg.JWT.Issuer, tokenTTL(a.cfg))
	} else {
		a.logger.Warn("JWT_SECRET not set, rule admin API disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1.SetupRouter(r, v1.Deps{
		Resolver: a.router,
		Settings: resolve.Settings{
			Enabled:          a.cfg.Router.Enabled,
			InversionEnabled: a.cfg.Router.InversionEnabled,
			Debug:            a.cfg.Site.Debug,
			DefaultURL:       a.cfg.Site.DefaultURL,
		},
		Rules:     a.rules,
		Validator: a.validator,
		Tokens:    tokens,
		Gatherer:  a.registry,
		Logger:    logrus.NewEntry(a.logger),
	})

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("Server starting on %s", a.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apikeys "github.com/abrahamahn/go-apikeys"
)

func setup(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	logger, err := NewLogger(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return NewApp(ctx, cfg, logger)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.Logger.Sync() //nolint:errcheck

	router, err := NewRouter(app)
	if err != nil {
		_ = app.Close(context.Background())
		return err
	}

	server := &http.Server{
		Addr:              app.Config.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: app.Config.Server.ReadTimeout,
		ReadTimeout:       app.Config.Server.ReadTimeout,
		WriteTimeout:      app.Config.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		app.Logger.Info("Server listening",
			zap.String("addr", server.Addr),
			zap.String("version", app.Manager.Version),
			zap.String("storage", app.Config.Storage.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			_ = app.Close(context.Background())
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	app.Logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := app.Close(shutdownCtx); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}

	app.Logger.Info("Server stopped")
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	direction, _ := cmd.Flags().GetString("direction")

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return err
	}
	logger, err := NewLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	storage, err := OpenStorage(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close() //nolint:errcheck

	if err := storage.Migrate(direction); err != nil {
		return err
	}
	logger.Info("Migrations applied", zap.String("direction", direction))
	return nil
}

func runIssue(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	userID, _ := flags.GetString("user")
	name, _ := flags.GetString("name")
	rawScopes, _ := flags.GetStringSlice("scope")
	tenant, _ := flags.GetString("tenant")
	expiresIn, _ := flags.GetDuration("expires-in")

	scopes, err := apikeys.ParseScopes(rawScopes)
	if err != nil {
		return err
	}
	opts := apikeys.CreateAPIKeyOptions{Name: name, Scopes: scopes}
	if tenant != "" {
		opts.TenantID = &tenant
	}
	if expiresIn > 0 {
		expiresAt := time.Now().UTC().Add(expiresIn)
		opts.ExpiresAt = &expiresAt
	}

	app, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close(context.Background()) //nolint:errcheck

	result, err := app.Manager.Service().CreateAPIKey(cmd.Context(), userID, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:        %s\n", result.APIKey.ID)
	fmt.Fprintf(out, "prefix:    %s\n", result.APIKey.KeyPrefix)
	if scopes.IsFullAccess() {
		fmt.Fprintln(out, "scopes:    (full access)")
	} else {
		fmt.Fprintf(out, "scopes:    %s\n", scopes.String())
	}
	fmt.Fprintf(out, "plaintext: %s\n", result.Plaintext)
	fmt.Fprintln(out, "The plaintext is shown once and cannot be recovered.")
	return nil
}

func runSession(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return err
	}
	sessions, err := apikeys.NewJWTSessionAuthenticator([]byte(cfg.Auth.SessionSecret), cfg.Auth.SessionIssuer, cfg.Auth.SessionTTL)
	if err != nil {
		return err
	}
	token, err := sessions.IssueSessionToken(userID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/visionbot/internal/auth"
	"github.com/memohai/visionbot/internal/config"
	"github.com/memohai/visionbot/internal/connector"
	"github.com/memohai/visionbot/internal/dialog"
	"github.com/memohai/visionbot/internal/dispatch"
	"github.com/memohai/visionbot/internal/handlers"
	"github.com/memohai/visionbot/internal/logger"
	"github.com/memohai/visionbot/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			auth.NewTrustedOrigins,
			provideKeySource,
			provideAuthenticator,
			provideConnector,
			provideSender,
			provideSessions,
			provideDialogHandler,
			dispatch.NewGreeter,
			provideRouter,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewMessagesServerHandler),
			provideServerHandler(handlers.NewAdminServerHandler),
			provideServer,
		),
		fx.Invoke(
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideKeySource(log *slog.Logger, cfg config.Config) auth.KeySource {
	if secret := strings.TrimSpace(cfg.Bot.HMACSecret); secret != "" {
		return auth.NewSecretKeys(secret)
	}
	return auth.NewOpenIDKeys(log, cfg.Bot.OpenIDMetadataURL, nil, cfg.Bot.KeyRefresh())
}

func provideAuthenticator(log *slog.Logger, cfg config.Config, keys auth.KeySource, trusted *auth.TrustedOrigins) *auth.Authenticator {
	a := auth.NewAuthenticator(log, auth.Options{
		AppID:     cfg.Bot.AppID,
		Issuers:   cfg.Bot.Issuers,
		Keys:      keys,
		Trusted:   trusted,
		ClockSkew: cfg.Bot.Skew(),
	})
	if !a.Enabled() {
		log.Warn("bot.app_id not set: inbound requests are not verified (emulator mode)")
	}
	return a
}

func provideConnector(log *slog.Logger, cfg config.Config, trusted *auth.TrustedOrigins) *connector.Client {
	return connector.NewClient(log, connector.Config{
		AppID:       cfg.Bot.AppID,
		AppPassword: cfg.Bot.AppPassword,
		TokenURL:    cfg.Bot.TokenURL,
		Scope:       cfg.Bot.OAuthScope,
	}, trusted, nil)
}

func provideSender(client *connector.Client) connector.Sender {
	return client
}

func provideSessions() *dialog.Sessions {
	return dialog.NewSessions(dialog.NewSession)
}

func provideDialogHandler(log *slog.Logger, cfg config.Config, sender connector.Sender, sessions *dialog.Sessions) dialog.Handler {
	return dialog.NewEchoHandler(log, sender, sessions, cfg.Dialog.EchoPrefix)
}

func provideRouter(log *slog.Logger, handler dialog.Handler, greeter *dispatch.Greeter) *dispatch.Router {
	return dispatch.NewRouter(log, handler, greeter)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, router *dispatch.Router, shutdowner fx.Shutdowner, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting visionbot", slog.String("version", version), slog.String("addr", cfg.Server.Addr))
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			done := make(chan struct{})
			go func() {
				router.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return fmt.Errorf("waiting for conversation handlers: %w", ctx.Err())
			}
		},
	})
}

package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/icupa/outreach/internal/config"
	"github.com/icupa/outreach/internal/conversation"
	"github.com/icupa/outreach/internal/dispatch"
	"github.com/icupa/outreach/internal/followup"
	"github.com/icupa/outreach/internal/handlers"
	"github.com/icupa/outreach/internal/server"
)

var ServerModule = fx.Module(
	"server",
	fx.Provide(
		annotateHandler(handlers.NewPingHandler),
		annotateHandler(handlers.NewVoiceHandler),
		annotateHandler(handlers.NewAPIHandler),
		annotateHandler(provideWebhookHandler),

		provideFollowUpRunner,
		provideServer,
	),
	fx.Invoke(
		startFollowUpRunner,
		startServer,
	),
)

// annotateHandler wraps a handler provider function with fx.Annotate
// to register it as a server.Handler with the correct group tag
func annotateHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

// ---------------------------------------------------------------------------
// server
// ---------------------------------------------------------------------------

func provideFollowUpRunner(log *slog.Logger, service *followup.Service, cfg config.Config) *followup.Runner {
	return followup.NewRunner(log, service,
		config.Duration(cfg.Scheduler.SweepInterval, config.DefaultSweepInterval))
}

func provideWebhookHandler(log *slog.Logger, conversationSvc *conversation.Service, dispatchSvc *dispatch.Service, cfg config.Config) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, conversationSvc, dispatchSvc, cfg.WhatsApp.VerifyToken)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Server.APIToken, params.ServerHandlers...)
}

func startFollowUpRunner(lc fx.Lifecycle, runner *followup.Runner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return runner.Start()
		},
		OnStop: func(ctx context.Context) error {
			return runner.Stop(ctx)
		},
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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
			return nil
		},
	})
}

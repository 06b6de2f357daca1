// Package dispatch routes authenticated activities to the handling path for their kind.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/memohai/visionbot/internal/activity"
	"github.com/memohai/visionbot/internal/dialog"
)

// Router dispatches activities by kind. Message handling runs in the
// background; Route returns without waiting for it.
type Router struct {
	handler dialog.Handler
	greeter *Greeter
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewRouter creates a Router.
func NewRouter(log *slog.Logger, handler dialog.Handler, greeter *Greeter) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		handler: handler,
		greeter: greeter,
		logger:  log.With(slog.String("component", "router")),
	}
}

// Route handles one activity. It never panics and never reports downstream failures.
func (r *Router) Route(ctx context.Context, a *activity.Activity) {
	if a == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("route panic", slog.String("type", string(a.Type)), slog.Any("panic", rec))
		}
	}()

	switch kind := a.Kind(); kind {
	case activity.TypeMessage:
		activity.NormalizeImageAttachment(a)
		r.dispatchMessage(ctx, a)
	case activity.TypeConversationUpdate:
		if len(a.MembersAdded) == 0 {
			return
		}
		if r.greeter == nil {
			r.logger.Warn("welcome dropped: no greeter",
				slog.String("conversation_id", a.Conversation.ID),
				slog.Int("members_added", len(a.MembersAdded)),
			)
			return
		}
		r.greeter.Greet(ctx, a, a.MembersAdded)
	case activity.TypeContactRelationUpdate,
		activity.TypeTyping,
		activity.TypeDeleteUserData,
		activity.TypePing:
		r.logger.Warn("activity type ignored", slog.String("type", kind.String()))
	default:
		r.logger.Warn("unknown activity type ignored", slog.String("type", string(a.Type)))
	}
}

// Wait blocks until every background message handler has returned.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) dispatchMessage(ctx context.Context, a *activity.Activity) {
	if r.handler == nil {
		r.logger.Warn("message dropped: no conversation handler")
		return
	}
	handlerCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("conversation handler panic",
					slog.String("conversation_id", a.Conversation.ID),
					slog.Any("error", fmt.Errorf("panic: %v", rec)),
				)
			}
		}()
		if err := r.handler.Handle(handlerCtx, a); err != nil {
			r.logger.Error("conversation handler failed",
				slog.String("conversation_id", a.Conversation.ID),
				slog.Any("error", err),
			)
		}
	}()
}

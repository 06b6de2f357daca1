package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/memohai/visionbot/internal/activity"
	"github.com/memohai/visionbot/internal/connector"
)

// WelcomeText builds the greeting for a member who joined a conversation.
func WelcomeText(member activity.ChannelAccount) string {
	text := "Welcome"
	if member.Name != "" {
		text += " " + member.Name
	}
	return text + "!"
}

// Greeter welcomes participants added to a conversation.
type Greeter struct {
	sender connector.Sender
	logger *slog.Logger
}

// NewGreeter creates a Greeter sending replies through sender.
func NewGreeter(log *slog.Logger, sender connector.Sender) *Greeter {
	if log == nil {
		log = slog.Default()
	}
	return &Greeter{
		sender: sender,
		logger: log.With(slog.String("component", "greeter")),
	}
}

// Greet sends one welcome reply per new member other than the bot itself, in
// list order. A failed send is logged and does not stop the remaining members.
// It returns the number of replies delivered.
func (g *Greeter) Greet(ctx context.Context, a *activity.Activity, newMembers []activity.ChannelAccount) int {
	if a == nil || g.sender == nil {
		return 0
	}
	sent := 0
	for _, member := range newMembers {
		if member.ID == a.Recipient.ID {
			continue
		}
		if err := g.send(ctx, a.CreateReply(WelcomeText(member))); err != nil {
			g.logger.Error("welcome reply failed",
				slog.String("conversation_id", a.Conversation.ID),
				slog.String("member_id", member.ID),
				slog.Any("error", err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (g *Greeter) send(ctx context.Context, reply *activity.Activity) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return g.sender.ReplyToActivity(ctx, reply)
}

package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/visionbot/internal/activity"
)

type fakeSender struct {
	mu      sync.Mutex
	replies  []*activity.Activity
	failFor  map[string]error
	panicFor map[string]string
}

func (s *fakeSender) ReplyToActivity(ctx context.Context, reply *activity.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply)
	if msg, ok := s.panicFor[reply.Text]; ok {
		panic(msg)
	}
	if err, ok := s.failFor[reply.Text]; ok {
		return err
	}
	return nil
}

func (s *fakeSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.replies))
	for _, r := range s.replies {
		out = append(out, r.Text)
	}
	return out
}

type fakeHandler struct {
	mu    sync.Mutex
	calls []activity.Activity
	err   error
	panic bool
}

func (h *fakeHandler) Handle(ctx context.Context, a *activity.Activity) error {
	h.mu.Lock()
	h.calls = append(h.calls, *a)
	h.mu.Unlock()
	if h.panic {
		panic("dialog exploded")
	}
	return h.err
}

func (h *fakeHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func conversationUpdate(members ...activity.ChannelAccount) *activity.Activity {
	return &activity.Activity{
		Type:         activity.TypeConversationUpdate,
		ID:           "act-1",
		ServiceURL:   "https://smba.example.com/",
		From:         activity.ChannelAccount{ID: "user-1"},
		Recipient:    activity.ChannelAccount{ID: "bot-1", Name: "vision"},
		Conversation: activity.ConversationAccount{ID: "conv-1"},
		MembersAdded: members,
	}
}

func TestWelcomeText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Welcome Ada!", WelcomeText(activity.ChannelAccount{ID: "u", Name: "Ada"}))
	assert.Equal(t, "Welcome!", WelcomeText(activity.ChannelAccount{ID: "u"}))
}

func TestRoute_ConversationUpdateGreetsNewMember(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	handler := &fakeHandler{}
	r := NewRouter(nil, handler, NewGreeter(nil, sender))

	r.Route(context.Background(), conversationUpdate(activity.ChannelAccount{ID: "user-2", Name: "Ada"}))
	r.Wait()

	assert.Equal(t, []string{"Welcome Ada!"}, sender.texts())
	reply := sender.replies[0]
	assert.Equal(t, "conv-1", reply.Conversation.ID)
	assert.Equal(t, "bot-1", reply.From.ID)
	assert.Equal(t, "act-1", reply.ReplyToID)
	assert.Zero(t, handler.count())
}

func TestRoute_ConversationUpdateEmptyName(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	r := NewRouter(nil, &fakeHandler{}, NewGreeter(nil, sender))
	r.Route(context.Background(), conversationUpdate(activity.ChannelAccount{ID: "user-2"}))
	assert.Equal(t, []string{"Welcome!"}, sender.texts())
}

func TestRoute_ConversationUpdateSelfJoinAndEmpty(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	r := NewRouter(nil, &fakeHandler{}, NewGreeter(nil, sender))
	r.Route(context.Background(), conversationUpdate(activity.ChannelAccount{ID: "bot-1", Name: "vision"}))
	r.Route(context.Background(), conversationUpdate())
	assert.Empty(t, sender.texts())
}

func TestGreet_ContinuesAfterSendFailure(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{failFor: map[string]error{"Welcome Ada!": errors.New("transport down")}}
	g := NewGreeter(nil, sender)
	a := conversationUpdate()
	sent := g.Greet(context.Background(), a, []activity.ChannelAccount{
		{ID: "user-2", Name: "Ada"},
		{ID: "bot-1"},
		{ID: "user-3", Name: "Grace"},
		{ID: "user-4"},
	})

	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"Welcome Ada!", "Welcome Grace!", "Welcome!"}, sender.texts())

	var buf bytes.Buffer
	panicking := &fakeSender{panicFor: map[string]string{"Welcome Ada!": "transport blew up"}}
	g = NewGreeter(slog.New(slog.NewTextHandler(&buf, nil)), panicking)
	assert.NotPanics(t, func() {
		sent = g.Greet(context.Background(), a, []activity.ChannelAccount{
			{ID: "user-2", Name: "Ada"},
			{ID: "user-3", Name: "Grace"},
		})
	})
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"Welcome Ada!", "Welcome Grace!"}, panicking.texts())
	assert.Contains(t, buf.String(), "panic: transport blew up")
}

func TestRoute_MessageNormalizesThenDispatches(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	handler := &fakeHandler{}
	r := NewRouter(nil, handler, NewGreeter(nil, sender))

	a := &activity.Activity{
		Type: activity.TypeMessage,
		Text: "what is this?",
		Attachments: []activity.Attachment{
			{ContentType: "application/pdf", ContentURL: "https://cdn.example.com/a.pdf"},
			{ContentType: "image/gif", ContentURL: "https://cdn.example.com/b.gif"},
		},
		Conversation: activity.ConversationAccount{ID: "conv-1"},
	}
	r.Route(context.Background(), a)
	r.Wait()

	require.Equal(t, 1, handler.count())
	assert.Equal(t, "https://cdn.example.com/b.gif", handler.calls[0].Text)
	assert.Empty(t, sender.texts())
}

func TestRoute_MessageHandlerFailuresAreContained(t *testing.T) {
	t.Parallel()

	failing := &fakeHandler{err: errors.New("dialog failed")}
	r := NewRouter(nil, failing, nil)
	assert.NotPanics(t, func() {
		r.Route(context.Background(), &activity.Activity{Type: activity.TypeMessage, Text: "hi"})
		r.Wait()
	})
	assert.Equal(t, 1, failing.count())

	panicking := &fakeHandler{panic: true}
	r = NewRouter(nil, panicking, nil)
	assert.NotPanics(t, func() {
		r.Route(context.Background(), &activity.Activity{Type: activity.TypeMessage, Text: "hi"})
		r.Wait()
	})
	assert.Equal(t, 1, panicking.count())
}

func TestRoute_MessageSurvivesCanceledRequestContext(t *testing.T) {
	t.Parallel()

	seen := make(chan error, 1)
	handler := handlerFunc(func(ctx context.Context, a *activity.Activity) error {
		seen <- ctx.Err()
		return nil
	})
	r := NewRouter(nil, handler, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Route(ctx, &activity.Activity{Type: activity.TypeMessage, Text: "hi"})
	r.Wait()
	assert.NoError(t, <-seen)
}

func TestRoute_IgnoredKinds(t *testing.T) {
	t.Parallel()

	for _, kind := range []activity.Type{
		activity.TypePing,
		activity.TypeTyping,
		activity.TypeContactRelationUpdate,
		activity.TypeDeleteUserData,
		"invoke",
		"",
	} {
		sender := &fakeSender{}
		handler := &fakeHandler{}
		r := NewRouter(nil, handler, NewGreeter(nil, sender))
		a := conversationUpdate(activity.ChannelAccount{ID: "user-2", Name: "Ada"})
		a.Type = kind
		a.Text = "unchanged"
		a.Attachments = []activity.Attachment{{ContentType: "image/png", ContentURL: "https://cdn.example.com/a.png"}}

		r.Route(context.Background(), a)
		r.Wait()

		assert.Zero(t, handler.count(), "kind=%q", kind)
		assert.Empty(t, sender.texts(), "kind=%q", kind)
		assert.Equal(t, "unchanged", a.Text, "kind=%q", kind)
	}
}

func TestRoute_NilActivityAndMissingHandler(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil, nil, nil)
	assert.NotPanics(t, func() {
		r.Route(context.Background(), nil)
		r.Route(context.Background(), &activity.Activity{Type: activity.TypeMessage})
		r.Route(context.Background(), conversationUpdate(activity.ChannelAccount{ID: "user-2"}))
		r.Wait()
	})

	var buf bytes.Buffer
	r = NewRouter(slog.New(slog.NewTextHandler(&buf, nil)), nil, nil)
	r.Route(context.Background(), conversationUpdate(activity.ChannelAccount{ID: "user-2"}))
	assert.Contains(t, buf.String(), "welcome dropped: no greeter")
	assert.Contains(t, buf.String(), "members_added=1")
}

type handlerFunc func(ctx context.Context, a *activity.Activity) error

func (f handlerFunc) Handle(ctx context.Context, a *activity.Activity) error { return f(ctx, a) }

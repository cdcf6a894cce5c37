package realtime

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/pkondratev/chatwave/internal/chat"
	"github.com/pkondratev/chatwave/internal/errs"
)

// Store is the slice of the chat persistence gateway the hub consumes.
// *chat.Repository implements it.
type Store interface {
	IsMember(ctx context.Context, conversationID, userID int64) (bool, error)
	CreateMessage(ctx context.Context, conversationID, senderID int64, content string) (*chat.Message, error)
	MarkMessageRead(ctx context.Context, messageID, userID int64) (conversationID int64, err error)
	ListConversationsFor(ctx context.Context, userID int64) ([]int64, error)
}

// HistoryProvider serves the backlog sent on (re)connect and subscribe.
// *cache.History implements it with a redis fast path over the repository.
type HistoryProvider interface {
	Recent(ctx context.Context, conversationID int64, limit int) ([]chat.Message, error)
	Append(ctx context.Context, msg *chat.Message)
}

// Session is what the hub knows about a connection: identity resolved at
// handshake plus the transport to push frames through.
type Session struct {
	ID        string
	UserID    int64
	Username  string
	Transport Transport
}

type frame struct {
	sess *Session
	data []byte
}

// Hub owns all realtime state. A single goroutine (Run) processes lifecycle
// events and inbound frames, so the registry, tracker and index need no
// locking: mutations never interleave. Persistence calls happen inline and
// are the only points where the loop blocks; in-memory mutations always
// complete before them.
//
// Presence events are broadcast globally to every live connection; this
// process is assumed to own all connection state (no horizontal scaling).
type Hub struct {
	log          *zap.Logger
	registry     *Registry
	tracker      *Tracker
	subs         *Index
	engine       *Engine
	store        Store
	history      HistoryProvider
	historyLimit int

	register   chan *Session
	unregister chan *Session
	frames     chan frame
	quit       chan struct{}
}

func NewHub(log *zap.Logger, store Store, presence PresenceStore, history HistoryProvider, historyLimit int) *Hub {
	registry := NewRegistry(log)
	subs := NewIndex()
	return &Hub{
		log:          log,
		registry:     registry,
		tracker:      NewTracker(log, registry, presence),
		subs:         subs,
		engine:       NewEngine(log, registry, subs),
		store:        store,
		history:      history,
		historyLimit: historyLimit,
		register:     make(chan *Session),
		unregister:   make(chan *Session),
		frames:       make(chan frame),
		quit:         make(chan struct{}),
	}
}

// Register hands a new session to the hub loop. Returns without effect once
// the hub has shut down, so pump goroutines never block on a gone receiver.
func (h *Hub) Register(s *Session) {
	select {
	case h.register <- s:
	case <-h.quit:
	}
}

// Unregister hands a closed session to the hub loop.
func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.quit:
	}
}

// Dispatch hands an inbound frame to the hub loop.
func (h *Hub) Dispatch(s *Session, data []byte) {
	select {
	case h.frames <- frame{sess: s, data: data}:
	case <-h.quit:
	}
}

// Run processes events until the context is cancelled. It is the only
// goroutine that touches hub state.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.quit)
			return
		case s := <-h.register:
			h.handleRegister(ctx, s)
		case s := <-h.unregister:
			h.handleUnregister(ctx, s)
		case f := <-h.frames:
			h.handleFrame(ctx, f.sess, f.data)
		}
	}
}

func (h *Hub) handleRegister(ctx context.Context, s *Session) {
	h.registry.Admit(s.ID, s.Username, s.Transport)

	if s.UserID != 0 {
		first, err := h.tracker.Identify(ctx, s.ID, s.UserID)
		if err != nil {
			h.log.Warn("identify failed", zap.String("conn", s.ID), zap.Error(err))
			h.sendTo(s, errorEnvelope("identify failed"))
			return
		}
		if first {
			h.broadcastPresence(TypeUserOnline, s.UserID)
		}
	}

	ack := newEnvelope(TypeConnect)
	ack.ConnectionID = s.ID
	ack.UserID = s.UserID
	ack.OnlineUsers = h.tracker.OnlineUserIDs()
	h.sendTo(s, ack)

	if s.UserID == 0 {
		return
	}

	// Auto-subscribe to the user's conversations and push the backlog for
	// each, so a reconnecting client is immediately caught up.
	convs, err := h.store.ListConversationsFor(ctx, s.UserID)
	if err != nil {
		h.log.Error("list conversations failed", zap.Int64("user", s.UserID), zap.Error(err))
		return
	}
	for _, conversationID := range convs {
		h.subs.Subscribe(s.ID, conversationID)
		h.sendHistory(ctx, s, conversationID)
	}
	h.log.Info("session registered",
		zap.String("conn", s.ID),
		zap.Int64("user", s.UserID),
		zap.Int("conversations", len(convs)),
	)
}

func (h *Hub) handleUnregister(ctx context.Context, s *Session) {
	rc := h.registry.Remove(s.ID)
	if rc == nil {
		return // double removal is a no-op
	}
	h.subs.Purge(rc.ID)
	s.Transport.Close()

	if h.tracker.ConnectionRemoved(ctx, rc) {
		h.broadcastPresence(TypeUserOffline, rc.UserID)
	}
	h.log.Info("session removed", zap.String("conn", rc.ID), zap.Int64("user", rc.UserID))
}

func (h *Hub) handleFrame(ctx context.Context, s *Session, data []byte) {
	// The close handler may have run while this frame sat in the channel.
	if _, ok := h.registry.Get(s.ID); !ok {
		return
	}

	env, err := decodeInbound(data)
	if err != nil {
		h.sendTo(s, errorEnvelope(err.Error()))
		return
	}

	switch env.Type {
	case TypeSubscribe:
		h.handleSubscribe(ctx, s, env.ConversationID)
	case TypeUnsubscribe:
		h.subs.Unsubscribe(s.ID, env.ConversationID)
	case TypeNewMessage:
		h.handleNewMessage(ctx, s, env)
	case TypeUserTyping:
		h.handleTyping(s, env.ConversationID)
	case TypeMessageRead:
		h.handleMessageRead(ctx, s, env.MessageID)
	}
}

// handleSubscribe verifies membership against durable storage on every call
// (never cached, so membership revocations take effect immediately) before
// touching the index.
func (h *Hub) handleSubscribe(ctx context.Context, s *Session, conversationID int64) {
	member, err := h.store.IsMember(ctx, conversationID, s.UserID)
	if err != nil {
		h.log.Error("membership check failed", zap.Int64("conversation", conversationID), zap.Error(err))
		h.sendTo(s, errorEnvelope("subscribe failed"))
		return
	}
	if !member {
		h.sendTo(s, errorEnvelope(errs.ErrNotAMember.Error()))
		return
	}
	h.subs.Subscribe(s.ID, conversationID)

	ack := newEnvelope(TypeSubscribed)
	ack.ConversationID = conversationID
	h.sendTo(s, ack)
	h.sendHistory(ctx, s, conversationID)
}

// handleNewMessage persists first, fans out second. A message that failed to
// persist is never delivered: it would be invisible to later history fetches.
func (h *Hub) handleNewMessage(ctx context.Context, s *Session, in *Envelope) {
	member, err := h.store.IsMember(ctx, in.ConversationID, s.UserID)
	if err != nil {
		h.sendTo(s, errorEnvelope("send failed"))
		return
	}
	if !member {
		h.sendTo(s, errorEnvelope(errs.ErrNotAMember.Error()))
		return
	}

	msg, err := h.store.CreateMessage(ctx, in.ConversationID, s.UserID, in.Content)
	if err != nil {
		h.log.Error("message persist failed",
			zap.Int64("conversation", in.ConversationID),
			zap.Int64("sender", s.UserID),
			zap.Error(err),
		)
		h.sendTo(s, errorEnvelope("message not saved"))
		return
	}
	msg.Sender = s.Username
	h.history.Append(ctx, msg)

	out := newEnvelope(TypeNewMessage)
	out.Message = msg
	delivered := h.engine.DeliverToConversation(in.ConversationID, out)

	// Delivery receipt goes to every tab of the sender, not just the
	// originating one.
	ack := newEnvelope(TypeMessageDelivered)
	ack.MessageID = msg.ID
	ack.ConversationID = in.ConversationID
	ack.Delivered = delivered
	h.engine.DeliverToUser(s.UserID, ack)
}

// handleTyping relays a typing indicator to the other subscribers. Requires
// an existing subscription; no persistence involved.
func (h *Hub) handleTyping(s *Session, conversationID int64) {
	if !h.subs.IsSubscribed(s.ID, conversationID) {
		h.sendTo(s, errorEnvelope(errs.ErrNotAMember.Error()))
		return
	}
	env := newEnvelope(TypeUserTyping)
	env.UserID = s.UserID
	env.ConversationID = conversationID
	h.engine.DeliverToConversationExcept(conversationID, s.ID, env)
}

func (h *Hub) handleMessageRead(ctx context.Context, s *Session, messageID int64) {
	conversationID, err := h.store.MarkMessageRead(ctx, messageID, s.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			h.sendTo(s, errorEnvelope("unknown message"))
			return
		}
		h.log.Error("mark read failed", zap.Int64("message", messageID), zap.Error(err))
		h.sendTo(s, errorEnvelope("mark read failed"))
		return
	}
	env := newEnvelope(TypeMessageRead)
	env.MessageID = messageID
	env.ConversationID = conversationID
	env.UserID = s.UserID
	h.engine.DeliverToConversation(conversationID, env)
}

func (h *Hub) sendHistory(ctx context.Context, s *Session, conversationID int64) {
	msgs, err := h.history.Recent(ctx, conversationID, h.historyLimit)
	if err != nil {
		h.log.Error("history fetch failed", zap.Int64("conversation", conversationID), zap.Error(err))
		return
	}
	env := newEnvelope(TypeHistory)
	env.ConversationID = conversationID
	env.Messages = msgs
	h.sendTo(s, env)
}

func (h *Hub) broadcastPresence(typ string, userID int64) {
	env := newEnvelope(typ)
	env.UserID = userID
	env.OnlineUsers = h.tracker.OnlineUserIDs()
	h.engine.BroadcastAll(env)
}

// sendTo serializes and pushes an envelope to a single session. Local
// failures only affect that session.
func (h *Hub) sendTo(s *Session, env *Envelope) {
	payload, err := h.engine.marshal(env)
	if err != nil {
		return
	}
	if err := s.Transport.Send(payload); err != nil {
		h.log.Warn("send failed", zap.String("conn", s.ID), zap.Error(err))
	}
}

package realtime

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Engine resolves delivery targets against the registry and subscription
// index and pushes serialized envelopes to them. A failed or raced-to-close
// target is logged and counted as a non-delivery; it never aborts the batch.
type Engine struct {
	log      *zap.Logger
	registry *Registry
	subs     *Index
}

func NewEngine(log *zap.Logger, registry *Registry, subs *Index) *Engine {
	return &Engine{log: log, registry: registry, subs: subs}
}

// DeliverToConversation sends the envelope to every live subscriber of the
// conversation and returns how many sends succeeded.
func (e *Engine) DeliverToConversation(conversationID int64, env *Envelope) int {
	return e.deliverToSubscribers(conversationID, "", env)
}

// DeliverToConversationExcept is DeliverToConversation minus one connection,
// typically the originator of the event.
func (e *Engine) DeliverToConversationExcept(conversationID int64, exceptConnID string, env *Envelope) int {
	return e.deliverToSubscribers(conversationID, exceptConnID, env)
}

func (e *Engine) deliverToSubscribers(conversationID int64, exceptConnID string, env *Envelope) int {
	payload, err := e.marshal(env)
	if err != nil {
		return 0
	}
	delivered := 0
	for _, connID := range e.subs.SubscribersOf(conversationID) {
		if connID == exceptConnID {
			continue
		}
		c, ok := e.registry.Get(connID)
		if !ok {
			// Subscriber raced to close between snapshot and send.
			continue
		}
		if e.send(c.Transport, connID, payload) {
			delivered++
		}
	}
	return delivered
}

// DeliverToUser sends the envelope to every connection of the user, so every
// open tab receives the event.
func (e *Engine) DeliverToUser(userID int64, env *Envelope) int {
	payload, err := e.marshal(env)
	if err != nil {
		return 0
	}
	delivered := 0
	for _, t := range e.registry.LivingConnectionsOf(userID) {
		if e.send(t, "", payload) {
			delivered++
		}
	}
	return delivered
}

// BroadcastAll sends the envelope to every live connection, identified or not.
// Used for global presence announcements.
func (e *Engine) BroadcastAll(env *Envelope) int {
	payload, err := e.marshal(env)
	if err != nil {
		return 0
	}
	delivered := 0
	for _, t := range e.registry.All() {
		if e.send(t, "", payload) {
			delivered++
		}
	}
	return delivered
}

// marshal serializes the envelope once per fan-out.
func (e *Engine) marshal(env *Envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		e.log.Error("envelope marshal failed", zap.String("type", env.Type), zap.Error(err))
		return nil, err
	}
	return payload, nil
}

func (e *Engine) send(t Transport, connID string, payload []byte) bool {
	if err := t.Send(payload); err != nil {
		e.log.Warn("send failed", zap.String("conn", connID), zap.Error(err))
		return false
	}
	return true
}

package realtime

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fanoutFixture struct {
	registry *Registry
	subs     *Index
	engine   *Engine
}

func newFanoutFixture() *fanoutFixture {
	registry := NewRegistry(zap.NewNop())
	subs := NewIndex()
	return &fanoutFixture{
		registry: registry,
		subs:     subs,
		engine:   NewEngine(zap.NewNop(), registry, subs),
	}
}

func (f *fanoutFixture) connect(t *testing.T, connID string, userID int64) *fakeTransport {
	t.Helper()
	ft := &fakeTransport{}
	f.registry.Admit(connID, "u", ft)
	require.NoError(t, f.registry.Identify(connID, userID))
	return ft
}

func TestEngine_DeliverToConversation(t *testing.T) {
	f := newFanoutFixture()
	x := f.connect(t, "x", 1)
	y := f.connect(t, "y", 2)
	f.subs.Subscribe("x", 10)
	f.subs.Subscribe("y", 10)

	env := newEnvelope(TypeUserTyping)
	env.ConversationID = 10
	require.Equal(t, 2, f.engine.DeliverToConversation(10, env))
	require.Len(t, x.sent, 1)
	require.Len(t, y.sent, 1)
	require.Equal(t, x.sent[0], y.sent[0], "serialized once, same bytes to every target")
}

// One subscriber's transport fails: the batch continues and the count
// reflects only successful sends.
func TestEngine_PartialFailureIsolation(t *testing.T) {
	f := newFanoutFixture()
	x := f.connect(t, "x", 1)
	y := f.connect(t, "y", 2)
	y.sendErr = errBrokenPipe
	f.subs.Subscribe("x", 10)
	f.subs.Subscribe("y", 10)

	require.Equal(t, 1, f.engine.DeliverToConversation(10, newEnvelope(TypeNewMessage)))
	require.Len(t, x.sent, 1)
	require.Empty(t, y.sent)
}

// A subscriber that raced to close (purge not yet run) is skipped silently.
func TestEngine_SkipsConnectionsClosedMidCall(t *testing.T) {
	f := newFanoutFixture()
	x := f.connect(t, "x", 1)
	f.connect(t, "y", 2)
	f.subs.Subscribe("x", 10)
	f.subs.Subscribe("y", 10)

	f.registry.Remove("y")

	require.Equal(t, 1, f.engine.DeliverToConversation(10, newEnvelope(TypeNewMessage)))
	require.Len(t, x.sent, 1)
}

func TestEngine_DeliverToConversationExcept(t *testing.T) {
	f := newFanoutFixture()
	x := f.connect(t, "x", 1)
	y := f.connect(t, "y", 2)
	f.subs.Subscribe("x", 10)
	f.subs.Subscribe("y", 10)

	require.Equal(t, 1, f.engine.DeliverToConversationExcept(10, "x", newEnvelope(TypeUserTyping)))
	require.Empty(t, x.sent)
	require.Len(t, y.sent, 1)
}

// Every open tab of the user receives the event, not just one.
func TestEngine_DeliverToUserHitsAllTabs(t *testing.T) {
	f := newFanoutFixture()
	tab1 := f.connect(t, "t1", 7)
	tab2 := f.connect(t, "t2", 7)
	other := f.connect(t, "o", 8)

	require.Equal(t, 2, f.engine.DeliverToUser(7, newEnvelope(TypeMessageRead)))
	require.Len(t, tab1.sent, 1)
	require.Len(t, tab2.sent, 1)
	require.Empty(t, other.sent)

	require.Zero(t, f.engine.DeliverToUser(99, newEnvelope(TypeMessageRead)), "offline user delivers to nobody")
}

func TestEngine_BroadcastAllIncludesAnonymous(t *testing.T) {
	f := newFanoutFixture()
	identified := f.connect(t, "a", 1)
	anon := &fakeTransport{}
	f.registry.Admit("b", "", anon)

	require.Equal(t, 2, f.engine.BroadcastAll(newEnvelope(TypeUserOnline)))
	require.Len(t, identified.sent, 1)
	require.Len(t, anon.sent, 1)
}

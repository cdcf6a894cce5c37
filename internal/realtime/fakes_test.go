package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pkondratev/chatwave/internal/chat"
)

type fakeTransport struct {
	sent    [][]byte
	sendErr error
	closed  bool
}

var _ Transport = (*fakeTransport)(nil)

func (f *fakeTransport) Send(payload []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeTransport) Close() { f.closed = true }

// envelopes decodes everything the transport received.
func (f *fakeTransport) envelopes(t *testing.T) []Envelope {
	t.Helper()
	out := make([]Envelope, 0, len(f.sent))
	for _, payload := range f.sent {
		var env Envelope
		require.NoError(t, json.Unmarshal(payload, &env))
		out = append(out, env)
	}
	return out
}

func (f *fakeTransport) envelopesOf(t *testing.T, typ string) []Envelope {
	t.Helper()
	var out []Envelope
	for _, env := range f.envelopes(t) {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

type fakePresenceStore struct {
	writes []presenceWrite
	err    error
}

type presenceWrite struct {
	userID int64
	online bool
}

var _ PresenceStore = (*fakePresenceStore)(nil)

func (f *fakePresenceStore) SetUserOnlineStatus(_ context.Context, userID int64, online bool, _ time.Time) error {
	f.writes = append(f.writes, presenceWrite{userID: userID, online: online})
	return f.err
}

type fakeStore struct {
	members map[int64]map[int64]bool // conversation -> user -> member
	convs   map[int64][]int64        // user -> conversations

	nextID  int64
	created []*chat.Message

	isMemberErr error
	createErr   error
	readErr     error
	readConv    int64
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		members: make(map[int64]map[int64]bool),
		convs:   make(map[int64][]int64),
	}
}

func (f *fakeStore) addMember(conversationID, userID int64) {
	if f.members[conversationID] == nil {
		f.members[conversationID] = make(map[int64]bool)
	}
	f.members[conversationID][userID] = true
	f.convs[userID] = append(f.convs[userID], conversationID)
}

func (f *fakeStore) IsMember(_ context.Context, conversationID, userID int64) (bool, error) {
	if f.isMemberErr != nil {
		return false, f.isMemberErr
	}
	return f.members[conversationID][userID], nil
}

func (f *fakeStore) CreateMessage(_ context.Context, conversationID, senderID int64, content string) (*chat.Message, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	msg := &chat.Message{
		ID:             f.nextID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	f.created = append(f.created, msg)
	return msg, nil
}

func (f *fakeStore) MarkMessageRead(_ context.Context, _, _ int64) (int64, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.readConv, nil
}

func (f *fakeStore) ListConversationsFor(_ context.Context, userID int64) ([]int64, error) {
	return f.convs[userID], nil
}

type fakeHistory struct {
	recent   map[int64][]chat.Message
	appended []*chat.Message
	err      error
}

var _ HistoryProvider = (*fakeHistory)(nil)

func newFakeHistory() *fakeHistory {
	return &fakeHistory{recent: make(map[int64][]chat.Message)}
}

func (f *fakeHistory) Recent(_ context.Context, conversationID int64, _ int) ([]chat.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.recent[conversationID], nil
}

func (f *fakeHistory) Append(_ context.Context, msg *chat.Message) {
	f.appended = append(f.appended, msg)
}

var errBrokenPipe = errors.New("broken pipe")

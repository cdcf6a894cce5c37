package realtime

// Index tracks which connections are interested in which conversations.
// It keeps a forward map per connection and a reverse map per conversation so
// fan-out is O(subscriber count). Membership verification happens in the hub
// before anything reaches this index; the index itself is pure state.
type Index struct {
	byConn         map[string]map[int64]struct{}
	byConversation map[int64]map[string]struct{}
}

func NewIndex() *Index {
	return &Index{
		byConn:         make(map[string]map[int64]struct{}),
		byConversation: make(map[int64]map[string]struct{}),
	}
}

// Subscribe records the connection's interest in the conversation. Idempotent.
func (i *Index) Subscribe(connID string, conversationID int64) {
	convs := i.byConn[connID]
	if convs == nil {
		convs = make(map[int64]struct{})
		i.byConn[connID] = convs
	}
	convs[conversationID] = struct{}{}

	subs := i.byConversation[conversationID]
	if subs == nil {
		subs = make(map[string]struct{})
		i.byConversation[conversationID] = subs
	}
	subs[connID] = struct{}{}
}

// Unsubscribe removes the interest. Idempotent.
func (i *Index) Unsubscribe(connID string, conversationID int64) {
	if convs := i.byConn[connID]; convs != nil {
		delete(convs, conversationID)
		if len(convs) == 0 {
			delete(i.byConn, connID)
		}
	}
	if subs := i.byConversation[conversationID]; subs != nil {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(i.byConversation, conversationID)
		}
	}
}

// IsSubscribed reports whether the connection is subscribed to the conversation.
func (i *Index) IsSubscribed(connID string, conversationID int64) bool {
	_, ok := i.byConn[connID][conversationID]
	return ok
}

// SubscribersOf snapshots the connection ids subscribed to the conversation.
func (i *Index) SubscribersOf(conversationID int64) []string {
	subs := i.byConversation[conversationID]
	if len(subs) == 0 {
		return nil
	}
	out := make([]string, 0, len(subs))
	for id := range subs {
		out = append(out, id)
	}
	return out
}

// ConversationsOf snapshots the conversations the connection is subscribed to.
func (i *Index) ConversationsOf(connID string) []int64 {
	convs := i.byConn[connID]
	if len(convs) == 0 {
		return nil
	}
	out := make([]int64, 0, len(convs))
	for id := range convs {
		out = append(out, id)
	}
	return out
}

// Purge drops every entry for the connection from both maps and returns the
// conversations it was subscribed to. Must run on every connection removal,
// otherwise fan-out keeps hitting closed transports forever.
func (i *Index) Purge(connID string) []int64 {
	convs := i.ConversationsOf(connID)
	for _, conversationID := range convs {
		i.Unsubscribe(connID, conversationID)
	}
	return convs
}

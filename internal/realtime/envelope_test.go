package realtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pkondratev/chatwave/internal/errs"
)

func TestDecodeInbound_Valid(t *testing.T) {
	tests := []struct {
		name string
		data string
		typ  string
	}{
		{"subscribe", `{"type":"subscribe","conversation_id":10}`, TypeSubscribe},
		{"unsubscribe", `{"type":"unsubscribe","conversation_id":10}`, TypeUnsubscribe},
		{"new message", `{"type":"new_message","conversation_id":10,"content":"hi"}`, TypeNewMessage},
		{"typing", `{"type":"user_typing","conversation_id":10}`, TypeUserTyping},
		{"read", `{"type":"message_read","message_id":3}`, TypeMessageRead},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, err := decodeInbound([]byte(tc.data))
			require.NoError(t, err)
			require.Equal(t, tc.typ, env.Type)
		})
	}
}

func TestDecodeInbound_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"missing type", `{"conversation_id":10}`},
		{"unknown type", `{"type":"shrug"}`},
		{"server-only tag", `{"type":"user_online","user_id":1}`},
		{"subscribe without conversation", `{"type":"subscribe"}`},
		{"message without content", `{"type":"new_message","conversation_id":10}`},
		{"message without conversation", `{"type":"new_message","content":"hi"}`},
		{"negative conversation id", `{"type":"subscribe","conversation_id":-1}`},
		{"read without message id", `{"type":"message_read"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeInbound([]byte(tc.data))
			require.ErrorIs(t, err, errs.ErrMalformedEnvelope)
		})
	}
}

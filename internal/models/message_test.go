package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationIDOrderIndependent(t *testing.T) {
	assert.Equal(t, ConversationID("84911111111", "84922222222"), ConversationID("84922222222", "84911111111"))
	assert.Equal(t, "84911111111_84922222222", ConversationID("84922222222", "84911111111"))
}

func TestConversationIDSamePair(t *testing.T) {
	a := ConversationID("bob", "alice")
	b := ConversationID("alice", "bob")
	assert.Equal(t, a, b)
	assert.Equal(t, "alice_bob", a)
}

func TestTerminalStates(t *testing.T) {
	assert.False(t, Message{DeliveryState: StateSent}.Terminal())
	assert.True(t, Message{DeliveryState: StateRecalled}.Terminal())
	assert.True(t, Message{DeliveryState: StateDeleted}.Terminal())
}

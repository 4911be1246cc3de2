package types

import (
	"strings"

	"github.com/google/uuid"
)

type UserID string
type MessageID string
type TaskID string
type TurnID string
type ConversationKey string

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

func NewConversationKey(parts ...string) ConversationKey {
	return ConversationKey(strings.Join(parts, ":"))
}

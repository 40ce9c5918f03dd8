package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type MessageType string

const (
	TypeText  MessageType = "TEXT"
	TypeImage MessageType = "IMAGE"
	TypeFile  MessageType = "FILE"
	TypeAudio MessageType = "AUDIO"
	TypeVideo MessageType = "VIDEO"
)

var ErrInvalidMessageType = errors.New("invalid message type")

var messageTypes = map[MessageType]struct{}{
	TypeText:  {},
	TypeImage: {},
	TypeFile:  {},
	TypeAudio: {},
	TypeVideo: {},
}

// ParseMessageType normalizes raw to its canonical upper-case form. Callers
// decide what an absent type means; an empty one is rejected here.
func ParseMessageType(raw string) (MessageType, error) {
	t := MessageType(strings.ToUpper(raw))
	if _, ok := messageTypes[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidMessageType, raw)
	}
	return t, nil
}

// Identity is the caller extracted from a verified token.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Sender is the denormalized account block the store attaches to every message.
type Sender struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Message struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"roomId"`
	SenderID  string      `json:"senderId"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	CreatedAt time.Time   `json:"createdAt"`
	IsEdited  bool        `json:"isEdited"`
	IsDeleted bool        `json:"isDeleted"`
	Sender    Sender      `json:"sender"`
}

package relay

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	EventJoin        = "join"
	EventMessage     = "message"
	EventChatHistory = "chatHistory"
)

var ErrMissingRoom = errors.New("room id is required")

// Frame is the envelope of every websocket text message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MessageRequest is the payload of an inbound message event. A nil Type means
// the field was absent; an explicit null decodes to an empty type.
type MessageRequest struct {
	RoomID  string  `json:"roomId"`
	Content string  `json:"content"`
	Type    *string `json:"type,omitempty"`
}

func (r *MessageRequest) UnmarshalJSON(data []byte) error {
	type plain MessageRequest
	aux := struct {
		*plain
		Type json.RawMessage `json:"type"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.Type = nil
	switch {
	case len(aux.Type) == 0:
	case string(aux.Type) == "null":
		r.Type = new(string)
	default:
		var t string
		if err := json.Unmarshal(aux.Type, &t); err != nil {
			return err
		}
		r.Type = &t
	}
	return nil
}

func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// decodeRoomID accepts both `"general"` and `{"roomId": "general"}`.
func decodeRoomID(data json.RawMessage) (string, error) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil {
		var req struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return "", err
		}
		roomID = req.RoomID
	}
	if strings.TrimSpace(roomID) == "" {
		return "", ErrMissingRoom
	}
	return roomID, nil
}

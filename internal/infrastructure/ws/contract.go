package ws

import "encoding/json"

// WSMessage is every server to client frame.
type WSMessage struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId,omitempty"`
	Event     string `json:"event,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// ClientFrame is every client to server frame.
type ClientFrame struct {
	Type      string          `json:"type" validate:"required,oneof=authenticate join leave heartbeat action"`
	RequestID string          `json:"requestId,omitempty" validate:"max=64"`
	Token     string          `json:"token,omitempty" validate:"required_if=Type authenticate"`
	Room      string          `json:"room,omitempty" validate:"required_if=Type join,required_if=Type leave,max=128"`
	Status    string          `json:"status,omitempty" validate:"omitempty,oneof=online idle offline"`
	Action    string          `json:"action,omitempty" validate:"required_if=Type action,max=64"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type ReadyPayload struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

type AckPayload struct {
	Op     string `json:"op"`
	Result any    `json:"result,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Retry   bool   `json:"retry,omitempty"`
}

type SetPresencePayload struct {
	Status string `json:"status" validate:"required,oneof=online idle offline"`
}

func NewEvent(roomID, event string, payload json.RawMessage) *WSMessage {
	return &WSMessage{Type: EventFrame, RoomID: roomID, Event: event, Data: payload}
}

func NewReady(connectionID, userID string) *WSMessage {
	return &WSMessage{Type: ReadyFrame, Data: ReadyPayload{ConnectionID: connectionID, UserID: userID}}
}

func NewAck(requestID, roomID, op string, result any) *WSMessage {
	return &WSMessage{Type: AckFrame, RequestID: requestID, RoomID: roomID, Data: AckPayload{Op: op, Result: result}}
}

func NewError(requestID, roomID, code, message string, retry bool) *WSMessage {
	return &WSMessage{
		Type:      ErrorFrame,
		RequestID: requestID,
		RoomID:    roomID,
		Data:      ErrorPayload{Code: code, Message: message, Retry: retry},
	}
}

func NewAuthError(message string) *WSMessage {
	return &WSMessage{
		Type: AuthenticationError,
		Data: ErrorPayload{Code: CodeAuthFailed, Message: message, Retry: true},
	}
}

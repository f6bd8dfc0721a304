package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Outbound envelope paths.
const (
	PathMessage = "/message"
	PathJoined  = "/joined"
	PathLeft    = "/left"
	PathError   = "/error"
)

// SystemNick authors join/leave announcements in the history log.
const SystemNick = "system"

const wireBufferSize = 256

var (
	ErrBadEnvelope    = errors.New("malformed envelope")
	ErrUnknownPayload = errors.New("payload matches no known shape")
)

// Envelope is the outer wire wrapper. Content stays raw until the payload
// shape is resolved by DecodePayload.
type Envelope struct {
	Path    string          `json:"path"`
	Content json.RawMessage `json:"content"`
}

type ChatMessage struct {
	Nick    string `json:"nick"`
	Message string `json:"message"`
}

type JoinRequest struct {
	JoinNick string `json:"join_nick"`
}

// Payload is the closed set of inbound payload variants.
type Payload interface {
	payload()
}

func (ChatMessage) payload() {}
func (JoinRequest) payload() {}

// Wire carries encoded frames from the room to one session's transport.
type Wire struct {
	TX chan []byte
}

func NewWire() Wire {
	return Wire{
		TX: make(chan []byte, wireBufferSize),
	}
}

// DecodeEnvelope is permissive: any JSON object carrying both path and
// content decodes, regardless of extra fields or the path value.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var probe struct {
		Path    *string         `json:"path"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Envelope{}, errors.Join(ErrBadEnvelope, err)
	}
	if probe.Path == nil || probe.Content == nil {
		return Envelope{}, ErrBadEnvelope
	}
	return Envelope{Path: *probe.Path, Content: probe.Content}, nil
}

// DecodePayload resolves the payload variant: ChatMessage first, then
// JoinRequest. Both are decoded strictly, so a shape matching neither
// yields ErrUnknownPayload rather than a zero value.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	if msg, err := decodeChatMessage(raw); err == nil {
		return msg, nil
	}
	if join, err := decodeJoinRequest(raw); err == nil {
		return join, nil
	}
	return nil, ErrUnknownPayload
}

func decodeChatMessage(raw json.RawMessage) (ChatMessage, error) {
	var probe struct {
		Nick    *string `json:"nick"`
		Message *string `json:"message"`
	}
	if err := strictDecode(raw, &probe); err != nil {
		return ChatMessage{}, err
	}
	if probe.Nick == nil || probe.Message == nil {
		return ChatMessage{}, ErrUnknownPayload
	}
	return ChatMessage{Nick: *probe.Nick, Message: *probe.Message}, nil
}

func decodeJoinRequest(raw json.RawMessage) (JoinRequest, error) {
	var probe struct {
		JoinNick *string `json:"join_nick"`
	}
	if err := strictDecode(raw, &probe); err != nil {
		return JoinRequest{}, err
	}
	if probe.JoinNick == nil {
		return JoinRequest{}, ErrUnknownPayload
	}
	return JoinRequest{JoinNick: *probe.JoinNick}, nil
}

func strictDecode(raw json.RawMessage, target any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

// Encode wraps content in a fresh envelope. It cannot fail for the payload
// types defined in this package.
func Encode(path string, content any) ([]byte, error) {
	inner, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Path: path, Content: inner})
}

func JoinAnnouncement(nick string) ChatMessage {
	return ChatMessage{
		Nick:    SystemNick,
		Message: fmt.Sprintf("%s has joined the chat.", nick),
	}
}

func LeaveAnnouncement(nick string) ChatMessage {
	return ChatMessage{
		Nick:    SystemNick,
		Message: fmt.Sprintf("%s has left the chat.", nick),
	}
}

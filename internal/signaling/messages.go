package signaling

import (
	"encoding/json"
	"fmt"
)

// Message types accepted from and sent to clients.
const (
	MessageTypeJoin       = "join"
	MessageTypeJoined     = "joined"
	MessageTypePeerJoined = "peer-joined"
	MessageTypeOffer      = "offer"
	MessageTypeAnswer     = "answer"
	MessageTypeCandidate  = "ice-candidate"
	MessageTypeLeave      = "leave"
	MessageTypePeerLeft   = "peer-left"
	MessageTypeError      = "error"
)

// Message is the wire envelope for every signaling exchange. Only Type is
// always present; the remaining fields depend on it.
//
// SDP and Candidate are kept as raw JSON: the relay carries them between
// peers unmodified and never interprets their structure.
type Message struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId,omitempty"`
	UserID string `json:"userId,omitempty"`

	// Peers lists the other current members' ids in a joined response. It is
	// a pointer so the first joiner's empty list survives omitempty and the
	// field is always present on the wire.
	Peers *[]string `json:"peers,omitempty"`

	To   string `json:"to,omitempty"`
	From string `json:"from,omitempty"`

	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`

	// Message carries the human-readable text of an error envelope.
	Message string `json:"message,omitempty"`
}

// errorMessage builds the generic failure envelope sent in place of any
// success response.
func errorMessage(text string) Message {
	return Message{Type: MessageTypeError, Message: text}
}

// ParseMessage decodes an inbound envelope and checks the fields its type
// requires. Unknown fields are tolerated; clients may send more than the
// relay reads.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("envelope missing type")
	}

	switch msg.Type {
	case MessageTypeJoin, MessageTypeLeave:
		// join's roomId is validated by the router so the failure gets its
		// specific error text; leave carries no fields.
	case MessageTypeOffer, MessageTypeAnswer:
		if msg.To == "" {
			return Message{}, fmt.Errorf("%s message missing to", msg.Type)
		}
		if len(msg.SDP) == 0 {
			return Message{}, fmt.Errorf("%s message missing sdp", msg.Type)
		}
	case MessageTypeCandidate:
		if msg.To == "" {
			return Message{}, fmt.Errorf("%s message missing to", msg.Type)
		}
		if len(msg.Candidate) == 0 {
			return Message{}, fmt.Errorf("%s message missing candidate", msg.Type)
		}
	}
	return msg, nil
}

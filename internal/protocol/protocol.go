package protocol

import "encoding/json"

// Server -> client message types.
const (
	TypeConnected = "connected"
	TypeState     = "state"
	TypeAck       = "ack"
	TypeError     = "error"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

package amqp

import (
	"encoding/json"
	"time"
)

// PushRequestMessage asks the sync worker to run a push pass. It carries only
// the local id that triggered it; the worker reads the full pending set from
// the store, so a lost message costs nothing but latency.
type PushRequestMessage struct {
	LocalID   int64     `json:"local_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPushRequestMessage(localID int64) *PushRequestMessage {
	return &PushRequestMessage{
		LocalID:   localID,
		Timestamp: time.Now(),
	}
}

func (m *PushRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PushRequestMessageFromJSON(data []byte) (*PushRequestMessage, error) {
	var msg PushRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// CategorizeMessage asks the worker to auto-categorize one account.
// It only carries the account id; the worker loads the transactions itself.
type CategorizeMessage struct {
	AccountID   string    `json:"accountId"`
	RequestID   string    `json:"requestId,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

// NewCategorizeMessage creates a message stamped with the current time.
func NewCategorizeMessage(accountID, requestID string) *CategorizeMessage {
	return &CategorizeMessage{
		AccountID:   accountID,
		RequestID:   requestID,
		RequestedAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *CategorizeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CategorizeMessageFromJSON decodes a message and rejects one without an
// account id.
func CategorizeMessageFromJSON(data []byte) (*CategorizeMessage, error) {
	var msg CategorizeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.AccountID == "" {
		return nil, errors.New("message has no account id")
	}
	return &msg, nil
}

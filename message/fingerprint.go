package message

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// content is the canonical, reserved-key-free view of a message. encoding/json
// sorts map keys, so equal content always encodes to equal bytes.
type content struct {
	Payload       []byte         `json:"p"`
	CorrelationID string         `json:"c"`
	Values        map[string]any `json:"v"`
}

// Fingerprint returns a digest of the message content excluding the
// store-reserved headers. Two messages with the same fingerprint are treated
// as the same content by the store. Nil and empty payloads, like nil and
// empty header maps, are the same content.
func Fingerprint(m *Message) (string, error) {
	payload := m.Payload
	if len(payload) == 0 {
		payload = nil
	}
	values := m.Headers.Values
	if len(values) == 0 {
		values = nil
	}
	raw, err := json.Marshal(content{
		Payload:       payload,
		CorrelationID: m.CorrelationID,
		Values:        values,
	})
	if err != nil {
		return "", fmt.Errorf("message: fingerprint %s: %w", m.ID, err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

package mqtt

import (
	"encoding/json"
	"time"
)

// Status values published on the system status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StatusMessage is the payload on the system status topic.
type StatusMessage struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// DatabaseStateMessage is the retained payload on the database state topic.
type DatabaseStateMessage struct {
	State      string   `json:"state"`
	Path       string   `json:"path"`
	Extensions []string `json:"extensions,omitempty"`
	Timestamp  string   `json:"timestamp"`
}

// NoteEventMessage is the payload published for note mutations.
type NoteEventMessage struct {
	NoteID    string `json:"note_id"`
	Title     string `json:"title,omitempty"`
	Timestamp string `json:"timestamp"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// buildOnlinePayload creates the JSON payload for online status messages.
func buildOnlinePayload(clientID string) []byte {
	return mustMarshal(StatusMessage{
		Status:    StatusOnline,
		ClientID:  clientID,
		Timestamp: timestamp(),
	})
}

// buildOfflinePayload creates the JSON payload for offline status messages.
// reason distinguishes a graceful shutdown from the broker-published will.
func buildOfflinePayload(clientID, reason string) []byte {
	return mustMarshal(StatusMessage{
		Status:    StatusOffline,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: timestamp(),
	})
}

// mustMarshal encodes payload types that cannot fail to marshal.
func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic("mqtt: marshalling payload: " + err.Error())
	}
	return data
}

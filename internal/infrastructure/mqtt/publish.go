package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Note event kinds published under <prefix>/notes/<kind>.
const (
	NoteCreated = "created"
	NoteUpdated = "updated"
	NoteDeleted = "deleted"
)

// Publish sends a message to the specified MQTT topic.
//
// Retained messages are kept by the broker for new subscribers; use them
// for state (service status, database state), never for events.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishRetained publishes a retained message with the configured default QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

// PublishDatabaseState publishes a database lifecycle change as a retained
// message. The payload is remembered and republished after reconnects.
func (c *Client) PublishDatabaseState(state, path string, extensions []string) error {
	payload := mustMarshal(DatabaseStateMessage{
		State:      state,
		Path:       path,
		Extensions: extensions,
		Timestamp:  timestamp(),
	})

	c.stateMu.Lock()
	c.lastState = payload
	c.stateMu.Unlock()

	return c.PublishRetained(c.topics.DatabaseState(), payload)
}

// PublishNoteEvent publishes a note mutation. Events are not retained.
func (c *Client) PublishNoteEvent(kind, noteID, title string) error {
	payload := mustMarshal(NoteEventMessage{
		NoteID:    noteID,
		Title:     title,
		Timestamp: timestamp(),
	})
	return c.Publish(c.topics.NoteEvent(kind), payload, byte(c.cfg.QoS), false)
}

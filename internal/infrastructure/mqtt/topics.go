package mqtt

import "fmt"

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "notesnook"

// Topics provides builders for notesnookd MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Prefix: "notesnook"}
//	topics.DatabaseState()
//	// Returns: "notesnook/database/state"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// SystemStatus returns the topic for the service's online/offline status.
//
// Example: notesnook/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// DatabaseState returns the topic for database lifecycle changes.
//
// Example: notesnook/database/state
func (t Topics) DatabaseState() string {
	return fmt.Sprintf("%s/database/state", t.prefix())
}

// NoteEvent returns the topic for note mutations of the given kind.
//
// Example: notesnook/notes/created
func (t Topics) NoteEvent(kind string) string {
	return fmt.Sprintf("%s/notes/%s", t.prefix(), kind)
}

// AllNoteEvents returns a wildcard matching every note event.
//
// Example: notesnook/notes/+
func (t Topics) AllNoteEvents() string {
	return fmt.Sprintf("%s/notes/+", t.prefix())
}

// AllTopics returns a wildcard matching every notesnookd topic.
//
// Example: notesnook/#
func (t Topics) AllTopics() string {
	return fmt.Sprintf("%s/#", t.prefix())
}

package emitter

import "strings"

// Control topic prefix shared by all broker requests.
const controlPrefix = "emitter/"

// Topics provides the emitter control topics.
//
// Usage:
//
//	topic := emitter.Topics{}.Keygen() // "emitter/keygen/"
type Topics struct{}

// Keygen returns the key generation request and response topic.
func (Topics) Keygen() string { return controlPrefix + "keygen/" }

// Link returns the link creation topic.
func (Topics) Link() string { return controlPrefix + "link/" }

// Presence returns the presence request and notification topic.
func (Topics) Presence() string { return controlPrefix + "presence/" }

// Me returns the connection information topic.
func (Topics) Me() string { return controlPrefix + "me/" }

// Error returns the topic the broker reports request errors on.
func (Topics) Error() string { return controlPrefix + "error/" }

// IsControl reports whether topic is an emitter control topic rather than a
// channel.
func IsControl(topic string) bool {
	return strings.HasPrefix(topic, controlPrefix)
}

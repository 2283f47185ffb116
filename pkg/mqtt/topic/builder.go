package topic

import (
	"fmt"
	"strings"
)

// Constants defining the standard topic segments.
// These act as the protocol contract between the ride server bridge and driver agents.
const (
	// SegmentDriver scopes every topic to one driver.
	// Structure: {root}/driver/{driverID}/...
	SegmentDriver = "driver"

	// SuffixDown carries server events to the driver (Server -> Driver).
	// Structure: {root}/driver/{driverID}/down/{event}
	SuffixDown = "down"

	// SuffixUp carries driver commands to the server (Driver -> Server).
	// Structure: {root}/driver/{driverID}/up/{event}
	SuffixUp = "up"

	// SuffixPresence is the retained online/offline flag, also used as the will topic.
	// Structure: {root}/driver/{driverID}/presence
	SuffixPresence = "presence"
)

// TopicBuilder encapsulates the logic for constructing MQTT topic strings.
type TopicBuilder struct {
	// root is the base namespace for all topics (e.g., "rideline/v1").
	root string
}

// NewTopicBuilder creates a new instance of TopicBuilder with the specified root namespace.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: strings.TrimSuffix(root, "/")}
}

// Down returns the topic a server event is delivered on.
// Direction: Server -> Driver
func (b *TopicBuilder) Down(driverID, event string) string {
	return b.build(driverID, SuffixDown, event)
}

// DownWildcard returns the filter a driver subscribes to for all of its events.
// Result: {root}/driver/{driverID}/down/+
func (b *TopicBuilder) DownWildcard(driverID string) string {
	return b.build(driverID, SuffixDown, Wildcard)
}

// Up returns the topic a driver command is published on.
// Direction: Driver -> Server
func (b *TopicBuilder) Up(driverID, event string) string {
	return b.build(driverID, SuffixUp, event)
}

// Presence returns the retained presence topic of a driver.
func (b *TopicBuilder) Presence(driverID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", b.root, SegmentDriver, driverID, SuffixPresence)
}

// EventName extracts the trailing event segment of a topic built by this builder.
// ok is false when the topic is outside the builder's root.
func (b *TopicBuilder) EventName(topic string) (event string, ok bool) {
	if !strings.HasPrefix(topic, b.root+"/"+SegmentDriver+"/") {
		return "", false
	}
	i := strings.LastIndexByte(topic, '/')
	if i < 0 || i == len(topic)-1 {
		return "", false
	}
	return topic[i+1:], true
}

// build is a private helper to construct the final topic string.
// Pattern: {root}/driver/{driverID}/{direction}/{event}
func (b *TopicBuilder) build(driverID, direction, event string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", b.root, SegmentDriver, driverID, direction, event)
}

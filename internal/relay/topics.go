package relay

import (
	"fmt"
	"strings"

	"github.com/parkline/mqtt-forwarder/internal/amt"
)

// Topic and identifier prefixes.
const (
	// TopicPrefix precedes the device id in inbound status topics.
	TopicPrefix = "status/AMT"

	// SerialPrefix precedes the device id in the envelope SN field.
	SerialPrefix = "AMT"

	// WildcardTopic matches every device status topic with one subscription.
	WildcardTopic = "status/+"
)

// DeviceTopic returns the inbound status topic for a device.
func DeviceTopic(deviceID string) string {
	return TopicPrefix + deviceID
}

// SerialNumber returns the SN field value for a device.
func SerialNumber(deviceID string) string {
	return SerialPrefix + deviceID
}

// DeviceIDFromTopic extracts the device id from a status topic.
// The remainder after TopicPrefix must be exactly 14 ASCII digits.
func DeviceIDFromTopic(topic string) (string, error) {
	id, ok := strings.CutPrefix(topic, TopicPrefix)
	if !ok || !amt.IsDeviceID(id) {
		return "", fmt.Errorf("%w: %q", ErrTopicMismatch, topic)
	}
	return id, nil
}

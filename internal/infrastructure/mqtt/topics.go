package mqtt

import "fmt"

// Topic prefixes for the tracker's MQTT tree.
const (
	// TopicPrefix is the root of every tracker topic.
	TopicPrefix = "jimi"

	// TopicPrefixCore is where the tracker publishes processed state.
	TopicPrefixCore = "jimi/core"

	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = "jimi/system"

	// TopicPrefixPush is where gateways relay raw device pushes.
	TopicPrefixPush = "jimi/push"
)

// Topics provides builders for tracker MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.CoreDeviceState("3345689")
//	// Returns: "jimi/core/device/3345689/state"
type Topics struct{}

// CoreDeviceState returns the retained state topic for one device.
//
// Example: jimi/core/device/3345689/state
func (Topics) CoreDeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefixCore, deviceID)
}

// AllCoreDeviceStates matches every device state topic.
func (Topics) AllCoreDeviceStates() string {
	return TopicPrefixCore + "/device/+/state"
}

// Push returns the ingest topic for one gateway or source.
//
// Example: jimi/push/gateway-1
func (Topics) Push(source string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixPush, source)
}

// AllPushes matches every ingest topic.
func (Topics) AllPushes() string {
	return TopicPrefixPush + "/+"
}

// SystemStatus returns the service status topic. The LWT is published here.
//
// Example: jimi/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

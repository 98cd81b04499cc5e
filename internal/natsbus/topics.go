package natsbus

import "strings"

// TopicEvent maps a chat event name such as "ai:response" to its subject.
func TopicEvent(name string) string {
	return "events." + strings.ReplaceAll(name, ":", ".")
}

const (
	TopicEventsAll = "events.>"
	TopicRPC       = "swarm.rpc"
)

// Package commsutil provides COMMS connection helpers and utilities.
package commsutil

import "fmt"

// Subjects used on the subsystem event bus (ping, ping-response, cleanup).
const (
	SubjectPing         = "dispatcher.subsystem.ping"
	SubjectPingResponse = "dispatcher.subsystem.ping-response"
	SubjectCleanup      = "dispatcher.subsystem.cleanup"
)

// OutgoingSubject builds the per-session subject the Egress Pump consumes.
// Producers are local handlers and remote listeners.
func OutgoingSubject(instanceID, sessionID string) string {
	return fmt.Sprintf("sockethub:%s:dispatcher:outgoing:%s", instanceID, sessionID)
}

// IncomingSubject builds the per-platform subject a remote listener consumes.
// The Ingress Pipeline is the only producer.
func IncomingSubject(instanceID, platform string) string {
	return fmt.Sprintf("sockethub:%s:listener:%s:incoming", instanceID, platform)
}

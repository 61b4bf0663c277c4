package models

import "time"

// EventKind enumerates the telemetry/audit event shapes the system emits.
type EventKind string

const (
	EventProjectPhaseChanged  EventKind = "project.phase_changed"
	EventDiscoveryQuestion    EventKind = "discovery.question"
	EventDiscoveryAnswered    EventKind = "discovery.answered"
	EventPRDStatus            EventKind = "prd.status"
	EventTasksDecomposed      EventKind = "tasks.decomposed"
	EventTaskStatusChanged    EventKind = "task.status_changed"
	EventAgentCreated         EventKind = "agent.created"
	EventAgentStatusChanged   EventKind = "agent.status_changed"
	EventQualityGateResult    EventKind = "quality_gate.result"
	EventCheckpointCreated    EventKind = "checkpoint.created"
	EventSessionStarted       EventKind = "session.started"
	EventSessionPaused        EventKind = "session.paused"
	EventSessionCompleted     EventKind = "session.completed"
	EventSessionFailed        EventKind = "session.failed"
	EventCostUpdated          EventKind = "cost.updated"
	EventGap                  EventKind = "gap"
)

// Event is an append-only audit/telemetry record. Payload is opaque
// JSON-shaped data specific to Kind.
type Event struct {
	ID        int64
	ProjectID int64
	SessionID int64 // 0 means unset
	Timestamp time.Time
	Kind      EventKind
	Payload   map[string]any
}

// Package pipeline orchestrates the four-stage analysis run and emits the
// typed event stream consumers render as live progress.
package pipeline

import (
	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/types"
)

// EventType enumerates the orchestration event kinds.
type EventType string

// Event kinds, in the order a healthy run emits them.
const (
	EventStageStart    EventType = "agent_start"
	EventProgress      EventType = "progress"
	EventStageComplete EventType = "agent_complete"
	EventResult        EventType = "result"
	EventError         EventType = "error"
)

// Result is the terminal payload of a successful run.
type Result struct {
	Repo            string                   `json:"repo"`
	Intake          types.IntakeResult       `json:"intake"`
	Risk            types.RiskResult         `json:"risk"`
	Health          types.HealthTelemetry    `json:"health"`
	Action          types.MaintainerBriefing `json:"action"`
	StageTimings    []types.StageTiming      `json:"stage_timings"`
	TotalDurationMS int64                    `json:"total_duration_ms"`
}

// Event is one entry of the orchestration event stream. Only the fields
// relevant to the event's type are populated; on result events the Result
// fields are flattened alongside the type tag.
type Event struct {
	*Result
	Type        EventType `json:"type"`
	Agent       string    `json:"agent,omitempty"`
	Step        string    `json:"step,omitempty"`
	Timestamp   string    `json:"timestamp,omitempty"`
	Message     string    `json:"message,omitempty"`
	AgentIndex  *int      `json:"agentIndex,omitempty"`
	TotalAgents int       `json:"totalAgents,omitempty"`
	Percent     *int      `json:"percent,omitempty"`
	DurationMS  *int64    `json:"durationMs,omitempty"`
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

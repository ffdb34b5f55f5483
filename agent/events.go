package agent

import "github.com/jurni-app/planner/observability"

const (
	EventAttemptFailed observability.EventType = "agent.attempt.failed"
	EventToolExecuted  observability.EventType = "agent.tool.executed"
	EventToolRejected  observability.EventType = "agent.tool.rejected"
)

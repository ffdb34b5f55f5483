package state

import "github.com/jurni-app/planner/observability"

const (
	EventGraphValidated     observability.EventType = "graph.validated"
	EventTransitionAccepted observability.EventType = "graph.transition.accepted"
	EventTransitionRejected observability.EventType = "graph.transition.rejected"
)

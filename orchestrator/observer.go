package orchestrator

import "github.com/jurni-app/planner/observability"

// Orchestrator event types.
const (
	EventTurnStart        observability.EventType = "orchestrator.turn.start"
	EventTurnComplete     observability.EventType = "orchestrator.turn.complete"
	EventTransition       observability.EventType = "orchestrator.transition"
	EventProposalRejected observability.EventType = "orchestrator.proposal.rejected"
	EventPersistRetry     observability.EventType = "orchestrator.persist.retry"
	EventPersistFailed    observability.EventType = "orchestrator.persist.failed"
	EventPublishFailed    observability.EventType = "orchestrator.publish.failed"
	EventSessionCreated   observability.EventType = "orchestrator.session.created"
	EventSessionClosed    observability.EventType = "orchestrator.session.closed"
	EventItinerarySaved   observability.EventType = "orchestrator.itinerary.saved"
	EventStreamAbandoned  observability.EventType = "orchestrator.stream.abandoned"
)

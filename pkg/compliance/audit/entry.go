package audit

import (
	"context"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/telemetry/logging"
)

// NewEntry starts an audit entry for eventType. The actor and correlation id
// come from ctx; a context without an actor is attributed to the system.
func NewEntry(ctx context.Context, eventType string, impact compliance.ComplianceImpact) *compliance.AuditEntry {
	actor := logging.GetActor(ctx)
	actorType := logging.GetActorType(ctx)
	if actor == "" {
		actor = compliance.ActorSystem
		actorType = compliance.ActorSystem
	}
	if actorType == "" {
		actorType = compliance.ActorAdmin
	}

	return &compliance.AuditEntry{
		EventType:        eventType,
		Actor:            actor,
		ActorType:        actorType,
		ComplianceImpact: impact,
		RequestID:        logging.GetRequestID(ctx),
		Details:          make(map[string]any),
	}
}

package commands

import (
	"context"

	"github.com/google/uuid"

	sharedApplication "github.com/felixgeelhaar/reservo/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/reservo/internal/shared/domain"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/outbox"
)

// appendEvents stamps events with the command's metadata and appends them to
// the outbox in the transaction carried by ctx.
func appendEvents(ctx context.Context, repo outbox.Repository, events []sharedDomain.DomainEvent, actorID uuid.UUID, maxRetries int) error {
	if len(events) == 0 {
		return nil
	}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, actorID))

	msgs, err := outbox.NewMessages(events, maxRetries)
	if err != nil {
		return err
	}
	return repo.SaveBatch(ctx, msgs)
}

package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
)

type Event struct {
	ID          int64
	AggregateID uuid.UUID
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// Execer is satisfied by pgx.Tx, so events are written in the caller's transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func Append(ctx context.Context, db Execer, aggregateID uuid.UUID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: failed to marshal %s payload: %w", eventType, err)
	}

	query := `
		INSERT INTO outbox_events (aggregate_id, event_type, payload)
		VALUES ($1, $2, $3)
	`
	if _, err := db.Exec(ctx, query, aggregateID, eventType, body); err != nil {
		return fmt.Errorf("outbox: failed to insert %s event: %w", eventType, err)
	}
	return nil
}

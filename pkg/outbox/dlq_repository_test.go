package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/maskball-tickets/pkg/db/dbtest"
	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

func TestInsertTxClipsLongMessagesOnRuneBoundary(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewDLQRepository(client.DB())
	msg := strings.Repeat("a", maxDLQErrorLen-1) + "é and more"

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return repo.InsertTx(tx, models.OutboxDLQ{
			EventID:       uuid.New(),
			EventType:     enums.EventOrderRejected,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
			ErrorMessage:  &msg,
		})
	})
	require.NoError(t, err)

	rows, err := repo.List(context.Background(), DLQFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	stored := *rows[0].ErrorMessage
	require.True(t, utf8.ValidString(stored))
	require.Len(t, stored, maxDLQErrorLen-1)
}

func TestRequeueTxClearsAttemptsAndDeadLetter(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewDLQRepository(client.DB())
	events := NewRepository(client.DB())
	ctx := context.Background()

	event := models.OutboxEvent{
		EventType:     enums.EventOrderConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
	}
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := events.Insert(tx, event); err != nil {
			return err
		}
		return tx.First(&event, "aggregate_id = ?", event.AggregateID).Error
	}))
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := events.MarkTerminalTx(tx, event.ID, context.DeadlineExceeded, 10); err != nil {
			return err
		}
		return repo.InsertTx(tx, models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
			FailedAt:      time.Now().UTC(),
		})
	}))

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		pending, err := events.FetchUnpublishedForPublish(tx, 10, 10)
		require.Empty(t, pending)
		return err
	}))

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := repo.RequeueTx(tx, event.ID)
		if err == nil {
			require.Equal(t, enums.OutboxDLQReasonMaxAttempts, entry.ErrorReason)
		}
		return err
	}))

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		pending, err := events.FetchUnpublishedForPublish(tx, 10, 10)
		require.Len(t, pending, 1)
		require.Equal(t, event.ID, pending[0].ID)
		return err
	}))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := repo.RequeueTx(tx, event.ID)
		return err
	})
	require.ErrorIs(t, err, ErrDeadLetterNotFound)
}

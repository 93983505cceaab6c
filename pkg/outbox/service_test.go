package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/maskball-tickets/pkg/db/dbtest"
	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

func TestEmitWritesVersionedEnvelope(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	fixed := time.Date(2026, 10, 31, 20, 0, 0, 0, time.FixedZone("SGT", 8*3600))
	svc.now = func() time.Time { return fixed }
	orderID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         SystemActor("checkout"),
			Data:          map[string]string{"order_number": "MASK-AB12CD34"},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, client.DB().First(&row).Error)
	require.Equal(t, orderID, row.AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	require.NoError(t, envelope.Validate())
	require.Equal(t, EnvelopeVersion, envelope.Version)
	require.True(t, envelope.OccurredAt.Equal(fixed))
	require.Equal(t, time.UTC, envelope.OccurredAt.Location())
	require.Equal(t, "system", envelope.Actor.Staff)
	require.JSONEq(t, `{"order_number":"MASK-AB12CD34"}`, string(envelope.Data))
}

func TestEmitRejectsIncompleteEvents(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	valid := DomainEvent{
		EventType:     enums.EventOrderRejected,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          struct{}{},
	}

	cases := map[string]func(e *DomainEvent){
		"event type":     func(e *DomainEvent) { e.EventType = "order.shipped" },
		"aggregate type": func(e *DomainEvent) { e.AggregateType = "cart" },
		"aggregate id":   func(e *DomainEvent) { e.AggregateID = uuid.Nil },
		"data":           func(e *DomainEvent) { e.Data = nil },
	}
	for name, mutate := range cases {
		event := valid
		mutate(&event)
		err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, event)
		})
		require.Error(t, err, name)
	}
	require.Error(t, svc.Emit(context.Background(), nil, valid))

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitRollsBackWithCallerTransaction(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderVerified,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          map[string]bool{"is_verified": true},
		}); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.ErrorIs(t, err, gorm.ErrInvalidTransaction)

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count, "an event must not outlive a rolled back state change")
}

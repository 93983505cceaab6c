package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Primary keys are minted in Go so the same models work on Postgres and sqlite.

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (r *Reservation) BeforeCreate(*gorm.DB) error      { ensureID(&r.ID); return nil }
func (r *ReservationItem) BeforeCreate(*gorm.DB) error  { ensureID(&r.ID); return nil }
func (m *StockMovement) BeforeCreate(*gorm.DB) error    { ensureID(&m.ID); return nil }
func (o *Order) BeforeCreate(*gorm.DB) error            { ensureID(&o.ID); return nil }
func (li *OrderLineItem) BeforeCreate(*gorm.DB) error   { ensureID(&li.ID); return nil }
func (t *IndividualTicket) BeforeCreate(*gorm.DB) error { ensureID(&t.ID); return nil }
func (p *PaymentProof) BeforeCreate(*gorm.DB) error     { ensureID(&p.ID); return nil }
func (s *CheckoutSession) BeforeCreate(*gorm.DB) error  { ensureID(&s.ID); return nil }
func (e *OutboxEvent) BeforeCreate(*gorm.DB) error      { ensureID(&e.ID); return nil }
func (d *OutboxDLQ) BeforeCreate(*gorm.DB) error        { ensureID(&d.ID); return nil }

// All lists every persisted model; used by sqlite auto-migration and tests.
func All() []any {
	return []any{
		&TicketType{},
		&Reservation{},
		&ReservationItem{},
		&StockMovement{},
		&Order{},
		&OrderLineItem{},
		&IndividualTicket{},
		&PaymentProof{},
		&CheckoutSession{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics counts inventory operations by outcome.
type LedgerMetrics struct {
	ops   *prometheus.CounterVec
	units *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger counters on reg.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maskball_ledger_operations_total",
		Help: "Inventory ledger operations by operation and result.",
	}, []string{"operation", "result"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maskball_ledger_units_total",
		Help: "Ticket units moved by applied ledger operations.",
	}, []string{"operation", "ticket_type"})
	reg.MustRegister(ops, units)
	return &LedgerMetrics{ops: ops, units: units}
}

// Observe records one operation outcome (applied, short, error).
func (m *LedgerMetrics) Observe(operation, result string) {
	if m == nil || m.ops == nil {
		return
	}
	m.ops.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Inc()
}

// AddUnits records units moved for a ticket type.
func (m *LedgerMetrics) AddUnits(operation, ticketType string, qty int) {
	if m == nil || m.units == nil || qty <= 0 {
		return
	}
	m.units.WithLabelValues(normalizeLabel(operation), normalizeLabel(ticketType)).Add(float64(qty))
}

// CheckoutMetrics counts checkout attempts by rail and outcome.
type CheckoutMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout counters on reg.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maskball_checkout_outcomes_total",
		Help: "Checkout attempts by payment rail and outcome.",
	}, []string{"rail", "outcome"})
	reg.MustRegister(outcomes)
	return &CheckoutMetrics{outcomes: outcomes}
}

// Observe records one checkout outcome.
func (m *CheckoutMetrics) Observe(rail, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(rail), normalizeLabel(outcome)).Inc()
}

// DoorMetrics counts door validations by result.
type DoorMetrics struct {
	scans *prometheus.CounterVec
}

// NewDoorMetrics registers the door counters on reg.
func NewDoorMetrics(reg prometheus.Registerer) *DoorMetrics {
	if reg == nil {
		return &DoorMetrics{}
	}
	scans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maskball_door_scans_total",
		Help: "Door validations by result.",
	}, []string{"result"})
	reg.MustRegister(scans)
	return &DoorMetrics{scans: scans}
}

// Observe records one validation result.
func (m *DoorMetrics) Observe(result string) {
	if m == nil || m.scans == nil {
		return
	}
	m.scans.WithLabelValues(normalizeLabel(result)).Inc()
}

// DispatchMetrics counts notification deliveries.
type DispatchMetrics struct {
	deliveries *prometheus.CounterVec
}

// NewDispatchMetrics registers the dispatcher counters on reg.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maskball_notification_deliveries_total",
		Help: "Outbox notification deliveries by event type and result.",
	}, []string{"event_type", "result"})
	reg.MustRegister(deliveries)
	return &DispatchMetrics{deliveries: deliveries}
}

// Observe records one delivery attempt.
func (m *DispatchMetrics) Observe(eventType, result string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}

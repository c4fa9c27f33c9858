package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderStatusChanged   = "OrderStatusChanged"
	EventOrderProgressChanged = "OrderProgressChanged"
	EventVersion              = 1
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type StatusChangedPayload struct {
	ChangeID   string     `json:"change_id"`
	OrderID    string     `json:"order_id"`
	FromStatus Status     `json:"from_status"`
	ToStatus   Status     `json:"to_status"`
	Kind       ChangeKind `json:"kind"`
	Reason     string     `json:"reason,omitempty"`
	Actor      string     `json:"actor"`
	Progress   int        `json:"progress"`
	PickerID   string     `json:"picker_id,omitempty"`
	ChangedAt  time.Time  `json:"changed_at"`
}

func NewStatusChangedPayload(c StateChange, o Order) StatusChangedPayload {
	p := StatusChangedPayload{
		ChangeID:   c.ID,
		OrderID:    c.OrderID,
		FromStatus: c.FromStatus,
		ToStatus:   c.ToStatus,
		Kind:       c.Kind,
		Reason:     c.Reason,
		Actor:      c.Actor,
		Progress:   o.Progress,
		ChangedAt:  c.CreatedAt,
	}
	if o.PickerID != nil {
		p.PickerID = *o.PickerID
	}
	return p
}

// ProgressChangedPayload announces a pick or undo that moved Order.Progress
// without a status change.
type ProgressChangedPayload struct {
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	PickerID  string    `json:"picker_id,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

func NewProgressChangedPayload(o Order) ProgressChangedPayload {
	p := ProgressChangedPayload{
		OrderID:   o.ID,
		Status:    o.Status,
		Progress:  o.Progress,
		ChangedAt: o.UpdatedAt,
	}
	if o.PickerID != nil {
		p.PickerID = *o.PickerID
	}
	return p
}

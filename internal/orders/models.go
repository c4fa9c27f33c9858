package orders

import "time"

type Order struct {
	ID             string      `json:"id"`
	ExternalID     string      `json:"external_id,omitempty"`
	Status         Status      `json:"status"`
	Priority       int         `json:"priority"`
	CustomerName   string      `json:"customer_name"`
	Progress       int         `json:"progress"` // derived, see CalculateProgress
	PickerID       *string     `json:"picker_id,omitempty"`
	PackerID       *string     `json:"packer_id,omitempty"`
	ClaimedAt      *time.Time  `json:"claimed_at,omitempty"`
	Carrier        string      `json:"carrier,omitempty"`
	TrackingNumber string      `json:"tracking_number,omitempty"`
	ShippedAt      *time.Time  `json:"shipped_at,omitempty"`
	CancelReason   string      `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Items          []OrderItem `json:"items,omitempty"`
}

type ItemStatus string

const (
	ItemPending     ItemStatus = "PENDING"
	ItemPartialPick ItemStatus = "PARTIAL_PICKED"
	ItemFullyPicked ItemStatus = "FULLY_PICKED"
)

type OrderItem struct {
	ID               string     `json:"id"`
	OrderID          string     `json:"order_id"`
	SKU              string     `json:"sku"`
	BinLocation      string     `json:"bin_location"`
	Quantity         int        `json:"quantity"`
	PickedQuantity   int        `json:"picked_quantity"`
	VerifiedQuantity int        `json:"verified_quantity"`
	Status           ItemStatus `json:"status"`
}

// DeriveItemStatus is the only way an item status is produced.
func DeriveItemStatus(picked, quantity int) ItemStatus {
	switch {
	case picked <= 0:
		return ItemPending
	case picked >= quantity:
		return ItemFullyPicked
	default:
		return ItemPartialPick
	}
}

func (it OrderItem) FullyPicked() bool   { return it.PickedQuantity == it.Quantity }
func (it OrderItem) FullyVerified() bool { return it.VerifiedQuantity == it.PickedQuantity }

type InventoryUnit struct {
	SKU         string    `json:"sku"`
	BinLocation string    `json:"bin_location"`
	Quantity    int       `json:"quantity"`
	Reserved    int       `json:"reserved"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (u InventoryUnit) Available() int { return u.Quantity - u.Reserved }

type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
)

type PickTask struct {
	ID             string     `json:"id"`
	OrderID        string     `json:"order_id"`
	OrderItemID    string     `json:"order_item_id"`
	SKU            string     `json:"sku"`
	Quantity       int        `json:"quantity"`
	PickedQuantity int        `json:"picked_quantity"`
	Status         TaskStatus `json:"status"`
	PickerID       string     `json:"picker_id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func DeriveTaskStatus(picked, quantity int) TaskStatus {
	switch {
	case picked <= 0:
		return TaskPending
	case picked >= quantity:
		return TaskCompleted
	default:
		return TaskInProgress
	}
}

type ChangeKind string

const (
	KindTransition ChangeKind = "transition"
	KindRecovery   ChangeKind = "recovery"
)

// StateChange is one audit trail record. Written once, never updated.
type StateChange struct {
	ID         string     `json:"id"`
	OrderID    string     `json:"order_id"`
	FromStatus Status     `json:"from_status"`
	ToStatus   Status     `json:"to_status"`
	Kind       ChangeKind `json:"kind"`
	Reason     string     `json:"reason,omitempty"`
	Actor      string     `json:"actor"`
	CreatedAt  time.Time  `json:"created_at"`
}

type ShippingInfo struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

func (s ShippingInfo) Complete() bool {
	return s.Carrier != "" && s.TrackingNumber != ""
}

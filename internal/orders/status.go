package orders

import "fmt"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPicking   Status = "PICKING"
	StatusPicked    Status = "PICKED"
	StatusPacking   Status = "PACKING"
	StatusPacked    Status = "PACKED"
	StatusShipped   Status = "SHIPPED"
	StatusCancelled Status = "CANCELLED"
	StatusBackorder Status = "BACKORDER"
)

// AllStatuses lists every known status in workflow order.
var AllStatuses = []Status{
	StatusPending, StatusPicking, StatusPicked, StatusPacking,
	StatusPacked, StatusShipped, StatusCancelled, StatusBackorder,
}

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPicking: true, StatusCancelled: true, StatusBackorder: true},
	StatusPicking:   {StatusPicked: true, StatusCancelled: true},
	StatusPicked:    {StatusPacking: true},
	StatusPacking:   {StatusPacked: true},
	StatusPacked:    {StatusShipped: true},
	StatusBackorder: {StatusPending: true},
	StatusShipped:   {},
	StatusCancelled: {},
}

func (s Status) String() string { return string(s) }

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusShipped || s == StatusCancelled
}

// HoldsPicker reports whether an order in this status must carry a picker.
// These are exactly the states reachable only through PICKING.
func (s Status) HoldsPicker() bool {
	switch s {
	case StatusPicking, StatusPicked, StatusPacking, StatusPacked, StatusShipped:
		return true
	}
	return false
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// NextStatuses returns the statuses reachable from s in one step.
func NextStatuses(s Status) []Status {
	out := make([]Status, 0, len(validNext[s]))
	for _, st := range AllStatuses {
		if validNext[s][st] {
			out = append(out, st)
		}
	}
	return out
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", &ValidationError{Reason: ReasonInvalidStatus, Message: fmt.Sprintf("unknown order status %q", s)}
	}
	return st, nil
}

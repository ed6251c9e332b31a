package enums

import "fmt"

// MovementKind maps to the movement_kind_enum enum in Postgres.
type MovementKind string

const (
	MovementKindPurchase    MovementKind = "purchase"
	MovementKindSale        MovementKind = "sale"
	MovementKindTransferIn  MovementKind = "transfer_in"
	MovementKindTransferOut MovementKind = "transfer_out"
	MovementKindAdjustment  MovementKind = "adjustment"
)

var validMovementKinds = []MovementKind{
	MovementKindPurchase,
	MovementKindSale,
	MovementKindTransferIn,
	MovementKindTransferOut,
	MovementKindAdjustment,
}

// String implements fmt.Stringer.
func (k MovementKind) String() string {
	return string(k)
}

// IsValid reports whether the value matches the canonical movement kind enum.
func (k MovementKind) IsValid() bool {
	for _, candidate := range validMovementKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// IsInbound reports whether the kind adds stock to a warehouse.
func (k MovementKind) IsInbound() bool {
	return k == MovementKindPurchase || k == MovementKindTransferIn
}

// IsOutbound reports whether the kind removes stock from a warehouse.
func (k MovementKind) IsOutbound() bool {
	return k == MovementKindSale || k == MovementKindTransferOut
}

// IsTransferLeg reports whether the kind is one half of a transfer pair.
func (k MovementKind) IsTransferLeg() bool {
	return k == MovementKindTransferIn || k == MovementKindTransferOut
}

// ParseMovementKind converts raw input into MovementKind.
func ParseMovementKind(value string) (MovementKind, error) {
	for _, candidate := range validMovementKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement kind %q", value)
}

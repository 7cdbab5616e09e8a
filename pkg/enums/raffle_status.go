package enums

import "fmt"

// RaffleStatus tracks the lifecycle of a raffle.
type RaffleStatus string

const (
	RaffleStatusDraft     RaffleStatus = "draft"
	RaffleStatusActive    RaffleStatus = "active"
	RaffleStatusCompleted RaffleStatus = "completed"
	RaffleStatusCancelled RaffleStatus = "cancelled"
)

var validRaffleStatuses = []RaffleStatus{
	RaffleStatusDraft,
	RaffleStatusActive,
	RaffleStatusCompleted,
	RaffleStatusCancelled,
}

// String implements fmt.Stringer.
func (s RaffleStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known RaffleStatus.
func (s RaffleStatus) IsValid() bool {
	for _, candidate := range validRaffleStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the lifecycle permits moving to next.
// Draft raffles activate, active raffles complete, and cancellation is
// allowed from draft or active only.
func (s RaffleStatus) CanTransitionTo(next RaffleStatus) bool {
	switch s {
	case RaffleStatusDraft:
		return next == RaffleStatusActive || next == RaffleStatusCancelled
	case RaffleStatusActive:
		return next == RaffleStatusCompleted || next == RaffleStatusCancelled
	default:
		return false
	}
}

// ParseRaffleStatus converts raw input into a RaffleStatus.
func ParseRaffleStatus(value string) (RaffleStatus, error) {
	for _, candidate := range validRaffleStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid raffle status %q", value)
}

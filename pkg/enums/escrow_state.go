package enums

import "fmt"

// EscrowState tracks an escrow record from authorization through release.
// releasing is a transient marker written before the external transfer so a
// crashed worker can resume instead of transferring twice.
type EscrowState string

const (
	EscrowStateInitiated  EscrowState = "initiated"
	EscrowStateAuthorized EscrowState = "authorized"
	EscrowStateReleasing  EscrowState = "releasing"
	EscrowStateCaptured   EscrowState = "captured"
	EscrowStateReleased   EscrowState = "released"
	EscrowStateRefunded   EscrowState = "refunded"
	EscrowStateDisputed   EscrowState = "disputed"
)

var validEscrowStates = []EscrowState{
	EscrowStateInitiated,
	EscrowStateAuthorized,
	EscrowStateReleasing,
	EscrowStateCaptured,
	EscrowStateReleased,
	EscrowStateRefunded,
	EscrowStateDisputed,
}

// String implements fmt.Stringer.
func (s EscrowState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EscrowState.
func (s EscrowState) IsValid() bool {
	for _, candidate := range validEscrowStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s EscrowState) IsTerminal() bool {
	switch s {
	case EscrowStateReleased, EscrowStateRefunded, EscrowStateDisputed:
		return true
	}
	return false
}

// ParseEscrowState converts raw input into an EscrowState.
func ParseEscrowState(value string) (EscrowState, error) {
	for _, candidate := range validEscrowStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid escrow state %q", value)
}

package enums

import "fmt"

// CheckoutMode selects which fee policy and processor flow a checkout uses.
type CheckoutMode string

const (
	CheckoutModeStandard CheckoutMode = "standard"
	CheckoutModeEscrow   CheckoutMode = "escrow"
)

var validCheckoutModes = []CheckoutMode{
	CheckoutModeStandard,
	CheckoutModeEscrow,
}

// String implements fmt.Stringer.
func (m CheckoutMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known CheckoutMode.
func (m CheckoutMode) IsValid() bool {
	for _, candidate := range validCheckoutModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseCheckoutMode converts raw input into a CheckoutMode.
func ParseCheckoutMode(value string) (CheckoutMode, error) {
	for _, candidate := range validCheckoutModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout mode %q", value)
}

package models

import "fmt"

// ProducerStatus is the lifecycle state of a registered signal producer.
// Only active producers participate in a cycle.
type ProducerStatus string

const (
	StatusActive   ProducerStatus = "active"
	StatusInactive ProducerStatus = "inactive"
	StatusError    ProducerStatus = "error"
	StatusDisabled ProducerStatus = "disabled"
)

func (s ProducerStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusError, StatusDisabled:
		return true
	default:
		return false
	}
}

// ParseProducerStatus converts a raw string to a status value.
func ParseProducerStatus(s string) (ProducerStatus, error) {
	st := ProducerStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown producer status %q", s)
	}
	return st, nil
}

package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// HealthState is the coarse condition of one engine component.
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateDegraded  HealthState = "degraded"
	HealthStateUnhealthy HealthState = "unhealthy"
)

func (s HealthState) String() string {
	return string(s)
}

// IsValid reports whether s is one of the three known states.
func (s HealthState) IsValid() bool {
	switch s {
	case HealthStateHealthy, HealthStateDegraded, HealthStateUnhealthy:
		return true
	default:
		return false
	}
}

// UnmarshalJSON rejects states outside the known set.
func (s *HealthState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	state := HealthState(str)
	if !state.IsValid() {
		return fmt.Errorf("invalid health state: %s", str)
	}
	*s = state
	return nil
}

// HealthStatus is one component's self-reported condition: the stores,
// the embedder, and the model provider each return one from Health.
type HealthStatus struct {
	State     HealthState `json:"state"`
	Message   string      `json:"message,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
}

// Healthy builds a healthy status stamped with the current time.
func Healthy(message string) HealthStatus {
	return stamped(HealthStateHealthy, message)
}

// Degraded builds a degraded status: the component answers but with
// reduced capability.
func Degraded(message string) HealthStatus {
	return stamped(HealthStateDegraded, message)
}

// Unhealthy builds an unhealthy status: the component cannot serve.
func Unhealthy(message string) HealthStatus {
	return stamped(HealthStateUnhealthy, message)
}

func stamped(state HealthState, message string) HealthStatus {
	return HealthStatus{State: state, Message: message, CheckedAt: time.Now().UTC()}
}

// IsHealthy reports a fully operational component.
func (h HealthStatus) IsHealthy() bool {
	return h.State == HealthStateHealthy
}

// IsDegraded reports a component running with reduced capability.
func (h HealthStatus) IsDegraded() bool {
	return h.State == HealthStateDegraded
}

// IsUnhealthy reports a component that cannot serve.
func (h HealthStatus) IsUnhealthy() bool {
	return h.State == HealthStateUnhealthy
}

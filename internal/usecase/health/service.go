// Package health aggregates per-dependency availability checks into one
// report for the /health endpoint.
package health

import "context"

// Status is the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult is one component's health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

type component struct {
	name    string
	checker Checker
}

// Service runs registered dependency checks.
type Service struct {
	components []component
}

// New creates an empty health service; wire dependencies with Register.
func New() *Service {
	return &Service{}
}

// Register adds a named dependency check. Nil checkers are ignored so
// optional components can be wired unconditionally.
func (s *Service) Register(name string, c Checker) {
	if c == nil {
		return
	}
	s.components = append(s.components, component{name: name, checker: c})
}

// Check probes every registered component. Any failure degrades the
// aggregate status; individual results are reported per component.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.components))
	status := Healthy

	for _, c := range s.components {
		if err := c.checker.HealthCheck(ctx); err != nil {
			checks[c.name] = CheckError
			status = Degraded
		} else {
			checks[c.name] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}

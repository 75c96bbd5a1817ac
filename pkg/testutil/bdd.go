package testutil

import "testing"

// Scenario runs Given/When/Then steps as ordered subtests. Steps usually build
// on each other, so once one fails the remaining steps are skipped.
type Scenario struct {
	t      *testing.T
	failed bool
}

func NewScenario(t *testing.T) *Scenario {
	return &Scenario{t: t}
}

func (s *Scenario) Given(desc string, fn func(t *testing.T)) *Scenario {
	s.t.Helper()
	return s.step("Given", desc, fn)
}

func (s *Scenario) When(desc string, fn func(t *testing.T)) *Scenario {
	s.t.Helper()
	return s.step("When", desc, fn)
}

func (s *Scenario) Then(desc string, fn func(t *testing.T)) *Scenario {
	s.t.Helper()
	return s.step("Then", desc, fn)
}

func (s *Scenario) And(desc string, fn func(t *testing.T)) *Scenario {
	s.t.Helper()
	return s.step("And", desc, fn)
}

func (s *Scenario) step(kind, desc string, fn func(t *testing.T)) *Scenario {
	s.t.Helper()
	name := kind + " " + desc
	if s.failed {
		s.t.Run(name, func(t *testing.T) { t.Skip("earlier step failed") })
		return s
	}
	if !s.t.Run(name, fn) {
		s.failed = true
	}
	return s
}

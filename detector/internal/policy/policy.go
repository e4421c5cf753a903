// Package policy decides whether a deauthentication sighting is escalated
// from logging to active blocking.
package policy

import "github.com/telhawk-systems/airhawk/detector/internal/model"

// Threshold is the escalation boundary in dBm. Only readings strictly above
// it (closer transmitters) escalate.
const Threshold = -50

// Action is the outcome of Decide.
type Action int

const (
	LogOnly Action = iota
	Escalate
)

func (a Action) String() string {
	if a == Escalate {
		return "escalate"
	}
	return "log_only"
}

// Decide escalates iff the signal is valid and stronger than Threshold.
func Decide(s model.Signal) Action {
	if s.Valid && s.Value > Threshold {
		return Escalate
	}
	return LogOnly
}

package appointment

import (
	"errors"
	"fmt"
	"time"
)

// LeadTime is the minimum notice a patient must give to cancel or reschedule.
const LeadTime = 24 * time.Hour

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrLeadTimeViolation = errors.New("appointment is less than 24 hours away")
)

type transition struct {
	to    Status
	gated bool
}

// transitions is the single source of truth for the status graph. Statuses
// missing from it (finished, cancelled) are terminal.
var transitions = map[Status]map[Action]transition{
	StatusScheduled: {
		ActionBegin:  {to: StatusInProgress},
		ActionCancel: {to: StatusCancelled, gated: true},
	},
	StatusInProgress: {
		ActionFinish: {to: StatusFinished},
		ActionCancel: {to: StatusCancelled, gated: true},
	},
}

// actionOrder keeps AllowedActions deterministic.
var actionOrder = []Action{ActionBegin, ActionFinish, ActionCancel}

// Next returns the status reached by applying action to from.
func Next(from Status, action Action) (Status, error) {
	t, ok := transitions[from][action]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, from)
	}
	return t.to, nil
}

// AllowedActions lists the actions permitted from status, in display order.
func AllowedActions(status Status) []Action {
	out := make([]Action, 0, len(actionOrder))
	for _, a := range actionOrder {
		if _, ok := transitions[status][a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// IsTerminal reports whether no action leaves status.
func IsTerminal(status Status) bool {
	return len(transitions[status]) == 0
}

// RequiresLeadTime reports whether action from status is held to LeadTime
// when actor initiates it.
func RequiresLeadTime(status Status, action Action, actor Actor) bool {
	if actor == ActorStaff {
		return false
	}
	return transitions[status][action].gated
}

type StatusPresentation struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

var presentations = map[Status]StatusPresentation{
	StatusScheduled:  {Label: "Agendado", Color: "#1976d2"},
	StatusInProgress: {Label: "Em atendimento", Color: "#ed6c02"},
	StatusFinished:   {Label: "Finalizado", Color: "#2e7d32"},
	StatusCancelled:  {Label: "Cancelado", Color: "#d32f2f"},
}

func StatusInfo(status Status) StatusPresentation {
	if p, ok := presentations[status]; ok {
		return p
	}
	return StatusPresentation{Label: string(status), Color: "#9e9e9e"}
}

func ValidStatus(status Status) bool {
	_, ok := presentations[status]
	return ok
}

// LeadTimeError reports how long remains until the appointment starts when
// an action is refused for being inside the LeadTime window.
type LeadTimeError struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

func (e *LeadTimeError) Error() string {
	return fmt.Sprintf("%s: %dh%02dm remaining", ErrLeadTimeViolation, e.Hours, e.Minutes)
}

func (e *LeadTimeError) Unwrap() error {
	return ErrLeadTimeViolation
}

// CheckLeadTime returns nil when start is at least LeadTime after now, and a
// *LeadTimeError otherwise. Hours and minutes are floored; an appointment
// already in the past reports zero.
func CheckLeadTime(start, now time.Time) error {
	diff := start.Sub(now)
	if diff >= LeadTime {
		return nil
	}
	if diff < 0 {
		diff = 0
	}
	return &LeadTimeError{
		Hours:   int(diff / time.Hour),
		Minutes: int((diff % time.Hour) / time.Minute),
	}
}

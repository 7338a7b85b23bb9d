package twofactor

import "github.com/backoffice/server/internal/models"

// State is the lifecycle position of a user's factor registration.
type State string

const (
	StateNoFactor          State = "NO_FACTOR"
	StatePendingSetup      State = "PENDING_SETUP"
	StateConfirmedDisabled State = "CONFIRMED_DISABLED"
	StateConfirmedEnabled  State = "CONFIRMED_ENABLED"
)

// StateOf classifies reg; nil means no factor. A row flagged enabled but
// not confirmed is treated as pending and never gates login.
func StateOf(reg *models.FactorRegistration) State {
	switch {
	case reg == nil:
		return StateNoFactor
	case !reg.Confirmed:
		return StatePendingSetup
	case reg.Enabled:
		return StateConfirmedEnabled
	default:
		return StateConfirmedDisabled
	}
}

// Gates reports whether login must pass a challenge for this registration.
func Gates(reg *models.FactorRegistration) bool {
	return StateOf(reg) == StateConfirmedEnabled
}

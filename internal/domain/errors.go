package domain

import "errors"

// Domain errors
var (
	ErrMalformedPayload = errors.New("malformed game payload")
	ErrPlayerNotFound   = errors.New("player not found on leaderboard")
	ErrNoCheatRecord    = errors.New("no cheat record for player")
	ErrNoBoosts         = errors.New("no boosts available")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInternalError    = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrNoCheatRecord)
}

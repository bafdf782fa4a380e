package domain

// Verdict is the outcome of validating a score submission. Rejections are
// ordinary results, not errors: a malformed or cheating submission must never
// take the process down.
type Verdict int

const (
	VerdictAccept Verdict = iota
	VerdictRejectMalformed
	VerdictRejectOutOfRange
	VerdictRejectFlagged
	VerdictRejectRateLimited
)

// Accepted reports whether the submission may be committed to the leaderboard.
func (v Verdict) Accepted() bool {
	return v == VerdictAccept
}

func (v Verdict) String() string {
	switch v {
	case VerdictAccept:
		return "accept"
	case VerdictRejectMalformed:
		return "reject_malformed"
	case VerdictRejectOutOfRange:
		return "reject_out_of_range"
	case VerdictRejectFlagged:
		return "reject_flagged"
	case VerdictRejectRateLimited:
		return "reject_rate_limited"
	default:
		return "unknown"
	}
}

// Reason returns the human-readable text the gateway relays back to the player.
func (v Verdict) Reason() string {
	switch v {
	case VerdictAccept:
		return "score accepted"
	case VerdictRejectMalformed:
		return "invalid data"
	case VerdictRejectOutOfRange:
		return "score out of range"
	case VerdictRejectFlagged:
		return "flagged as cheating"
	case VerdictRejectRateLimited:
		return "rate limited, try again in a few seconds"
	default:
		return "rejected"
	}
}

package turn

// Reason is a short machine-readable cause string folded into
// ResolveTurnResult.ConflictReason (spec §7:
// "propagation policy: the engine never throws across its public API").
type Reason string

const (
	ReasonCampaignNotFound        Reason = "campaign_not_found"
	ReasonTurnInflight            Reason = "turn_inflight"
	ReasonClaimInvalid            Reason = "claim_invalid"
	ReasonMissingCampaignOrPlayer Reason = "missing_campaign_or_player"
	ReasonRowVersionChanged       Reason = "row_version_changed"
	ReasonCASFailed               Reason = "cas_failed"
)

// turnBusyError and staleClaimError are the internal error kinds of spec §7.
// Phase A/C return them, and they never escape ResolveTurn's public API —
// ResolveTurn folds them into ResolveTurnResult.Status/ConflictReason.
type turnBusyError struct{ reason Reason }

func (e *turnBusyError) Error() string { return "turn busy: " + string(e.reason) }

type staleClaimError struct{ reason Reason }

func (e *staleClaimError) Error() string { return "stale claim: " + string(e.reason) }

func newTurnBusy(r Reason) error   { return &turnBusyError{reason: r} }
func newStaleClaim(r Reason) error { return &staleClaimError{reason: r} }

func asTurnBusy(err error) (Reason, bool) {
	if e, ok := err.(*turnBusyError); ok {
		return e.reason, true
	}
	return "", false
}

func asStaleClaim(err error) (Reason, bool) {
	if e, ok := err.(*staleClaimError); ok {
		return e.reason, true
	}
	return "", false
}

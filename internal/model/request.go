package model

import "time"

// RequestStatus tracks an appraisal request through the pipeline. Values form
// a single linear walk with one terminal success and one terminal failure.
type RequestStatus string

const (
	StatusRunning       RequestStatus = "running"
	StatusAddressStart  RequestStatus = "address-start"
	StatusLookupStart   RequestStatus = "lookup-start"
	StatusScrapeStart   RequestStatus = "scrape-start"
	StatusAppraiseStart RequestStatus = "appraise-start"
	StatusDone          RequestStatus = "done"
	StatusFailed        RequestStatus = "failed"
)

// statusRank orders the linear walk. Failed is reachable from any
// non-terminal state and is not part of the ordering.
var statusRank = map[RequestStatus]int{
	StatusRunning:       0,
	StatusAddressStart:  1,
	StatusLookupStart:   2,
	StatusScrapeStart:   3,
	StatusAppraiseStart: 4,
	StatusDone:          5,
}

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Valid reports whether s is a known status value.
func (s RequestStatus) Valid() bool {
	if s == StatusFailed {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether moving from -> to is a legal step: strictly
// forward on the linear walk, or into failed from any non-terminal state.
// Re-committing the current status is allowed (crash-resume re-enters the
// same step).
func CanTransition(from, to RequestStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return statusRank[to] >= statusRank[from]
}

// AppraisalRequest is the identity for one appraisal run. Terminal rows are
// retained forever for audit and read-back.
type AppraisalRequest struct {
	ID                string        `json:"id"`
	Address           string        `json:"address"`
	NormalizedAddress string        `json:"normalized_address"`
	Status            RequestStatus `json:"status"`
	WorkflowID        *string       `json:"workflow_id,omitempty"`
	FinalValue        *float64      `json:"final_value,omitempty"`
	ErrorMessage      *string       `json:"error_message,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

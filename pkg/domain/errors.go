package domain

import "errors"

// ErrorKind classifies domain errors for callers and transports.
type ErrorKind string

const (
	// KindAuthorization marks an unauthorized caller.
	KindAuthorization ErrorKind = "authorization"
	// KindState marks an operation that is illegal in the current state.
	KindState ErrorKind = "state"
	// KindValidation marks malformed input or a failed balance binding.
	KindValidation ErrorKind = "validation"
	// KindCapacity marks a full bounded collection.
	KindCapacity ErrorKind = "capacity"
	// KindNotFound marks a missing record.
	KindNotFound ErrorKind = "not_found"
)

// Governance errors. All of them abort the operation with no state change.
var (
	ErrUnauthorized        = newError(KindAuthorization, "UNAUTHORIZED", "unauthorized access")
	ErrAlreadyInitialized  = newError(KindState, "ALREADY_INITIALIZED", "whitelist already initialized")
	ErrNotInitialized      = newError(KindState, "NOT_INITIALIZED", "whitelist not initialized")
	ErrDuplicateProposal   = newError(KindState, "DUPLICATE_PROPOSAL", "proposal id already exists")
	ErrProposalInactive    = newError(KindState, "PROPOSAL_INACTIVE", "proposal is inactive")
	ErrVotingPeriodEnded   = newError(KindState, "VOTING_PERIOD_ENDED", "voting period has ended")
	ErrVotingPeriodActive  = newError(KindState, "VOTING_PERIOD_ACTIVE", "voting period is still active")
	ErrAlreadyVoted        = newError(KindState, "ALREADY_VOTED", "voter already voted on this proposal")
	ErrHookNotWhitelisted  = newError(KindNotFound, "HOOK_NOT_WHITELISTED", "hook not whitelisted")
	ErrProposalNotFound    = newError(KindNotFound, "PROPOSAL_NOT_FOUND", "proposal not found")
	ErrInvalidWeight       = newError(KindValidation, "INVALID_WEIGHT", "vote weight rejected by balance binding")
	ErrInvalidTokenAccount = newError(KindValidation, "INVALID_TOKEN_ACCOUNT", "invalid token account")
	ErrInvalidTokenOwner   = newError(KindValidation, "INVALID_TOKEN_OWNER", "invalid token owner")
	ErrTallyOverflow       = newError(KindValidation, "TALLY_OVERFLOW", "vote tally overflow")
	ErrInvalidArgument     = newError(KindValidation, "INVALID_ARGUMENT", "invalid argument")
	ErrCapacityExceeded    = newError(KindCapacity, "CAPACITY_EXCEEDED", "bounded collection is full")
)

// DomainError is a classified governance error. Sentinels are compared by
// identity, so wrap them with fmt.Errorf("%w") to add context.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func newError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

func (e *DomainError) Error() string {
	return e.Message
}

// KindOf returns the kind of the first DomainError in err's chain, or "" if
// err is not a domain error.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// CodeOf returns the machine-readable code of the first DomainError in err's
// chain, or "" if there is none.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ErrorResponse defines the standard JSON error model returned by the API.
// TraceID carries the current OpenTelemetry trace identifier when available.
type ErrorResponse struct {
	Code    string `json:"code"`               // Machine-readable error code (e.g., PROPOSAL_INACTIVE)
	Message string `json:"message"`            // Human-readable message (safe for logs)
	TraceID string `json:"trace_id,omitempty"` // Optional trace/correlation ID
}

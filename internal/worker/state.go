package worker

// State is the router's lifecycle state
type State int

const (
	StateBooting State = iota
	StateBooted
	StateLinked
	StateFailed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateBooting:
		return "booting"
	case StateBooted:
		return "booted"
	case StateLinked:
		return "linked"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// violation reasons, used as metric labels
const (
	violationPatchBeforeLink    = "patch_before_link"
	violationLocationBeforeLink = "location_before_link"
	violationDuplicateRendered  = "duplicate_rendered"
	violationAfterFailure       = "after_failure"
	violationUnexpectedType     = "unexpected_type"
)

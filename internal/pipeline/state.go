package pipeline

type State int

const (
	StatePolling State = iota
	StateDeduping
	StateEnriching
	StateBatching
	StateFlushing
	StateCommitting
	StateDeadLettering
	StateStopped
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "POLLING"
	case StateDeduping:
		return "DEDUPING"
	case StateEnriching:
		return "ENRICHING"
	case StateBatching:
		return "BATCHING"
	case StateFlushing:
		return "FLUSHING"
	case StateCommitting:
		return "COMMITTING"
	case StateDeadLettering:
		return "DEAD_LETTERING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

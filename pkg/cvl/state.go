package cvl

// State is one of the six charge-voltage-limit states. The zero value is
// Bulk, the state a freshly constructed Runtime starts in.
type State uint8

const (
	Bulk State = iota
	Transition
	FloatApproach
	Float
	Sustain
	ImbalanceHold
)

func (s State) String() string {
	switch s {
	case Bulk:
		return "bulk"
	case Transition:
		return "transition"
	case FloatApproach:
		return "float_approach"
	case Float:
		return "float"
	case Sustain:
		return "sustain"
	case ImbalanceHold:
		return "imbalance_hold"
	default:
		return "unknown"
	}
}

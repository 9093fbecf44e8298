package protocol

// Result of a wrap-around sequence number comparison
type Comparison int8

const (
	Less Comparison = iota - 1
	Equal
	Greater
	Unknown
)

// Largest forward or backward distance at which two sequence numbers are still comparable
const SequenceWindow uint64 = 1 << 32

func (c Comparison) String() (text string) {
	switch c {
	case Less:
		text = "less"
	case Equal:
		text = "equal"
	case Greater:
		text = "greater"
	default:
		text = "unknown"
	}
	return
}

// Compares a against b modulo 2^64.
// a is Less when b lies at most SequenceWindow ahead of a, Greater when
// it lies at most SequenceWindow behind, and Unknown otherwise.
func CompareSequence(a, b uint64) (result Comparison) {
	if a == b {
		result = Equal
		return
	}
	forward := b - a  // distance from a up to b
	backward := a - b // distance from b up to a
	switch {
	case forward <= SequenceWindow:
		result = Less
	case backward <= SequenceWindow:
		result = Greater
	default:
		result = Unknown
	}
	return
}

package order

// CanTransition reports whether an order may move from to next.
// Processing may stay Processing (idempotent no-op) or advance to either
// terminal state; nothing leaves a terminal state.
func CanTransition(from, next Status) bool {
	if !from.Valid() || !next.Valid() {
		return false
	}
	if from.Terminal() {
		return false
	}
	return true
}

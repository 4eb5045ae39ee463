package shared

// RequireState fails with an InvalidStateError unless current equals required.
func RequireState[S ~string](entity string, id int64, current, required S) error {
	if current == required {
		return nil
	}
	return &InvalidStateError{Entity: entity, ID: id, Current: string(current), Required: string(required)}
}

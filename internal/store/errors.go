package store

// presetNotFoundError signals a missing preset id for 404 mapping.
type presetNotFoundError struct{ id string }

func (e presetNotFoundError) Error() string { return "preset not found: " + e.id }

// ErrPresetNotFound constructs a presetNotFoundError.
func ErrPresetNotFound(id string) error { return presetNotFoundError{id: id} }

// IsPresetNotFound reports whether err indicates a missing preset id.
func IsPresetNotFound(err error) bool {
	_, ok := err.(presetNotFoundError)
	return ok
}

// presetExistsError signals an id collision for 409 mapping.
type presetExistsError struct{ id string }

func (e presetExistsError) Error() string { return "preset already exists: " + e.id }

// ErrPresetExists constructs a presetExistsError.
func ErrPresetExists(id string) error { return presetExistsError{id: id} }

// IsPresetExists reports whether err indicates a duplicate preset id.
func IsPresetExists(err error) bool {
	_, ok := err.(presetExistsError)
	return ok
}

package manager

// modelNotFoundError signals an unresolvable model id for 404 mapping.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound returns an error for a model id that resolves to nothing.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// unavailableError signals a failed or timed-out restart sequence so the
// HTTP layer can return 503 Service Unavailable.
type unavailableError struct{ msg string }

func (e unavailableError) Error() string { return e.msg }

// ErrUnavailable constructs an unavailableError.
func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

// IsUnavailable reports whether err indicates a restart/health failure.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}

// presetActiveError signals an attempt to delete the active preset.
type presetActiveError struct{ id string }

func (e presetActiveError) Error() string { return "preset is active: " + e.id }

// ErrPresetActive constructs a presetActiveError.
func ErrPresetActive(id string) error { return presetActiveError{id: id} }

// IsPresetActive reports whether err indicates the preset is in use.
func IsPresetActive(err error) bool {
	_, ok := err.(presetActiveError)
	return ok
}

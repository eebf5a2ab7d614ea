package monitor

// PermanentError marks a processing failure that can never succeed, such as
// malformed input. The loop abandons these immediately instead of cycling
// them through the dead-letter schedule.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

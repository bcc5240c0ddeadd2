package store

// StorageError marks a persistence failure. Repositories wrap every driver
// error with it so callers can distinguish I/O trouble from domain
// conditions like not-found or duplicate-key.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// Wrap returns err tagged as a StorageError, or nil when err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

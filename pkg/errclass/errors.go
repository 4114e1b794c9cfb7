package errclass

import "fmt"

// ChronicleError is a stable, machine-readable error class.
type ChronicleError struct {
	Code    string
	Message string
}

func (e *ChronicleError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ChronicleError) Is(target error) bool {
	t, ok := target.(*ChronicleError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new ChronicleError with the same Code but a specific message.
func (e *ChronicleError) WithMessage(msg string) *ChronicleError {
	return &ChronicleError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new ChronicleError with a formatted message.
func (e *ChronicleError) WithMessagef(format string, args ...any) *ChronicleError {
	return &ChronicleError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// All stable error classes.
var (
	// ErrBackendMissing: the version-control executable is not on the
	// execution path. Fatal at initialization, never per-operation.
	ErrBackendMissing = &ChronicleError{Code: "E_BACKEND_MISSING"}

	ErrAlreadyInitialized = &ChronicleError{Code: "E_ALREADY_INITIALIZED"}
	ErrNotInitialized     = &ChronicleError{Code: "E_NOT_INITIALIZED"}

	// ErrBusy: a restore was requested while a commit is in flight.
	ErrBusy = &ChronicleError{Code: "E_BUSY"}

	// ErrUncommittedChanges: the tracked directory differs from the head
	// snapshot; a restore would silently discard un-flushed work.
	ErrUncommittedChanges = &ChronicleError{Code: "E_UNCOMMITTED_CHANGES"}

	ErrNothingToCommit = &ChronicleError{Code: "E_NOTHING_TO_COMMIT"}

	// ErrCorruptedRestore: a restore failed after the primary datastore
	// was partially rebuilt. Requires manual intervention.
	ErrCorruptedRestore = &ChronicleError{Code: "E_CORRUPTED_RESTORE"}

	ErrDumpFailed        = &ChronicleError{Code: "E_DUMP_FAILED"}
	ErrLoadFailed        = &ChronicleError{Code: "E_LOAD_FAILED"}
	ErrTargetExists      = &ChronicleError{Code: "E_TARGET_EXISTS"}
	ErrUnsupportedColumn = &ChronicleError{Code: "E_UNSUPPORTED_COLUMN"}
	ErrNameInvalid       = &ChronicleError{Code: "E_NAME_INVALID"}
	ErrRefNotFound       = &ChronicleError{Code: "E_REF_NOT_FOUND"}
)

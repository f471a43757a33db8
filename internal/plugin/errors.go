package plugin

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrBadArchiveStructure = errors.New("archive mixes namespaced and root-level entries")
	ErrExtractionFailed    = errors.New("archive could not be extracted")
	ErrEntryFileMissing    = errors.New("entry file missing")
	ErrEntryClassMissing   = errors.New("entry could not be resolved")
	ErrNotAnExtension      = errors.New("entry is not an extension")
	ErrInstallHookFailed   = errors.New("install hook failed")
	ErrExtensionNotLoaded  = errors.New("extension not loaded")
	ErrUninstallHookFailed = errors.New("uninstall hook failed")
	ErrInvalidName         = errors.New("invalid extension name")
	ErrAlreadyInstalled    = errors.New("extension already installed")
	ErrIncompatible        = errors.New("extension requires a different host version")
)

var retryable = map[error]bool{
	ErrExtractionFailed:    true,
	ErrInstallHookFailed:   true,
	ErrUninstallHookFailed: true,
}

// Error is returned by the lifecycle operations. Kind is one of the Err*
// values above; Err is the underlying cause, if any.
type Error struct {
	Kind       error
	SystemName string
	Op         string // install, uninstall, resolve
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.SystemName, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Retryable reports whether repeating the operation may succeed without the
// caller changing anything. Nothing retries automatically.
func (e *Error) Retryable() bool {
	return retryable[e.Kind]
}

// NewError builds an *Error.
func NewError(op, systemName string, kind, cause error) *Error {
	return &Error{Kind: kind, SystemName: systemName, Op: op, Err: cause}
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

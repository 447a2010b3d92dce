package errors

import "fmt"

// New creates a PlatformError with the default classification for code.
//
//	err := errors.New(errors.CodeSnapshotNotFound, "snapshot not found")
func New(code ErrorCode, message string) PlatformError {
	return &platformError{
		code:           code,
		classification: getDefaultClassification(code),
		message:        message,
	}
}

// Newf is New with a formatted message.
//
//	err := errors.Newf(errors.CodeCacheCorrupt, "%s is not a bare repository", path)
func Newf(code ErrorCode, format string, args ...interface{}) PlatformError {
	return New(code, fmt.Sprintf(format, args...))
}

package errors

// ErrorCode identifies an error condition. Codes are strings so they read
// well in logs and in the "[CODE] message" rendering.
type ErrorCode string

const (
	// Provisioning errors.

	// CodePrerequisiteMissing indicates a required external tool is not installed.
	CodePrerequisiteMissing ErrorCode = "PREREQUISITE_MISSING"

	// CodeCacheCorrupt indicates a cache entry exists but is not in the expected shape.
	// The operator should purge the entry rather than retry.
	CodeCacheCorrupt ErrorCode = "CACHE_CORRUPT"

	// CodeSnapshotNotFound indicates a restore was requested for an unknown snapshot.
	CodeSnapshotNotFound ErrorCode = "SNAPSHOT_NOT_FOUND"

	// CodeConfigFileMissing indicates a configuration file expected by a
	// backup or restore does not exist.
	CodeConfigFileMissing ErrorCode = "CONFIGURATION_FILE_MISSING"

	// Resource errors.

	// CodeNotFound indicates a requested resource does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeAlreadyExists indicates a resource already exists and cannot be created again.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// CodeConflict indicates a resource state conflict that prevents the operation.
	CodeConflict ErrorCode = "CONFLICT"

	// CodeUnauthorized indicates the remote rejected or required credentials.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Validation errors.

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates a configuration error prevents the operation.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// Transport errors.

	// CodeNetwork indicates a download or git network operation failed.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// Execution errors.

	// CodeExecutionFailed indicates an external command failed.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// CodeBuildFailed indicates the toolchain reported a failed verify or upload.
	CodeBuildFailed ErrorCode = "BUILD_FAILED"

	// System errors.

	// CodeInternal indicates an unexpected local failure (I/O, encoding).
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeNotImplemented indicates the requested functionality is not implemented.
	CodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"

	// CodeUnknown indicates an unclassified error.
	CodeUnknown ErrorCode = "UNKNOWN"
)

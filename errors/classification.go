package errors

// ErrorClassification indicates whether a failure is transient.
//
// Nothing in this module retries on its own. Classification is used to
// decide whether a stale cache entry may be served after a failed refresh.
type ErrorClassification string

const (
	// ClassificationRetryable marks transient failures such as network timeouts.
	ClassificationRetryable ErrorClassification = "RETRYABLE"

	// ClassificationPermanent marks failures that will not go away by trying again.
	ClassificationPermanent ErrorClassification = "PERMANENT"
)

// IsRetryable returns true if the classification is ClassificationRetryable.
func (c ErrorClassification) IsRetryable() bool {
	return c == ClassificationRetryable
}

var defaultClassifications = map[ErrorCode]ErrorClassification{
	CodeNetwork: ClassificationRetryable,
	CodeTimeout: ClassificationRetryable,

	CodePrerequisiteMissing: ClassificationPermanent,
	CodeCacheCorrupt:        ClassificationPermanent,
	CodeSnapshotNotFound:    ClassificationPermanent,
	CodeConfigFileMissing:   ClassificationPermanent,
	CodeNotFound:            ClassificationPermanent,
	CodeAlreadyExists:       ClassificationPermanent,
	CodeConflict:            ClassificationPermanent,
	CodeUnauthorized:        ClassificationPermanent,
	CodeInvalidInput:        ClassificationPermanent,
	CodeInvalidConfig:       ClassificationPermanent,
	CodeExecutionFailed:     ClassificationPermanent,
	CodeBuildFailed:         ClassificationPermanent,
	CodeInternal:            ClassificationPermanent,
	CodeNotImplemented:      ClassificationPermanent,
	CodeUnknown:             ClassificationPermanent,
}

// getDefaultClassification returns the classification for code, or
// ClassificationPermanent for codes not in the table.
func getDefaultClassification(code ErrorCode) ErrorClassification {
	if class, ok := defaultClassifications[code]; ok {
		return class
	}
	return ClassificationPermanent
}

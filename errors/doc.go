// Package errors provides coded errors for marlintool.
//
// Every failure the tool reports to an operator is a PlatformError carrying
// an ErrorCode, a retry classification and the offending path or URL as
// context. The codes that matter most map one to one onto the failure kinds
// an operator has to act on:
//
//   - CodePrerequisiteMissing: install the named tool
//   - CodeNetwork, CodeTimeout: the download or git remote failed
//   - CodeCacheCorrupt: purge the named cache entry
//   - CodeSnapshotNotFound: the named snapshot was never taken
//   - CodeConfigFileMissing: a configuration file to back up or restore is absent
//
// Creating and wrapping:
//
//	err := errors.Newf(errors.CodeSnapshotNotFound, "snapshot %q not found", name)
//	err = errors.WithContext(err, "path", dir)
//
//	if err != nil {
//	    return errors.Wrapf(err, errors.CodeNetwork, "failed to download %s", url)
//	}
//
// Inspecting:
//
//	if errors.GetCode(err) == errors.CodeCacheCorrupt { ... }
//	if errors.IsRetryable(err) { ... }
//
// The package is compatible with the standard library: errors.Is, errors.As
// and errors.Unwrap work on every PlatformError.
package errors

// Package exec runs the external tools marlintool depends on: download
// clients, archive extractors and the toolchain's own build executable.
//
// Command wraps os/exec behind the Executor interface. Configuration methods
// return copies, so a base executor can be configured once and handed to
// several components:
//
//	base := exec.New(exec.WithEnv(map[string]string{"LC_ALL": "C"}))
//	tar := exec.NewWrapper(base, "tar")
//	_, err := tar.WithContext(ctx).WithDir(dir).Run("-xf", archive)
//
// Output is always captured in the Result. WithPassthrough additionally
// streams it to the configured writers, which is how the toolchain build
// output reaches the terminal.
//
// Errors are *ExecError values. ExitCode extracts the process exit code and
// Classify turns a failed run into a coded error: a missing binary becomes
// CodePrerequisiteMissing. Require performs the same check up front:
//
//	if err := exec.Require("tar", "unzip"); err != nil {
//	    return err
//	}
package exec

package exec

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/jhol/marlintool/errors"
)

func TestBasicExecution(t *testing.T) {
	result, err := New().Run("echo", "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(result.Stdout, "hello world") {
		t.Errorf("expected stdout to contain 'hello world', got: %s", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got: %d", result.ExitCode)
	}
}

func TestCommandFailure(t *testing.T) {
	result, err := New().Run("sh", "-c", "echo boom >&2; exit 3")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var execErr *ExecError
	if !stderrors.As(err, &execErr) {
		t.Fatalf("expected ExecError, got: %T", err)
	}
	if execErr.ExitCode != 3 {
		t.Errorf("expected exit code 3, got: %d", execErr.ExitCode)
	}
	if ExitCode(err) != 3 {
		t.Errorf("expected ExitCode() to return 3, got: %d", ExitCode(err))
	}
	if result == nil || !strings.Contains(result.Stderr, "boom") {
		t.Fatalf("expected captured stderr with the error, got: %+v", result)
	}
}

func TestMissingBinary(t *testing.T) {
	_, err := New().Run("marlintool-definitely-not-installed")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var execErr *ExecError
	if !stderrors.As(err, &execErr) || !execErr.NotFound() {
		t.Fatalf("expected not-found ExecError, got: %v", err)
	}

	classified := Classify(err, errors.CodeExecutionFailed, "run failed")
	if errors.GetCode(classified) != errors.CodePrerequisiteMissing {
		t.Errorf("expected PREREQUISITE_MISSING, got: %v", classified)
	}
}

func TestWithDirDoesNotMutateReceiver(t *testing.T) {
	base := New()
	dir := t.TempDir()

	result, err := base.WithDir(dir).Run("pwd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Stdout, dir) {
		t.Errorf("expected stdout to contain %s, got: %s", dir, result.Stdout)
	}
	if base.dir != "" {
		t.Errorf("expected base executor to keep an empty dir, got: %s", base.dir)
	}
}

func TestWithEnv(t *testing.T) {
	base := New(WithEnv(map[string]string{"BASE_VAR": "base"}))

	result, err := base.WithEnv(map[string]string{"LOCAL_VAR": "local"}).Run("sh", "-c", "echo $BASE_VAR $LOCAL_VAR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Stdout, "base local") {
		t.Errorf("expected both variables, got: %s", result.Stdout)
	}

	result, err = base.Run("sh", "-c", "echo ${LOCAL_VAR:-unset}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Stdout, "unset") {
		t.Errorf("expected LOCAL_VAR to stay off the base executor, got: %s", result.Stdout)
	}
}

func TestInheritsEnvironment(t *testing.T) {
	t.Setenv("MARLINTOOL_INHERIT", "inherited")

	result, err := New(WithEnv(map[string]string{"X": "1"})).Run("sh", "-c", "echo $MARLINTOOL_INHERIT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Stdout, "inherited") {
		t.Errorf("expected inherited variable, got: %s", result.Stdout)
	}
}

func TestWithTimeout(t *testing.T) {
	_, err := New().WithTimeout(100 * time.Millisecond).Run("sleep", "2")
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}

	classified := Classify(err, errors.CodeExecutionFailed, "sleep failed")
	if errors.GetCode(classified) != errors.CodeTimeout {
		t.Errorf("expected TIMEOUT, got: %v", classified)
	}
}

func TestWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := New().WithContext(ctx).Run("sleep", "2"); err == nil {
		t.Fatal("expected context cancellation error, got nil")
	}
}

func TestWithPassthrough(t *testing.T) {
	var stdout, stderr bytes.Buffer

	result, err := New().WithStdout(&stdout).WithStderr(&stderr).WithPassthrough().Run("sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(result.Stdout, "out") || !strings.Contains(stdout.String(), "out") {
		t.Errorf("expected stdout captured and streamed, got: %q / %q", result.Stdout, stdout.String())
	}
	if !strings.Contains(result.Stderr, "err") || !strings.Contains(stderr.String(), "err") {
		t.Errorf("expected stderr captured and streamed, got: %q / %q", result.Stderr, stderr.String())
	}
	if !strings.Contains(result.Combined, "out") || !strings.Contains(result.Combined, "err") {
		t.Errorf("expected combined output, got: %q", result.Combined)
	}
}

func TestWithoutPassthroughOnlyCaptures(t *testing.T) {
	var stdout bytes.Buffer

	if _, err := New().WithStdout(&stdout).Run("echo", "quiet"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("expected nothing streamed, got: %q", stdout.String())
	}
}

func TestEmptyCommand(t *testing.T) {
	if _, err := New().Run(); err == nil {
		t.Fatal("expected error for empty command, got nil")
	}
}

func TestExitCodeNil(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Errorf("expected 0 for nil error")
	}
	if ExitCode(stderrors.New("plain")) != -1 {
		t.Errorf("expected -1 for non-exec error")
	}
}

func TestClassifyAttachesContext(t *testing.T) {
	_, err := New().Run("sh", "-c", "echo 'curl: (22) 404' >&2; exit 22")

	classified := Classify(err, errors.CodeNetwork, "download failed")
	if errors.GetCode(classified) != errors.CodeNetwork {
		t.Fatalf("expected NETWORK_ERROR, got: %v", classified)
	}

	var platformErr errors.PlatformError
	if !errors.As(classified, &platformErr) {
		t.Fatalf("expected PlatformError, got: %T", classified)
	}
	if platformErr.Context()["exit_code"] != 22 {
		t.Errorf("expected exit_code 22, got: %v", platformErr.Context()["exit_code"])
	}
	if platformErr.Context()["stderr"] != "curl: (22) 404" {
		t.Errorf("expected stderr context, got: %v", platformErr.Context()["stderr"])
	}
}

package exec

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/jhol/marlintool/errors"
)

func TestWrapperBasicExecution(t *testing.T) {
	echo := NewWrapper(New(), "echo")

	result, err := echo.Run("hello", "world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(result.Stdout, "hello world") {
		t.Errorf("expected stdout to contain 'hello world', got: %s", result.Stdout)
	}
	if echo.Name() != "echo" {
		t.Errorf("expected name echo, got: %s", echo.Name())
	}
}

func TestWrapperChaining(t *testing.T) {
	dir := t.TempDir()
	sh := NewWrapper(New(), "sh")

	result, err := sh.
		WithEnv(map[string]string{"VAR1": "value1"}).
		WithEnv(map[string]string{"VAR2": "value2"}).
		WithDir(dir).
		Run("-c", "echo $VAR1 $VAR2 && pwd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(result.Stdout, "value1 value2") {
		t.Errorf("expected both env vars to be set, got: %s", result.Stdout)
	}
	if !strings.Contains(result.Stdout, dir) {
		t.Errorf("expected working directory %s, got: %s", dir, result.Stdout)
	}
}

func TestWrapperMissingTool(t *testing.T) {
	base := New(WithLookPath(func(string) (string, error) {
		return "", fs.ErrNotExist
	}))

	_, err := NewWrapper(base, "unzip").Run("-q", "a.zip")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	classified := Classify(err, errors.CodeExecutionFailed, "unzip failed")
	if errors.GetCode(classified) != errors.CodePrerequisiteMissing {
		t.Errorf("expected PREREQUISITE_MISSING, got: %v", classified)
	}
}

func TestRequire(t *testing.T) {
	if err := Require("sh"); err != nil {
		t.Fatalf("expected sh to be present: %v", err)
	}

	err := RequireWith(func(name string) (string, error) {
		if name == "wget" {
			return "", fs.ErrNotExist
		}
		return "/usr/bin/" + name, nil
	}, "git", "wget", "tar")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.GetCode(err) != errors.CodePrerequisiteMissing {
		t.Errorf("expected PREREQUISITE_MISSING, got: %v", err)
	}
	if !strings.Contains(err.Error(), "wget") {
		t.Errorf("expected error to name wget, got: %v", err)
	}
}

func TestRequireFor(t *testing.T) {
	var looked []string
	executor := New(WithLookPath(func(name string) (string, error) {
		looked = append(looked, name)
		return "", fs.ErrNotExist
	}))

	err := NewWrapper(executor, "curl").Require()
	if errors.GetCode(err) != errors.CodePrerequisiteMissing {
		t.Errorf("expected PREREQUISITE_MISSING, got: %v", err)
	}
	if len(looked) != 1 || looked[0] != "curl" {
		t.Errorf("expected lookup of curl through the executor, got: %v", looked)
	}

	if err := RequireFor(New(), "sh"); err != nil {
		t.Errorf("expected sh to be present: %v", err)
	}
}

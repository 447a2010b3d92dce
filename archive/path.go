package archive

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jhol/marlintool/errors"
)

// validateMember rejects entry names that are empty, absolute, contain ".."
// components or control characters.
func validateMember(name string) error {
	if strings.TrimSpace(name) == "" {
		return unsafeEntry(name, "empty entry name")
	}
	if isAbsolute(name) {
		return unsafeEntry(name, "absolute entry path")
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return unsafeEntry(name, "path traversal")
		}
	}
	for _, r := range name {
		if r < 32 || r == 127 {
			return unsafeEntry(name, "control character in entry name")
		}
	}
	return nil
}

// isAbsolute also recognises Windows drive and UNC paths.
func isAbsolute(name string) bool {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return true
	}
	return len(name) >= 2 && name[1] == ':' &&
		((name[0] >= 'A' && name[0] <= 'Z') || (name[0] >= 'a' && name[0] <= 'z'))
}

// safeJoin joins member onto root and fails if the result leaves root.
func safeJoin(root, member string) (string, error) {
	if err := validateMember(member); err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.FromSlash(member))
	if !within(root, full) {
		return "", unsafeEntry(member, "path escapes destination")
	}
	return full, nil
}

// validateLink checks that a symlink at member pointing to target resolves
// inside root.
func validateLink(root, member, target string) error {
	if target == "" || isAbsolute(target) {
		return unsafeEntry(member, "symlink target "+target+" is absolute")
	}
	resolved := filepath.Join(root, filepath.Dir(filepath.FromSlash(member)), filepath.FromSlash(target))
	if !within(root, resolved) {
		return unsafeEntry(member, "symlink target "+target+" escapes destination")
	}
	return nil
}

func within(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	return path == root || strings.HasPrefix(path, root+string(os.PathSeparator))
}

func unsafeEntry(name, reason string) error {
	return errors.WithContext(
		errors.Newf(errors.CodeInvalidInput, "unsafe archive entry %q: %s", name, reason),
		"entry", name,
	)
}

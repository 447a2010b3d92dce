package cache

import (
	"path"
	"strings"

	"github.com/jhol/marlintool/cacheroot"
	"github.com/jhol/marlintool/errors"
)

// RepoName derives the mirror name from a repository URL: the last path
// segment with its extension stripped.
//
// Examples:
//   - https://github.com/MarlinFirmware/Marlin.git → Marlin
//   - git@github.com:olikraus/U8glib_Arduino.git → U8glib_Arduino
//   - /srv/git/anet-board/ → anet-board
func RepoName(url string) (string, error) {
	trimmed := strings.TrimRight(url, `/\`)
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 && strings.Contains(trimmed, "://") {
		trimmed = strings.TrimRight(trimmed[:i], "/")
	}

	base := trimmed
	if i := strings.LastIndexAny(base, `/\:`); i >= 0 {
		base = base[i+1:]
	}
	name := strings.TrimSuffix(base, path.Ext(base))

	if err := cacheroot.ValidateName(name); err != nil {
		return "", errors.WithContext(
			errors.Newf(errors.CodeInvalidInput, "cannot derive a repository name from %q", url),
			"url", url,
		)
	}
	return name, nil
}

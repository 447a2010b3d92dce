package cacheroot

import (
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/gobwas/glob"

	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/logging"
)

// IsPattern reports whether s contains glob metacharacters.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// PurgeMatching removes every entry whose name matches the glob pattern
// and returns the removed names, sorted. Bookkeeping files never match.
//
// Returns CodeInvalidInput for a malformed pattern and CodeNotFound when
// nothing matches.
func (r *Root) PurgeMatching(pattern string) ([]string, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrapf(err, errors.CodeInvalidInput, "invalid cache pattern %q", pattern),
			"pattern", pattern,
		)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.loadIndex()
	if err != nil {
		return nil, err
	}

	infos, err := r.fs.ReadDir(r.path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to read cache directory"),
			"path", r.path,
		)
	}

	candidates := make(map[string]struct{})
	for _, info := range infos {
		candidates[info.Name()] = struct{}{}
	}
	for name := range idx.Entries {
		candidates[name] = struct{}{}
	}

	var removed []string
	for name := range candidates {
		if ValidateName(name) != nil || !g.Match(name) {
			continue
		}
		path := r.Join(name)
		if err := util.RemoveAll(r.fs, path); err != nil {
			return nil, errors.WithContext(
				errors.Wrap(err, errors.CodeInternal, "failed to remove cache entry"),
				"path", path,
			)
		}
		delete(idx.Entries, name)
		removed = append(removed, name)
		r.logger.WithFields(logging.PathFields("cache_purge", path)).Info("Purged cache entry")
	}

	if len(removed) == 0 {
		return nil, errors.WithContext(
			errors.Newf(errors.CodeNotFound, "no cache entries match %s", pattern),
			"pattern", pattern,
		)
	}

	sort.Strings(removed)
	if err := idx.save(r.fs, r.Join(IndexFile)); err != nil {
		return removed, err
	}
	return removed, nil
}

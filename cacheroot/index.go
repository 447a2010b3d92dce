package cacheroot

import (
	"encoding/json"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/jhol/marlintool/errors"
)

const indexVersion = "1"

// Kind tells what a cache entry holds.
type Kind string

const (
	KindDownload Kind = "download"
	KindMirror   Kind = "mirror"
	KindUnknown  Kind = "unknown"
)

// Entry is the metadata recorded for one cache entry.
type Entry struct {
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

type index struct {
	Version string            `json:"version"`
	Entries map[string]*Entry `json:"entries"`
}

func loadOrCreateIndex(fs billy.Filesystem, path string) (*index, error) {
	if _, err := fs.Stat(path); os.IsNotExist(err) {
		return &index{
			Version: indexVersion,
			Entries: make(map[string]*Entry),
		}, nil
	}

	data, err := util.ReadFile(fs, path)
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to read cache index"),
			"path", path,
		)
	}

	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeCacheCorrupt, "failed to parse cache index"),
			"path", path,
		)
	}
	if idx.Version != indexVersion {
		return nil, errors.WithContext(
			errors.Newf(errors.CodeCacheCorrupt, "unsupported cache index version %s", idx.Version),
			"path", path,
		)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]*Entry)
	}
	return &idx, nil
}

// save writes the index through a temporary file and a rename.
func (idx *index) save(fs billy.Filesystem, path string) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to marshal cache index")
	}

	tmpPath := path + ".tmp"
	if err := util.WriteFile(fs, tmpPath, data, 0o644); err != nil {
		_ = fs.Remove(tmpPath)
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to write cache index"),
			"path", tmpPath,
		)
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		_ = fs.Remove(tmpPath)
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to replace cache index"),
			"path", path,
		)
	}
	return nil
}

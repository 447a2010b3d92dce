package archive

import (
	"context"
	"strings"

	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/exec"
)

// Format identifies an archive container and compression.
type Format string

const (
	FormatTarGz  Format = "tar.gz"
	FormatTarXz  Format = "tar.xz"
	FormatTarBz2 Format = "tar.bz2"
	FormatZip    Format = "zip"
)

// Extractor backends selectable from configuration.
const (
	KindCommand = "command"
	KindNative  = "native"
)

var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", FormatTarGz},
	{".tgz", FormatTarGz},
	{".tar.xz", FormatTarXz},
	{".txz", FormatTarXz},
	{".tar.bz2", FormatTarBz2},
	{".tbz2", FormatTarBz2},
	{".zip", FormatZip},
}

// Detect returns the format of path based on its extension.
func Detect(path string) (Format, error) {
	lower := strings.ToLower(path)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format, nil
		}
	}
	return "", errors.WithContext(
		errors.Newf(errors.CodeInvalidInput, "unsupported archive format: %s", path),
		"path", path,
	)
}

// Extractor unpacks an archive file into a directory, creating it if needed.
//
// Require reports, without reading the file, whether archive could be
// extracted on this host. archive only needs the right extension.
type Extractor interface {
	Extract(ctx context.Context, archive, dir string) error
	Require(archive string) error
}

// New returns the extractor for kind. An empty kind selects the command
// extractor.
func New(kind string, executor exec.Executor) (Extractor, error) {
	switch kind {
	case "", KindCommand:
		return NewCommandExtractor(executor), nil
	case KindNative:
		return NewNativeExtractor(), nil
	default:
		return nil, errors.WithContext(
			errors.Newf(errors.CodeInvalidConfig, "unknown extractor %q", kind),
			"extractor", kind,
		)
	}
}

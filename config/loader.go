package config

import (
	"context"
	_ "embed"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/jhol/marlintool/errors"
)

//go:embed schema.cue
var schemaSource string

// Load reads the CUE file at path, applies schema defaults, validates it
// and returns the decoded configuration with paths resolved against the
// file's directory.
//
// Returns CodeInvalidConfig if the file is missing, does not compile or
// does not satisfy the schema.
func Load(ctx context.Context, path string) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "context cancelled")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidConfig, "invalid configuration path %s", path)
	}

	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrapf(err, errors.CodeInvalidConfig, "failed to read configuration file %s", abs),
			"path", abs,
		)
	}

	cfg, err := decode(src, abs)
	if err != nil {
		return nil, err
	}
	cfg.Resolve(filepath.Dir(abs))
	return cfg, nil
}

// Defaults returns the schema defaults resolved against base. It is used
// when no configuration file exists and the command does not need one.
func Defaults(base string) (*Config, error) {
	cfg, err := decode(nil, "defaults.cue")
	if err != nil {
		return nil, err
	}
	cfg.Resolve(base)
	return cfg, nil
}

func decode(src []byte, filename string) (*Config, error) {
	cueCtx := cuecontext.New()

	schema := cueCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "embedded configuration schema is invalid")
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	data := cueCtx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return nil, cueError(err, "failed to compile configuration", filename)
	}

	unified := def.Unify(data)
	if err := unified.Validate(cue.Concrete(true), cue.Final(), cue.All()); err != nil {
		return nil, cueError(err, "configuration does not match schema", filename)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, cueError(err, "failed to decode configuration", filename)
	}

	if err := cfg.validate(); err != nil {
		return nil, errors.WithContext(err, "path", filename)
	}
	return &cfg, nil
}

func cueError(err error, message, filename string) error {
	out := errors.Wrap(err, errors.CodeInvalidConfig, message)
	out = errors.WithContext(out, "path", filename)
	return errors.WithContext(out, "details", cueerrors.Details(err, nil))
}

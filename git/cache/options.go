package cache

import (
	"github.com/sirupsen/logrus"

	"github.com/jhol/marlintool/git"
)

// Option configures a MirrorCache.
type Option func(*MirrorCache)

// WithRemoteOperations sets the git network backend. Tests use it to count
// clones and fetches.
func WithRemoteOperations(ops git.RemoteOperations) Option {
	return func(c *MirrorCache) {
		c.remoteOps = ops
	}
}

// WithStrictUpdate makes every failed mirror fetch an error instead of
// falling back to the stale mirror on network failures.
func WithStrictUpdate(strict bool) Option {
	return func(c *MirrorCache) {
		c.strict = strict
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *MirrorCache) {
		c.logger = logger
	}
}

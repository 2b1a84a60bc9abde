// Package storage mirrors packaged firmware archives to remote object storage.
package storage

import (
	"context"

	"git.home.luguber.info/inful/fwbuilder/internal/config"
	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// Publisher uploads a local archive under key and returns where it can be
// retrieved. An empty URL means the archive is only available locally.
type Publisher interface {
	Publish(ctx context.Context, key, path string) (url string, err error)
}

// NoopPublisher keeps archives local.
type NoopPublisher struct{}

// Publish implements Publisher.
func (NoopPublisher) Publish(context.Context, string, string) (string, error) { return "", nil }

// New returns the publisher selected by cfg.
func New(cfg config.StorageConfig) (Publisher, error) {
	switch cfg.Type {
	case config.StorageNone, "":
		return NoopPublisher{}, nil
	case config.StorageS3:
		return NewS3Publisher(cfg.S3), nil
	default:
		return nil, errors.ConfigError("unsupported storage type").
			WithContext("type", string(cfg.Type)).
			Build()
	}
}

// Key derives the object key for an identity's archive.
func Key(prefix, identity string) string {
	return prefix + identity + ".zip"
}

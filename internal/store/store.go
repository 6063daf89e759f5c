// Package store persists the mapping from user ID to backend credential.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/config"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
)

// ErrNotFound is returned by Load when the store has never been written.
// Callers treat it as "no registered users".
var ErrNotFound = errors.New("credential store not found")

// CredentialStore durably maps user IDs to credentials.
type CredentialStore interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, userID, credential string) error
	Close() error
}

// Open builds the store selected by cfg.Driver. path is used by the file
// and sqlite drivers.
func Open(ctx context.Context, cfg config.StoreConfig, path string, log *logging.Logger) (CredentialStore, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(path, log), nil
	case "sqlite":
		return OpenSQLite(path, log)
	case "redis":
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		}, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// LoadAll reads every credential, mapping ErrNotFound to an empty result.
func LoadAll(ctx context.Context, s CredentialStore) (map[string]string, error) {
	creds, err := s.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return creds, nil
}

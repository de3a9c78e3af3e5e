package persistence

import (
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Bolt wraps a bbolt database file used as durable local storage.
type Bolt struct {
	DB *bolt.DB
}

// NewBolt opens (creating if needed) the database file at path.
func NewBolt(path string, logger *zap.Logger) (*Bolt, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	logger.Debug("opened bolt store", zap.String("path", path))
	return &Bolt{DB: db}, nil
}

// Close closes the database file.
func (b *Bolt) Close() error {
	if b == nil || b.DB == nil {
		return nil
	}
	return b.DB.Close()
}

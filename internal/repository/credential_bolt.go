package repository

import (
	"context"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var credentialBucket = []byte("credentials")

type boltCredentialStore struct {
	db     *bolt.DB
	slot   []byte
	logger *zap.Logger
}

// NewBoltCredentialStore keeps the token under slot in a bbolt file, surviving
// process restarts.
func NewBoltCredentialStore(db *bolt.DB, slot string, logger *zap.Logger) (CredentialStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialBucket)
		return err
	}); err != nil {
		return nil, err
	}
	return &boltCredentialStore{db: db, slot: []byte(slot), logger: logger}, nil
}

func (s *boltCredentialStore) Set(_ context.Context, token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialBucket).Put(s.slot, []byte(token))
	})
}

func (s *boltCredentialStore) Get(_ context.Context) (string, bool) {
	var token string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(credentialBucket).Get(s.slot); v != nil {
			token = string(v)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("read credential", zap.Error(err))
		return "", false
	}
	return token, token != ""
}

func (s *boltCredentialStore) Clear(_ context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialBucket).Delete(s.slot)
	})
}

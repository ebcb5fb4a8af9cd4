package services

import (
	"context"
	"fmt"

	"github.com/MegaGrindStone/talkback/internal/models"
	"github.com/bytedance/sonic"
	bolt "go.etcd.io/bbolt"
)

var messagesBucket = []byte("messages")

// BoltDB implements the MessageStore interface using a BoltDB backend. Messages of every conversation
// share one bucket keyed by message id, which is all the parent chain walk needs.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes the database
// with required buckets and returns an error if the database cannot be opened or initialized. The
// database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	return openBoltDB(path, nil)
}

func openBoltDB(path string, opts *bolt.Options) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, opts)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(messagesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, fmt.Errorf("failed to create messages bucket: %w", err)
	}

	return BoltDB{db: db}, nil
}

// Message retrieves the message with the given id, or ErrMessageNotFound.
func (b BoltDB) Message(_ context.Context, id string) (models.Message, error) {
	var message models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(messagesBucket).Get([]byte(id))
		if v == nil {
			return ErrMessageNotFound
		}
		if err := sonic.Unmarshal(v, &message); err != nil {
			return fmt.Errorf("failed to unmarshal message: %w", err)
		}
		return nil
	})
	return message, err
}

// AddMessage stores message under its id, replacing any message with the same id.
func (b BoltDB) AddMessage(_ context.Context, message models.Message) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		v, err := sonic.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		return tx.Bucket(messagesBucket).Put([]byte(message.ID), v)
	})
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

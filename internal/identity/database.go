package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const credentialsBucketName = "credentials"

// CredentialStore persists sign-in records keyed by normalized email
type CredentialStore interface {
	// CreateCredential saves a new credential, or fails with ErrEmailInUse
	CreateCredential(ctx context.Context, cred *Credential) error

	// GetCredential retrieves the credential for an email, or ErrInvalidCredential
	GetCredential(ctx context.Context, email string) (*Credential, error)
}

// BoltDB implements the CredentialStore interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (or creates) the credential database at path
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}
	return NewBoltDBFromHandle(db)
}

// NewBoltDBFromHandle uses an already opened database
func NewBoltDBFromHandle(db *bbolt.DB) (*BoltDB, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(credentialsBucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &BoltDB{db: db}, nil
}

// CreateCredential saves a new credential
func (b *BoltDB) CreateCredential(ctx context.Context, cred *Credential) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(credentialsBucketName))
		if bucket.Get([]byte(cred.Email)) != nil {
			return ErrEmailInUse
		}
		data, err := json.Marshal(cred)
		if err != nil {
			return fmt.Errorf("marshaling credential: %w", err)
		}
		return bucket.Put([]byte(cred.Email), data)
	})
}

// GetCredential retrieves the credential for an email
func (b *BoltDB) GetCredential(ctx context.Context, email string) (*Credential, error) {
	var cred *Credential
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(credentialsBucketName)).Get([]byte(email))
		if data == nil {
			return ErrInvalidCredential
		}
		return json.Unmarshal(data, &cred)
	})
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// Package user manages accounts and friend edges over the generic document
// store: a fixed pair of collections in their own database file under the
// inner directory.
package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/syncstore/internal/auth"
	"github.com/watzon/syncstore/internal/config"
	"github.com/watzon/syncstore/internal/database"
	"github.com/watzon/syncstore/internal/hpke"
	"github.com/watzon/syncstore/internal/store"
)

const (
	usersCollection   = "users"
	friendsCollection = "friends"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// usersSchema keys accounts by username. Key material is stored alongside
// the credentials; []byte fields ride as base64 strings in the body.
var usersSchema = []byte(`{
	"type": "object",
	"properties": {
		"username": { "type": "string", "minLength": 1 },
		"password": { "type": "string" },
		"avatar_url": { "type": "string" },
		"public_key": { "type": "string" },
		"secret_key": { "type": "string" }
	},
	"required": ["username", "password", "public_key", "secret_key"],
	"x-unique": "username"
}`)

// friendsSchema stores one directed edge per row; the unique key
// "<user_id>:<friend_id>" dedupes re-adds, and the parent reference makes a
// dangling friend id a validation failure.
var friendsSchema = []byte(`{
	"type": "object",
	"properties": {
		"friend_id": { "type": "string" },
		"unique_key": { "type": "string" }
	},
	"required": ["friend_id", "unique_key"],
	"x-unique": "unique_key",
	"x-parent-id": { "parent": "users", "field": "friend_id" }
}`)

// userDoc is the stored body shape for the users collection.
type userDoc struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	AvatarURL string `json:"avatar_url,omitempty"`
	PublicKey []byte `json:"public_key"`
	SecretKey []byte `json:"secret_key"`
}

type friendDoc struct {
	FriendID  string `json:"friend_id"`
	UniqueKey string `json:"unique_key"`
}

// User is the caller-facing account view; credentials and the secret key
// never leave the manager.
type User struct {
	ID        store.Uid `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	PublicKey []byte    `json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Update is a partial account update. Nil fields are left unchanged.
type Update struct {
	AvatarURL *string `json:"avatar_url,omitempty"`
	Password  *string `json:"password,omitempty"`
}

// Manager is the user-facing specialization of the table mapper.
type Manager struct {
	backend *store.Backend
}

// NewManager opens (creating if needed) <baseDir>/inner/users.db with the
// fixed account schemas.
func NewManager(baseDir string, cfg *config.DatabaseConfig) (*Manager, error) {
	return newManager(filepath.Join(baseDir, "inner", "users.db"), cfg)
}

// NewMemoryManager backs the manager with an in-memory database, for tests.
func NewMemoryManager(cfg *config.DatabaseConfig) (*Manager, error) {
	return newManager(database.MemoryPath, cfg)
}

func newManager(path string, cfg *config.DatabaseConfig) (*Manager, error) {
	backend, err := store.NewBackendBuilder(path, cfg).
		WithCollection(usersCollection, usersSchema).
		WithCollection(friendsCollection, friendsSchema).
		Build()
	if err != nil {
		return nil, err
	}
	return &Manager{backend: backend}, nil
}

func (m *Manager) Close() error {
	return m.backend.Close()
}

// Backend exposes the underlying store for maintenance jobs.
func (m *Manager) Backend() *store.Backend {
	return m.backend
}

// CreateUser registers an account, hashing the password and generating a
// fresh HPKE key pair. Duplicate usernames surface as validation errors.
func (m *Manager) CreateUser(ctx context.Context, username, password string) (User, error) {
	digest, err := auth.HashPassword(password)
	if err != nil {
		return User{}, store.Backendf("hashing password: %v", err)
	}

	secretKey, publicKey, err := hpke.GenerateKeyPair()
	if err != nil {
		return User{}, store.Backendf("generating key pair: %v", err)
	}

	body, err := json.Marshal(userDoc{
		Username:  username,
		Password:  digest,
		PublicKey: publicKey,
		SecretKey: secretKey,
	})
	if err != nil {
		return User{}, store.BackendErr(err)
	}

	item, err := m.backend.Insert(ctx, usersCollection, body, rootOwner)
	if err != nil {
		return User{}, err
	}

	log.Info().Str("user_id", item.ID).Str("username", username).Msg("User created")

	return toUser(item)
}

// rootOwner marks rows owned by the system rather than any account.
const rootOwner = "root"

// ValidateUser checks credentials and returns the account id on success.
func (m *Manager) ValidateUser(ctx context.Context, username, password string) (store.Uid, error) {
	item, err := m.backend.GetByUnique(ctx, usersCollection, username)
	if err != nil {
		if store.IsNotFound(err) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	doc, err := decodeUserDoc(item)
	if err != nil {
		return "", err
	}
	if err := auth.VerifyPassword(password, doc.Password); err != nil {
		return "", ErrInvalidCredentials
	}
	return item.ID, nil
}

// GetUser returns the public account view.
func (m *Manager) GetUser(ctx context.Context, id store.Uid) (User, error) {
	item, err := m.backend.Get(ctx, usersCollection, id)
	if err != nil {
		return User{}, err
	}
	return toUser(item)
}

// GetByUsername returns the public account view looked up by username.
func (m *Manager) GetByUsername(ctx context.Context, username string) (User, error) {
	item, err := m.backend.GetByUnique(ctx, usersCollection, username)
	if err != nil {
		return User{}, err
	}
	return toUser(item)
}

// KeyMaterial returns the account's stored key pair for the HPKE transport
// wrapper.
func (m *Manager) KeyMaterial(ctx context.Context, id store.Uid) (secretKey, publicKey []byte, err error) {
	item, err := m.backend.Get(ctx, usersCollection, id)
	if err != nil {
		return nil, nil, err
	}
	doc, err := decodeUserDoc(item)
	if err != nil {
		return nil, nil, err
	}
	return doc.SecretKey, doc.PublicKey, nil
}

// UpdateUser applies a partial update, re-hashing the password when one is
// supplied.
func (m *Manager) UpdateUser(ctx context.Context, id store.Uid, patch Update) (User, error) {
	item, err := m.backend.Get(ctx, usersCollection, id)
	if err != nil {
		return User{}, err
	}
	doc, err := decodeUserDoc(item)
	if err != nil {
		return User{}, err
	}

	if patch.AvatarURL != nil {
		doc.AvatarURL = *patch.AvatarURL
	}
	if patch.Password != nil {
		digest, err := auth.HashPassword(*patch.Password)
		if err != nil {
			return User{}, store.Backendf("hashing password: %v", err)
		}
		doc.Password = digest
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return User{}, store.BackendErr(err)
	}
	updated, err := m.backend.Update(ctx, usersCollection, id, body)
	if err != nil {
		return User{}, err
	}
	return toUser(updated)
}

// AddFriend inserts the directed edge a → b. Mutual friendship is two
// calls. A dangling b is a validation failure via the parent reference.
func (m *Manager) AddFriend(ctx context.Context, a, b store.Uid) error {
	body, err := json.Marshal(friendDoc{
		FriendID:  b,
		UniqueKey: fmt.Sprintf("%s:%s", a, b),
	})
	if err != nil {
		return store.BackendErr(err)
	}
	_, err = m.backend.Insert(ctx, friendsCollection, body, a)
	return err
}

// Friend is one edge in a friend listing.
type Friend struct {
	UserID  store.Uid `json:"user_id"`
	AddedAt time.Time `json:"added_at"`
}

// ListFriends pages through the users that user has added.
func (m *Manager) ListFriends(ctx context.Context, user store.Uid, marker string, limit int) ([]Friend, string, error) {
	page, err := m.backend.ListByOwner(ctx, friendsCollection, user, marker, limit)
	if err != nil {
		return nil, "", err
	}

	friends := make([]Friend, 0, len(page.Items))
	for _, item := range page.Items {
		var doc friendDoc
		if err := json.Unmarshal(item.Body, &doc); err != nil {
			return nil, "", store.BackendErr(err)
		}
		friends = append(friends, Friend{UserID: doc.FriendID, AddedAt: item.CreatedAt})
	}
	return friends, page.NextMarker, nil
}

func decodeUserDoc(item store.Item) (userDoc, error) {
	var doc userDoc
	if err := json.Unmarshal(item.Body, &doc); err != nil {
		return userDoc{}, store.Backendf("corrupt user row %s: %v", item.ID, err)
	}
	return doc, nil
}

func toUser(item store.Item) (User, error) {
	doc, err := decodeUserDoc(item)
	if err != nil {
		return User{}, err
	}
	return User{
		ID:        item.ID,
		Username:  doc.Username,
		AvatarURL: doc.AvatarURL,
		PublicKey: doc.PublicKey,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}, nil
}

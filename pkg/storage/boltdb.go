package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aisu-run/aisu-core/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketUsers        = []byte("users")
	bucketUsersByName  = []byte("users_by_name")
	bucketUsersByEmail = []byte("users_by_email")
	bucketContainers   = []byte("containers")
	bucketEvents       = []byte("container_events")
	bucketNodeMeta     = []byte("node_meta")
	bucketBetaTokens   = []byte("beta_tokens")
)

// metaSep separates user id from path in node_meta keys. Paths contain
// "/" so a NUL byte keys per-user prefix scans unambiguously.
const metaSep = "\x00"

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "aisu.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketUsers,
			bucketUsersByName,
			bucketUsersByEmail,
			bucketContainers,
			bucketEvents,
			bucketNodeMeta,
			bucketBetaTokens,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// User operations

func (s *BoltStore) CreateUser(user *types.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		byName := tx.Bucket(bucketUsersByName)
		byEmail := tx.Bucket(bucketUsersByEmail)

		nameKey := []byte(strings.ToLower(user.Username))
		emailKey := []byte(strings.ToLower(user.Email))

		if byEmail.Get(emailKey) != nil {
			return fmt.Errorf("email %s: %w", user.Email, ErrConflict)
		}
		if byName.Get(nameKey) != nil {
			return fmt.Errorf("username %s: %w", user.Username, ErrConflict)
		}

		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		if err := users.Put([]byte(user.ID), data); err != nil {
			return err
		}
		if err := byName.Put(nameKey, []byte(user.ID)); err != nil {
			return err
		}
		return byEmail.Put(emailKey, []byte(user.ID))
	})
}

func (s *BoltStore) GetUser(id string) (*types.User, error) {
	var user types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) getUserByIndex(index []byte, key string) (*types.User, error) {
	var user types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(index).Get([]byte(strings.ToLower(key)))
		if id == nil {
			return fmt.Errorf("user %s: %w", key, ErrNotFound)
		}
		data := tx.Bucket(bucketUsers).Get(id)
		if data == nil {
			return fmt.Errorf("user %s: %w", key, ErrNotFound)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) GetUserByUsername(username string) (*types.User, error) {
	return s.getUserByIndex(bucketUsersByName, username)
}

func (s *BoltStore) GetUserByEmail(email string) (*types.User, error) {
	return s.getUserByIndex(bucketUsersByEmail, email)
}

func (s *BoltStore) UpdateUser(user *types.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(user.ID)) == nil {
			return fmt.Errorf("user %s: %w", user.ID, ErrNotFound)
		}
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return b.Put([]byte(user.ID), data)
	})
}

// DeleteUser removes a user and everything owned by it: the container
// record, its events, and all node metadata.
func (s *BoltStore) DeleteUser(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		data := users.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		var user types.User
		if err := json.Unmarshal(data, &user); err != nil {
			return err
		}

		if err := tx.Bucket(bucketUsersByName).Delete([]byte(strings.ToLower(user.Username))); err != nil {
			return err
		}
		if err := tx.Bucket(bucketUsersByEmail).Delete([]byte(strings.ToLower(user.Email))); err != nil {
			return err
		}
		if err := users.Delete([]byte(id)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketContainers).Delete([]byte(id)); err != nil {
			return err
		}
		if err := deletePrefix(tx.Bucket(bucketEvents), []byte(id+"/")); err != nil {
			return err
		}
		return deletePrefix(tx.Bucket(bucketNodeMeta), []byte(id+metaSep))
	})
}

// Container operations

func (s *BoltStore) GetContainerByUser(userID string) (*types.ContainerRecord, error) {
	var record types.ContainerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContainers)
		data := b.Get([]byte(userID))
		if data == nil {
			return fmt.Errorf("container record for user %s: %w", userID, ErrNotFound)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *BoltStore) ListContainers() ([]*types.ContainerRecord, error) {
	var records []*types.ContainerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContainers)
		return b.ForEach(func(k, v []byte) error {
			var record types.ContainerRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, &record)
			return nil
		})
	})
	return records, err
}

func (s *BoltStore) UpsertContainer(record *types.ContainerRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContainers)
		record.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(record.UserID), data)
	})
}

func (s *BoltStore) AppendContainerEvent(event *types.ContainerEvent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		if event.CreatedAt.IsZero() {
			event.CreatedAt = time.Now().UTC()
		}
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		// key orders events chronologically within a user prefix
		key := event.UserID + "/" + event.CreatedAt.Format(time.RFC3339Nano) + "/" + event.ID
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) ListContainerEvents(userID string) ([]*types.ContainerEvent, error) {
	var events []*types.ContainerEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		prefix := []byte(userID + "/")
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var event types.ContainerEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			events = append(events, &event)
		}
		return nil
	})
	return events, err
}

// Node metadata operations

func metaKey(userID, path string) []byte {
	return []byte(userID + metaSep + path)
}

func (s *BoltStore) FindNodeMeta(userID, path string) (*types.NodeMetadata, error) {
	var meta types.NodeMetadata
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNodeMeta).Get(metaKey(userID, path))
		if data == nil {
			return fmt.Errorf("node metadata %s: %w", path, ErrNotFound)
		}
		return json.Unmarshal(data, &meta)
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *BoltStore) UpsertNodeMeta(meta *types.NodeMetadata) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodeMeta)
		now := time.Now().UTC()
		if meta.CreatedAt.IsZero() {
			meta.CreatedAt = now
		}
		meta.UpdatedAt = now
		meta.ID = types.NodeID(meta.UserID, meta.Path)
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return b.Put(metaKey(meta.UserID, meta.Path), data)
	})
}

func (s *BoltStore) DeleteNodeMeta(userID, path string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodeMeta).Delete(metaKey(userID, path))
	})
}

// DeleteNodeMetaTree removes metadata at path and below it.
func (s *BoltStore) DeleteNodeMetaTree(userID, path string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodeMeta)
		if err := b.Delete(metaKey(userID, path)); err != nil {
			return err
		}
		return deletePrefix(b, metaKey(userID, path+"/"))
	})
}

// RenameNodeMetaTree rewrites metadata keys for a node and all its
// descendants after a rename or move. Node ids are re-derived since
// identity follows the path.
func (s *BoltStore) RenameNodeMetaTree(userID, oldPath, newPath string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodeMeta)

		type rekey struct {
			oldKey []byte
			meta   types.NodeMetadata
		}
		var pending []rekey

		collect := func(key []byte, v []byte, path string) error {
			var meta types.NodeMetadata
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			meta.Path = path
			meta.ID = types.NodeID(userID, path)
			meta.Name = basename(path)
			meta.UpdatedAt = time.Now().UTC()
			pending = append(pending, rekey{oldKey: append([]byte(nil), key...), meta: meta})
			return nil
		}

		if v := b.Get(metaKey(userID, oldPath)); v != nil {
			if err := collect(metaKey(userID, oldPath), v, newPath); err != nil {
				return err
			}
		}

		prefix := metaKey(userID, oldPath+"/")
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			suffix := strings.TrimPrefix(string(k), string(metaKey(userID, oldPath)))
			if err := collect(k, v, newPath+suffix); err != nil {
				return err
			}
		}

		for _, p := range pending {
			if err := b.Delete(p.oldKey); err != nil {
				return err
			}
			data, err := json.Marshal(&p.meta)
			if err != nil {
				return err
			}
			if err := b.Put(metaKey(userID, p.meta.Path), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) listNodeMeta(userID string, keep func(*types.NodeMetadata) bool) ([]*types.NodeMetadata, error) {
	var metas []*types.NodeMetadata
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketNodeMeta).Cursor()
		prefix := []byte(userID + metaSep)
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var meta types.NodeMetadata
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			if keep(&meta) {
				metas = append(metas, &meta)
			}
		}
		return nil
	})
	return metas, err
}

func (s *BoltStore) ListNodeMetaTrashed(userID string) ([]*types.NodeMetadata, error) {
	return s.listNodeMeta(userID, func(m *types.NodeMetadata) bool {
		return m.IsTrashed
	})
}

func (s *BoltStore) ListNodeMetaWithDesktopPos(userID string) ([]*types.NodeMetadata, error) {
	return s.listNodeMeta(userID, func(m *types.NodeMetadata) bool {
		return m.DesktopX != nil && m.DesktopY != nil
	})
}

func (s *BoltStore) DeleteAllTrashMeta(userID string) (int, error) {
	count := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodeMeta)
		c := b.Cursor()
		prefix := []byte(userID + metaSep)
		var keys [][]byte
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var meta types.NodeMetadata
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			if meta.IsTrashed {
				keys = append(keys, append([]byte(nil), k...))
			}
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		count = len(keys)
		return nil
	})
	return count, err
}

// Beta token operations

func (s *BoltStore) CreateBetaToken(token *types.BetaToken) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBetaTokens)
		data, err := json.Marshal(token)
		if err != nil {
			return err
		}
		return b.Put([]byte(token.TokenHash), data)
	})
}

func (s *BoltStore) GetBetaTokenByHash(hash string) (*types.BetaToken, error) {
	var token types.BetaToken
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBetaTokens).Get([]byte(hash))
		if data == nil {
			return fmt.Errorf("beta token: %w", ErrNotFound)
		}
		return json.Unmarshal(data, &token)
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *BoltStore) UpdateBetaToken(token *types.BetaToken) error {
	return s.CreateBetaToken(token) // Same as create (upsert)
}

// helpers

func deletePrefix(b *bolt.Bucket, prefix []byte) error {
	c := b.Cursor()
	var keys [][]byte
	for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func basename(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

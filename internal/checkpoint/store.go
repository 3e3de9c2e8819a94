package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lamim/inqsweep/pkg/models"
)

const (
	CheckpointFilename = "checkpoint.json"

	redisKeyPrefix = "inqsweep:checkpoint:"
)

// ErrNotFound is returned when no checkpoint has been stored for a session.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists the checkpoint of one session.
type Store interface {
	Save(ctx context.Context, cp *models.Checkpoint) error
	Load(ctx context.Context) (*models.Checkpoint, error)
	// Delete removes the stored checkpoint. A missing checkpoint is not an error.
	Delete(ctx context.Context) error
	// Location describes where the checkpoint lives, for logs.
	Location() string
}

// FileStore keeps checkpoint.json inside the session directory.
type FileStore struct {
	sessionDir string
	mu         sync.Mutex // Protects concurrent disk writes
}

// NewFileStore returns a store rooted at sessionDir
func NewFileStore(sessionDir string) *FileStore {
	return &FileStore{sessionDir: sessionDir}
}

func (s *FileStore) path() string {
	return filepath.Join(s.sessionDir, CheckpointFilename)
}

func (s *FileStore) Location() string {
	return s.path()
}

// Save writes atomically: temp file, then rename
func (s *FileStore) Save(_ context.Context, cp *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	checkpointPath := s.path()
	tempPath := checkpointPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}

	if err := os.Rename(tempPath, checkpointPath); err != nil {
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}

	return nil
}

func (s *FileStore) Load(_ context.Context) (*models.Checkpoint, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path())
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Delete removes checkpoint.json; the rest of the session directory is kept
func (s *FileStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// redisClient is the subset of *redis.Client used by RedisStore.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// RedisStore keeps the checkpoint under inqsweep:checkpoint:<session>.
// Keys expire after ttl so abandoned sweeps don't accumulate.
type RedisStore struct {
	client  redisClient
	session string
	ttl     time.Duration
}

// NewRedisStore returns a store for the named session
func NewRedisStore(client redisClient, session string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:  client,
		session: session,
		ttl:     ttl,
	}
}

func (s *RedisStore) key() string {
	return redisKeyPrefix + s.session
}

func (s *RedisStore) Location() string {
	return "redis:" + s.key()
}

func (s *RedisStore) Save(ctx context.Context, cp *models.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := s.client.Set(ctx, s.key(), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (*models.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.key())
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// ListRedisSessions returns every session name that has a stored checkpoint
func ListRedisSessions(ctx context.Context, client redisClient) ([]string, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	sessions := make([]string, 0, len(keys))
	for _, key := range keys {
		if name := strings.TrimPrefix(key, redisKeyPrefix); name != "" && name != key {
			sessions = append(sessions, name)
		}
	}
	return sessions, nil
}

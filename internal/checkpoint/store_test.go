package checkpoint

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/lamim/inqsweep/pkg/models"
)

// fakeRedis is an in-memory redisClient.
type fakeRedis struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	default:
		return redis.NewStatusResult("", errors.New("unsupported value type"))
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// Scan returns everything matching a trailing-* pattern in one page.
func (f *fakeRedis) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return redis.NewScanCmdResult(keys, 0, nil)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	store := NewRedisStore(client, "session_2026-01-02T03-04-05", time.Hour)

	if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() on empty store error = %v, want ErrNotFound", err)
	}

	cp := &models.Checkpoint{
		SessionID:      "abc",
		CurrentPhase:   models.PhaseKSpacing,
		CutoffComplete: true,
		FinishedTrials: map[models.TrialLabel]models.TrialStatus{"cutoff_8_Ha": models.TrialSucceeded},
		ConfigHash:     "deadbeef",
	}
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got := client.ttls["inqsweep:checkpoint:session_2026-01-02T03-04-05"]; got != time.Hour {
		t.Errorf("TTL = %v, want 1h", got)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(cp, loaded); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	other := NewRedisStore(client, "session_2026-01-03T00-00-00", time.Hour)
	if err := other.Save(ctx, &models.Checkpoint{SessionID: "def"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	sessions, err := ListRedisSessions(ctx, client)
	if err != nil {
		t.Fatalf("ListRedisSessions() error = %v", err)
	}
	want := []string{"session_2026-01-02T03-04-05", "session_2026-01-03T00-00-00"}
	if diff := cmp.Diff(want, sessions); diff != "" {
		t.Errorf("ListRedisSessions() mismatch (-want +got):\n%s", diff)
	}

	if err := store.Delete(ctx); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after Delete error = %v, want ErrNotFound", err)
	}
}

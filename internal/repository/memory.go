package repository

import (
	"context"
	"sync"
	"time"

	"github.com/example/companion-bot/internal/model"
)

// MemoryStore keeps everything in process memory. It backs tests and
// token-less local runs; state is lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]*model.User
	messages map[string][]*model.Message
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:    map[string]*model.User{},
		messages: map[string][]*model.Message{},
	}
}

func key(platform, platformUserID string) string {
	return platform + ":" + platformUserID
}

func (s *MemoryStore) Get(ctx context.Context, platform, platformUserID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[key(platform, platformUserID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.Key()] = &cp
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, platform, platformUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(platform, platformUserID)
	delete(s.users, k)
	delete(s.messages, k)
	return nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, platform, platformUserID string, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(platform, platformUserID)
	cp := *m
	s.messages[k] = append(s.messages[k], &cp)
	return nil
}

func (s *MemoryStore) RecentMessages(ctx context.Context, platform, platformUserID string, limit int) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.messages[key(platform, platformUserID)]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*model.Message, 0, len(all))
	for _, m := range all {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) ConsumeQuota(ctx context.Context, platform, platformUserID, localDate string, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[key(platform, platformUserID)]
	if !ok {
		return false, ErrNotFound
	}
	if u.CountWindowStart != localDate {
		u.DailyMessageCount = 0
		u.CountWindowStart = localDate
	}
	if u.DailyMessageCount >= limit {
		return false, nil
	}
	u.DailyMessageCount++
	return true, nil
}

func (s *MemoryStore) ListDue(ctx context.Context, now time.Time) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.User
	for _, u := range s.users {
		if u.State != model.StateActive || u.Unreachable || u.NextContactAt == nil {
			continue
		}
		if u.NextContactAt.After(now) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

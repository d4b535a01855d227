package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps users, subscriptions and watch history in process. It
// has the same semantics as the Postgres repositories, including the
// uniqueness constraints and the refresh token compare-and-swap, and backs
// DB_DRIVER=memory as well as tests.
type MemoryStore struct {
	hasher Hasher

	mu      sync.RWMutex
	users   map[uuid.UUID]*User
	subs    map[[2]uuid.UUID]time.Time // subscriber, channel
	history map[uuid.UUID][]WatchedVideo
}

func NewMemoryStore(hasher Hasher) *MemoryStore {
	return &MemoryStore{
		hasher:  hasher,
		users:   make(map[uuid.UUID]*User),
		subs:    make(map[[2]uuid.UUID]time.Time),
		history: make(map[uuid.UUID][]WatchedVideo),
	}
}

func (m *MemoryStore) Create(_ context.Context, in *NewUser) (uuid.UUID, error) {
	hash, err := m.hasher.Hash(in.Password)
	if err != nil {
		return uuid.Nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conflictLocked(uuid.Nil, in.Username, in.Email) {
		return uuid.Nil, ErrUserExists
	}

	now := time.Now().UTC()
	u := &User{
		ID:           uuid.New(),
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: hash,
		Avatar:       in.Avatar,
		CoverImage:   in.CoverImage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[u.ID] = u
	return u.ID, nil
}

func (m *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *MemoryStore) FindPublicByID(_ context.Context, id uuid.UUID) (*PublicUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Public(), nil
}

func (m *MemoryStore) FindByLogin(_ context.Context, username, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var byEmail *User
	for _, u := range m.users {
		if username != "" && u.Username == username {
			return cloneUser(u), nil
		}
		if email != "" && u.Email == email {
			byEmail = u
		}
	}
	if byEmail != nil {
		return cloneUser(byEmail), nil
	}
	return nil, ErrUserNotFound
}

func (m *MemoryStore) FindByUsername(_ context.Context, username string) (*PublicUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			return u.Public(), nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemoryStore) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conflictLocked(uuid.Nil, username, email), nil
}

func (m *MemoryStore) UpdatePassword(_ context.Context, id uuid.UUID, plaintext string) error {
	hash, err := m.hasher.Hash(plaintext)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) UpdateProfile(_ context.Context, id uuid.UUID, p ProfileUpdate) (*PublicUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	if m.conflictLocked(id, p.Username, p.Email) {
		return nil, ErrUserExists
	}
	u.FullName = p.FullName
	u.Username = p.Username
	if p.Email != "" {
		u.Email = p.Email
	}
	u.UpdatedAt = time.Now().UTC()
	return u.Public(), nil
}

func (m *MemoryStore) UpdateAvatar(_ context.Context, id uuid.UUID, url string) (*PublicUser, error) {
	return m.update(id, func(u *User) { u.Avatar = url })
}

func (m *MemoryStore) UpdateCoverImage(_ context.Context, id uuid.UUID, url string) (*PublicUser, error) {
	return m.update(id, func(u *User) { u.CoverImage = url })
}

func (m *MemoryStore) SetRefreshToken(_ context.Context, id uuid.UUID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.RefreshToken = &token
	return nil
}

func (m *MemoryStore) SwapRefreshToken(_ context.Context, id uuid.UUID, expected, next string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok || !u.HasRefreshToken(expected) {
		return false, nil
	}
	u.RefreshToken = &next
	return true, nil
}

func (m *MemoryStore) ClearRefreshToken(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[id]; ok {
		u.RefreshToken = nil
	}
	return nil
}

func (m *MemoryStore) Subscribe(_ context.Context, subscriberID, channelID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := [2]uuid.UUID{subscriberID, channelID}
	if _, ok := m.subs[key]; !ok {
		m.subs[key] = time.Now().UTC()
	}
	return nil
}

func (m *MemoryStore) CountSubscribers(_ context.Context, channelID uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for key := range m.subs {
		if key[1] == channelID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountSubscriptions(_ context.Context, subscriberID uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for key := range m.subs {
		if key[0] == subscriberID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) IsSubscribed(_ context.Context, channelID, subscriberID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.subs[[2]uuid.UUID{subscriberID, channelID}]
	return ok, nil
}

// RecordWatch appends v to the user's history.
func (m *MemoryStore) RecordWatch(userID uuid.UUID, v WatchedVideo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[userID] = append(m.history[userID], v)
}

func (m *MemoryStore) WatchHistory(_ context.Context, userID uuid.UUID) ([]WatchedVideo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := append([]WatchedVideo{}, m.history[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].WatchedAt.After(out[j].WatchedAt) })
	return out, nil
}

func (m *MemoryStore) update(id uuid.UUID, fn func(*User)) (*PublicUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return u.Public(), nil
}

// conflictLocked reports whether another user than self holds username or
// email. Callers hold mu.
func (m *MemoryStore) conflictLocked(self uuid.UUID, username, email string) bool {
	for id, u := range m.users {
		if id == self {
			continue
		}
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			return true
		}
	}
	return false
}

func cloneUser(u *User) *User {
	c := *u
	if u.RefreshToken != nil {
		t := *u.RefreshToken
		c.RefreshToken = &t
	}
	return &c
}

package account

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidtube/accounts/internal/db"
	"github.com/vidtube/accounts/internal/media"
	"github.com/vidtube/accounts/internal/validate"
)

// fakeMedia hands out URLs for uploads, failing for fields listed in fail.
type fakeMedia struct {
	mu       sync.Mutex
	fail     map[string]bool
	empty    bool
	uploaded []string
}

func (m *fakeMedia) Upload(_ context.Context, f *media.File) (string, error) {
	if !f.Present() {
		return "", media.ErrNoFile
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[f.Field] {
		return "", errors.New("storage unavailable")
	}
	if m.empty {
		return "", nil
	}
	m.uploaded = append(m.uploaded, f.Field)
	return "http://media.local/" + f.Field + "/" + filepath.Base(f.Path), nil
}

func (m *fakeMedia) Ping(context.Context) error { return nil }

type memoryStats struct {
	mu   sync.Mutex
	data map[string]ChannelStats
	hits int
}

func (c *memoryStats) GetJSON(_ context.Context, key string, dst any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if ok {
		c.hits++
		*dst.(*ChannelStats) = v
	}
	return ok
}

func (c *memoryStats) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = *v.(*ChannelStats)
	return nil
}

func newService(t *testing.T, m *fakeMedia) (*Service, *db.MemoryStore) {
	t.Helper()
	store := db.NewMemoryStore(db.NewHasher(bcrypt.MinCost))
	stores := Stores{Users: store, Subscriptions: store, History: store}
	return NewService(stores, m, nil, 0), store
}

func tempFile(t *testing.T, field string) *media.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), field+".png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o600))
	return &media.File{Field: field, Path: path, Filename: field + ".png"}
}

func validInput(t *testing.T) RegisterInput {
	return RegisterInput{
		FullName: "Alice Liddell",
		Email:    "Alice@X.com",
		Username: " Alice ",
		Password: "correct horse",
		Avatar:   tempFile(t, "avatar"),
	}
}

func TestRegister_Success(t *testing.T) {
	m := &fakeMedia{}
	svc, store := newService(t, m)
	ctx := context.Background()

	in := validInput(t)
	in.CoverImage = tempFile(t, "coverImage")

	user, err := svc.Register(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@x.com", user.Email)
	assert.Contains(t, user.Avatar, "http://media.local/avatar/")
	assert.Contains(t, user.CoverImage, "http://media.local/coverImage/")

	stored, err := store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", stored.PasswordHash)
	assert.True(t, stored.CheckPassword("correct horse"))
	assert.Nil(t, stored.RefreshToken)
}

func TestRegister_CoverFailureIsTolerated(t *testing.T) {
	svc, _ := newService(t, &fakeMedia{fail: map[string]bool{"coverImage": true}})

	in := validInput(t)
	in.CoverImage = tempFile(t, "coverImage")

	user, err := svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, user.CoverImage)
	assert.NotEmpty(t, user.Avatar)
}

func TestRegister_Failures(t *testing.T) {
	tests := []struct {
		name    string
		media   *fakeMedia
		mutate  func(in *RegisterInput)
		wantErr error
	}{
		{"blank full name", &fakeMedia{}, func(in *RegisterInput) { in.FullName = "   " }, nil},
		{"blank password", &fakeMedia{}, func(in *RegisterInput) { in.Password = " " }, nil},
		{"bad email", &fakeMedia{}, func(in *RegisterInput) { in.Email = "alice" }, nil},
		{"email too long", &fakeMedia{}, func(in *RegisterInput) { in.Email = "alice@" + strings.Repeat(strings.Repeat("b", 63)+".", 4) + "com" }, nil},
		{"password over 72 bytes", &fakeMedia{}, func(in *RegisterInput) { in.Password = strings.Repeat("é", 37) }, nil},
		{"no avatar", &fakeMedia{}, func(in *RegisterInput) { in.Avatar = nil }, ErrAvatarRequired},
		{"avatar upload fails", &fakeMedia{fail: map[string]bool{"avatar": true}}, func(in *RegisterInput) {}, ErrUploadFailed},
		{"avatar upload returns no url", &fakeMedia{empty: true}, func(in *RegisterInput) {}, ErrUploadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newService(t, tt.media)
			in := validInput(t)
			tt.mutate(&in)

			_, err := svc.Register(context.Background(), in)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				var verr *validate.Error
				assert.ErrorAs(t, err, &verr)
			}

			exists, err := store.ExistsByUsernameOrEmail(context.Background(), "alice", "alice@x.com")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestRegister_LongPasswordRejectedBeforeUpload(t *testing.T) {
	m := &fakeMedia{}
	svc, _ := newService(t, m)

	in := validInput(t)
	in.Password = strings.Repeat("p", 73)
	_, err := svc.Register(context.Background(), in)

	var verr *validate.Error
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Details(), "password")
	assert.Empty(t, m.uploaded)
}

func TestRegister_DuplicateIsConflictWithoutSideEffects(t *testing.T) {
	m := &fakeMedia{}
	svc, store := newService(t, m)
	ctx := context.Background()

	first, err := svc.Register(ctx, validInput(t))
	require.NoError(t, err)

	dupUsername := validInput(t)
	dupUsername.Email = "other@x.com"
	_, err = svc.Register(ctx, dupUsername)
	assert.ErrorIs(t, err, db.ErrUserExists)

	dupEmail := validInput(t)
	dupEmail.Username = "other"
	_, err = svc.Register(ctx, dupEmail)
	assert.ErrorIs(t, err, db.ErrUserExists)

	// Conflicts are caught before anything is uploaded.
	assert.Len(t, m.uploaded, 1)

	_, err = store.FindByUsername(ctx, "other")
	assert.ErrorIs(t, err, db.ErrUserNotFound)
	u, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, u.ID)
}

func register(t *testing.T, svc *Service) uuid.UUID {
	t.Helper()
	u, err := svc.Register(context.Background(), validInput(t))
	require.NoError(t, err)
	return u.ID
}

func TestChangePassword(t *testing.T) {
	svc, store := newService(t, &fakeMedia{})
	ctx := context.Background()
	id := register(t, svc)

	before, err := store.FindByID(ctx, id)
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, id, ChangePasswordInput{OldPassword: "wrong", NewPassword: "new pass"})
	assert.ErrorIs(t, err, ErrWrongPassword)
	after, err := store.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)

	var verr *validate.Error
	assert.ErrorAs(t, svc.ChangePassword(ctx, id, ChangePasswordInput{OldPassword: "correct horse"}), &verr)

	err = svc.ChangePassword(ctx, id, ChangePasswordInput{OldPassword: "correct horse", NewPassword: strings.Repeat("p", 73)})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Details(), "newPassword")
	after, err = store.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)

	assert.ErrorIs(t, svc.ChangePassword(ctx, uuid.New(), ChangePasswordInput{OldPassword: "a", NewPassword: "b"}), db.ErrUserNotFound)

	require.NoError(t, svc.ChangePassword(ctx, id, ChangePasswordInput{OldPassword: "correct horse", NewPassword: "new pass"}))
	after, err = store.FindByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, after.CheckPassword("new pass"))
	assert.False(t, after.CheckPassword("correct horse"))
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newService(t, &fakeMedia{})
	ctx := context.Background()
	id := register(t, svc)

	u, err := svc.UpdateProfile(ctx, id, ProfileInput{FullName: " Alice L ", Username: "AliceL"})
	require.NoError(t, err)
	assert.Equal(t, "Alice L", u.FullName)
	assert.Equal(t, "alicel", u.Username)
	assert.Equal(t, "alice@x.com", u.Email)

	var verr *validate.Error
	_, err = svc.UpdateProfile(ctx, id, ProfileInput{FullName: "", Username: "x"})
	assert.ErrorAs(t, err, &verr)

	other, err := svc.Register(ctx, RegisterInput{
		FullName: "Bob", Email: "bob@x.com", Username: "bob", Password: "pw", Avatar: tempFile(t, "avatar"),
	})
	require.NoError(t, err)
	_, err = svc.UpdateProfile(ctx, other.ID, ProfileInput{FullName: "Bob", Username: "alicel"})
	assert.ErrorIs(t, err, db.ErrUserExists)
}

func TestUpdateImages(t *testing.T) {
	m := &fakeMedia{}
	svc, _ := newService(t, m)
	ctx := context.Background()
	id := register(t, svc)

	_, err := svc.UpdateAvatar(ctx, id, nil)
	assert.ErrorIs(t, err, ErrFileRequired)
	_, err = svc.UpdateCoverImage(ctx, id, &media.File{Field: "coverImage"})
	assert.ErrorIs(t, err, ErrFileRequired)

	u, err := svc.UpdateCoverImage(ctx, id, tempFile(t, "coverImage"))
	require.NoError(t, err)
	assert.Contains(t, u.CoverImage, "http://media.local/coverImage/")

	m.fail = map[string]bool{"avatar": true}
	_, err = svc.UpdateAvatar(ctx, id, tempFile(t, "avatar"))
	assert.ErrorIs(t, err, ErrUploadFailed)
}

func TestChannelProfile(t *testing.T) {
	store := db.NewMemoryStore(db.NewHasher(bcrypt.MinCost))
	stats := &memoryStats{data: map[string]ChannelStats{}}
	svc := NewService(Stores{Users: store, Subscriptions: store, History: store}, &fakeMedia{}, stats, time.Minute)
	ctx := context.Background()

	alice := register(t, svc)
	bob, err := svc.Register(ctx, RegisterInput{
		FullName: "Bob", Email: "bob@x.com", Username: "bob", Password: "pw", Avatar: tempFile(t, "avatar"),
	})
	require.NoError(t, err)
	carol, err := svc.Register(ctx, RegisterInput{
		FullName: "Carol", Email: "carol@x.com", Username: "carol", Password: "pw", Avatar: tempFile(t, "avatar"),
	})
	require.NoError(t, err)

	require.NoError(t, store.Subscribe(ctx, bob.ID, alice))
	require.NoError(t, store.Subscribe(ctx, carol.ID, alice))
	require.NoError(t, store.Subscribe(ctx, alice, bob.ID))

	ch, err := svc.ChannelProfile(ctx, "ALICE", bob.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, ch.ID)
	assert.Equal(t, int64(2), ch.SubscribersCount)
	assert.Equal(t, int64(1), ch.ChannelsSubscribedToCount)
	assert.True(t, ch.IsSubscribed)

	// Counts come from the cache the second time; the subscription flag is
	// always live.
	ch, err = svc.ChannelProfile(ctx, "alice", alice)
	require.NoError(t, err)
	assert.False(t, ch.IsSubscribed)
	assert.Equal(t, int64(2), ch.SubscribersCount)
	assert.Equal(t, 1, stats.hits)

	_, err = svc.ChannelProfile(ctx, "nobody", alice)
	assert.ErrorIs(t, err, db.ErrUserNotFound)

	var verr *validate.Error
	_, err = svc.ChannelProfile(ctx, "  ", alice)
	assert.ErrorAs(t, err, &verr)
}

func TestWatchHistory(t *testing.T) {
	svc, store := newService(t, &fakeMedia{})
	ctx := context.Background()
	id := register(t, svc)

	now := time.Now()
	store.RecordWatch(id, db.WatchedVideo{ID: uuid.New(), Title: "older", WatchedAt: now.Add(-time.Hour)})
	store.RecordWatch(id, db.WatchedVideo{ID: uuid.New(), Title: "newer", WatchedAt: now})

	history, err := svc.WatchHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "newer", history[0].Title)

	history, err = svc.WatchHistory(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, history)
}

package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionRepository_Counts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepository(db)
	channel, viewer := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM subscriptions WHERE channel_id = \$1`).
		WithArgs(channel).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM subscriptions WHERE subscriber_id = \$1`).
		WithArgs(channel).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM subscriptions WHERE channel_id = \$1 AND subscriber_id = \$2\)`).
		WithArgs(channel, viewer).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ctx := context.Background()
	subscribers, err := repo.CountSubscribers(ctx, channel)
	require.NoError(t, err)
	subscribed, err := repo.CountSubscriptions(ctx, channel)
	require.NoError(t, err)
	isSub, err := repo.IsSubscribed(ctx, channel, viewer)
	require.NoError(t, err)

	assert.EqualValues(t, 3, subscribers)
	assert.EqualValues(t, 1, subscribed)
	assert.False(t, isSub)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_Subscribe(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepository(db)
	sub, channel := uuid.New(), uuid.New()

	mock.ExpectExec(`INSERT INTO subscriptions .* ON CONFLICT \(subscriber_id, channel_id\) DO NOTHING`).
		WithArgs(sqlmock.AnyArg(), sub, channel, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Subscribe(context.Background(), sub, channel))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWatchHistoryRepository_WatchHistory(t *testing.T) {
	db, mock := newMock(t)
	repo := NewWatchHistoryRepository(db)
	user, video, owner := uuid.New(), uuid.New(), uuid.New()
	watched := time.Now()

	cols := []string{"id", "title", "thumbnail_url", "duration_seconds", "views", "owner_id", "username", "full_name", "avatar_url", "watched_at"}
	mock.ExpectQuery(`FROM watch_history h\s+JOIN videos v`).
		WithArgs(user).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(video.String(), "Intro", "http://t", 90, 12, owner.String(), "bob", "Bob", "http://b", watched))

	history, err := repo.WatchHistory(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Intro", history[0].Title)
	assert.Equal(t, "bob", history[0].Owner.Username)
}

func TestWatchHistoryRepository_Empty(t *testing.T) {
	db, mock := newMock(t)
	repo := NewWatchHistoryRepository(db)

	mock.ExpectQuery(`FROM watch_history`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	history, err := repo.WatchHistory(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

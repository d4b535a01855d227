package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SubscriptionRepository struct {
	db *DB
}

func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Subscribe is idempotent.
func (r *SubscriptionRepository) Subscribe(ctx context.Context, subscriberID, channelID uuid.UUID) error {
	query := `
		INSERT INTO subscriptions (id, subscriber_id, channel_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subscriber_id, channel_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, uuid.New(), subscriberID, channelID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) CountSubscribers(ctx context.Context, channelID uuid.UUID) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM subscriptions WHERE channel_id = $1`, channelID)
}

func (r *SubscriptionRepository) CountSubscriptions(ctx context.Context, subscriberID uuid.UUID) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = $1`, subscriberID)
}

func (r *SubscriptionRepository) IsSubscribed(ctx context.Context, channelID, subscriberID uuid.UUID) (bool, error) {
	var ok bool
	query := `SELECT EXISTS(SELECT 1 FROM subscriptions WHERE channel_id = $1 AND subscriber_id = $2)`
	if err := r.db.QueryRowContext(ctx, query, channelID, subscriberID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check subscription: %w", err)
	}
	return ok, nil
}

func (r *SubscriptionRepository) count(ctx context.Context, query string, id uuid.UUID) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}

// VideoOwner is the public slice of a video's uploader.
type VideoOwner struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	FullName string    `json:"fullName"`
	Avatar   string    `json:"avatar"`
}

// WatchedVideo is one entry of a user's watch history.
type WatchedVideo struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Thumbnail string     `json:"thumbnail"`
	Duration  int        `json:"duration"`
	Views     int64      `json:"views"`
	Owner     VideoOwner `json:"owner"`
	WatchedAt time.Time  `json:"watchedAt"`
}

type WatchHistoryRepository struct {
	db *DB
}

func NewWatchHistoryRepository(db *DB) *WatchHistoryRepository {
	return &WatchHistoryRepository{db: db}
}

// WatchHistory returns the videos a user watched, newest first.
func (r *WatchHistoryRepository) WatchHistory(ctx context.Context, userID uuid.UUID) ([]WatchedVideo, error) {
	query := `
		SELECT v.id, v.title, v.thumbnail_url, v.duration_seconds, v.views,
		       u.id, u.username, u.full_name, u.avatar_url, h.watched_at
		FROM watch_history h
		JOIN videos v ON v.id = h.video_id
		JOIN users u ON u.id = v.owner_id
		WHERE h.user_id = $1
		ORDER BY h.watched_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query watch history: %w", err)
	}
	defer rows.Close()

	history := []WatchedVideo{}
	for rows.Next() {
		var v WatchedVideo
		if err := rows.Scan(
			&v.ID, &v.Title, &v.Thumbnail, &v.Duration, &v.Views,
			&v.Owner.ID, &v.Owner.Username, &v.Owner.FullName, &v.Owner.Avatar, &v.WatchedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan watch history: %w", err)
		}
		history = append(history, v)
	}
	return history, rows.Err()
}

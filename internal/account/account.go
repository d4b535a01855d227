// Package account implements registration and the profile operations of an
// authenticated user.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidtube/accounts/internal/db"
	"github.com/vidtube/accounts/internal/logger"
	"github.com/vidtube/accounts/internal/media"
	"github.com/vidtube/accounts/internal/metrics"
	"github.com/vidtube/accounts/internal/validate"
)

var (
	ErrAvatarRequired     = errors.New("avatar file is required")
	ErrFileRequired       = errors.New("file is required")
	ErrUploadFailed       = errors.New("error while uploading file")
	ErrWrongPassword      = errors.New("invalid old password")
	ErrRegistrationFailed = errors.New("something went wrong while registering the user")
)

type UserStore interface {
	Create(ctx context.Context, in *db.NewUser) (uuid.UUID, error)
	FindByID(ctx context.Context, id uuid.UUID) (*db.User, error)
	FindPublicByID(ctx context.Context, id uuid.UUID) (*db.PublicUser, error)
	FindByUsername(ctx context.Context, username string) (*db.PublicUser, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, plaintext string) error
	UpdateProfile(ctx context.Context, id uuid.UUID, p db.ProfileUpdate) (*db.PublicUser, error)
	UpdateAvatar(ctx context.Context, id uuid.UUID, url string) (*db.PublicUser, error)
	UpdateCoverImage(ctx context.Context, id uuid.UUID, url string) (*db.PublicUser, error)
}

type SubscriptionStore interface {
	CountSubscribers(ctx context.Context, channelID uuid.UUID) (int64, error)
	CountSubscriptions(ctx context.Context, subscriberID uuid.UUID) (int64, error)
	IsSubscribed(ctx context.Context, channelID, subscriberID uuid.UUID) (bool, error)
}

type HistoryStore interface {
	WatchHistory(ctx context.Context, userID uuid.UUID) ([]db.WatchedVideo, error)
}

// StatsCache caches channel counts. Satisfied by *cache.Cache.
type StatsCache interface {
	GetJSON(ctx context.Context, key string, dst any) bool
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

type RegisterInput struct {
	FullName   string      `json:"fullName" validate:"required,max=255"`
	Email      string      `json:"email" validate:"required,email,max=255"`
	Username   string      `json:"username" validate:"required,max=64"`
	Password   string      `json:"password" validate:"required,maxbytes=72"`
	Avatar     *media.File `json:"-"`
	CoverImage *media.File `json:"-"`
}

type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,maxbytes=72"`
}

type ProfileInput struct {
	FullName string `json:"fullName" validate:"required,max=255"`
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"omitempty,email,max=255"`
}

// ChannelStats are the subscription counts of a channel.
type ChannelStats struct {
	SubscribersCount          int64 `json:"subscribersCount"`
	ChannelsSubscribedToCount int64 `json:"channelsSubscribedToCount"`
}

// Channel is the public profile of a user as seen by another user.
type Channel struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	FullName   string    `json:"fullName"`
	Email      string    `json:"email"`
	Avatar     string    `json:"avatar"`
	CoverImage string    `json:"coverImage"`
	ChannelStats
	IsSubscribed bool `json:"isSubscribed"`
}

// Stores groups the collaborators of Service.
type Stores struct {
	Users         UserStore
	Subscriptions SubscriptionStore
	History       HistoryStore
}

type Service struct {
	users    UserStore
	subs     SubscriptionStore
	history  HistoryStore
	media    media.Store
	stats    StatsCache
	statsTTL time.Duration
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewService builds the account service. stats may be nil to disable
// caching of channel counts.
func NewService(stores Stores, mediaStore media.Store, stats StatsCache, statsTTL time.Duration) *Service {
	return &Service{
		users:    stores.Users,
		subs:     stores.Subscriptions,
		history:  stores.History,
		media:    mediaStore,
		stats:    stats,
		statsTTL: statsTTL,
		metrics:  metrics.Default(),
		log:      logger.Default().WithComponent("account"),
	}
}

// Register creates a user after uploading the avatar and, if given, the
// cover image. It returns the stored record without credentials.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*db.PublicUser, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = validate.Email(in.Email)
	in.Username = validate.Username(in.Username)
	if strings.TrimSpace(in.Password) == "" {
		in.Password = ""
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, db.ErrUserExists
	}

	if !in.Avatar.Present() {
		return nil, ErrAvatarRequired
	}

	avatarURL, err := s.upload(ctx, in.Avatar)
	if err != nil {
		return nil, err
	}

	coverURL := ""
	if in.CoverImage.Present() {
		if coverURL, err = s.upload(ctx, in.CoverImage); err != nil {
			s.log.Warn(ctx, "cover image upload failed, continuing without it", map[string]any{"error": err.Error()})
			coverURL = ""
		}
	}

	id, err := s.users.Create(ctx, &db.NewUser{
		Username:   in.Username,
		Email:      in.Email,
		FullName:   in.FullName,
		Password:   in.Password,
		Avatar:     avatarURL,
		CoverImage: coverURL,
	})
	if err != nil {
		return nil, err
	}

	created, err := s.users.FindPublicByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, ErrRegistrationFailed
		}
		return nil, err
	}

	s.metrics.IncCounter(metrics.CounterRegistrations)
	s.log.Info(ctx, "user registered", map[string]any{"user_id": id.String()})
	return created, nil
}

// ChangePassword replaces the password after checking the old one. A wrong
// old password leaves the stored hash untouched.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, in ChangePasswordInput) error {
	if err := validate.Struct(in); err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.CheckPassword(in.OldPassword) {
		return ErrWrongPassword
	}

	if err := s.users.UpdatePassword(ctx, userID, in.NewPassword); err != nil {
		return err
	}
	s.log.Info(ctx, "password changed", map[string]any{"user_id": userID.String()})
	return nil
}

// UpdateProfile sets the full name and username, and the email if given.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileInput) (*db.PublicUser, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Username = validate.Username(in.Username)
	in.Email = validate.Email(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	return s.users.UpdateProfile(ctx, userID, db.ProfileUpdate{
		FullName: in.FullName,
		Username: in.Username,
		Email:    in.Email,
	})
}

// UpdateAvatar uploads f and points the user's avatar at it. The previous
// object is left in storage.
func (s *Service) UpdateAvatar(ctx context.Context, userID uuid.UUID, f *media.File) (*db.PublicUser, error) {
	if !f.Present() {
		return nil, ErrFileRequired
	}
	url, err := s.upload(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.users.UpdateAvatar(ctx, userID, url)
}

// UpdateCoverImage is UpdateAvatar for the cover image.
func (s *Service) UpdateCoverImage(ctx context.Context, userID uuid.UUID, f *media.File) (*db.PublicUser, error) {
	if !f.Present() {
		return nil, ErrFileRequired
	}
	url, err := s.upload(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.users.UpdateCoverImage(ctx, userID, url)
}

// CurrentUser re-reads the user without credentials.
func (s *Service) CurrentUser(ctx context.Context, userID uuid.UUID) (*db.PublicUser, error) {
	return s.users.FindPublicByID(ctx, userID)
}

// ChannelProfile returns the channel of username with its subscription
// counts and whether requesterID subscribes to it.
func (s *Service) ChannelProfile(ctx context.Context, username string, requesterID uuid.UUID) (*Channel, error) {
	username = validate.Username(username)
	if username == "" {
		return nil, validate.Field("username", "is missing")
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	stats, err := s.channelStats(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	subscribed, err := s.subs.IsSubscribed(ctx, user.ID, requesterID)
	if err != nil {
		return nil, err
	}

	return &Channel{
		ID:           user.ID,
		Username:     user.Username,
		FullName:     user.FullName,
		Email:        user.Email,
		Avatar:       user.Avatar,
		CoverImage:   user.CoverImage,
		ChannelStats: *stats,
		IsSubscribed: subscribed,
	}, nil
}

// WatchHistory lists the videos the user watched, newest first.
func (s *Service) WatchHistory(ctx context.Context, userID uuid.UUID) ([]db.WatchedVideo, error) {
	return s.history.WatchHistory(ctx, userID)
}

func statsKey(channelID uuid.UUID) string {
	return "channel:stats:" + channelID.String()
}

func (s *Service) channelStats(ctx context.Context, channelID uuid.UUID) (*ChannelStats, error) {
	var stats ChannelStats
	if s.stats != nil && s.stats.GetJSON(ctx, statsKey(channelID), &stats) {
		return &stats, nil
	}

	var err error
	if stats.SubscribersCount, err = s.subs.CountSubscribers(ctx, channelID); err != nil {
		return nil, err
	}
	if stats.ChannelsSubscribedToCount, err = s.subs.CountSubscriptions(ctx, channelID); err != nil {
		return nil, err
	}

	if s.stats != nil && s.statsTTL > 0 {
		// A failed write only costs a recount.
		_ = s.stats.SetJSON(ctx, statsKey(channelID), &stats, s.statsTTL)
	}
	return &stats, nil
}

func (s *Service) upload(ctx context.Context, f *media.File) (string, error) {
	url, err := s.media.Upload(ctx, f)
	if err != nil {
		s.log.Error(ctx, "media upload failed", err, map[string]any{"field": f.Field})
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	if url == "" {
		return "", ErrUploadFailed
	}
	return url, nil
}

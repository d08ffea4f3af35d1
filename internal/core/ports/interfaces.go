package ports

import (
	"context"
	"forgery-sim/internal/core/domain"
	"time"
)

// Analyzer is the boundary to the external generative forensics service.
type Analyzer interface {
	// AnalyzeForgery compares the original post image with a candidate upload.
	// original is the stored ImageURL (data URI or remote URL).
	AnalyzeForgery(ctx context.Context, original string, candidate domain.Image) (domain.ForgeryAnalysis, error)
}

// Feed is the in-memory entity store behind the demo feed.
type Feed interface {
	Users() []domain.User
	User(id int) (domain.User, bool)

	Posts() []domain.Post
	Post(id string) (domain.Post, bool)
	LatestPostBy(userID int) (domain.Post, bool)
	AppendPost(post domain.Post) domain.Post

	Notifications() []domain.Notification
	AppendNotification(n domain.Notification)
	MarkNotificationRead(id string) (domain.Notification, bool)
	ClearNotifications()

	// Reset restores the seed posts and drops all notifications.
	Reset()
}

// Clock supplies creation timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

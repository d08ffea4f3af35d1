package storage

import (
	"forgery-sim/internal/core/domain"
	"forgery-sim/internal/core/ports"
	"sync"
	"time"
)

// MemoryStorage keeps users, posts and notifications in process memory.
// Nothing survives a restart.
type MemoryStorage struct {
	mu            sync.RWMutex
	users         []domain.User
	seed          []domain.Post
	posts         []domain.Post
	notifications []domain.Notification
	lastCreated   time.Time
}

func NewMemoryStorage(users []domain.User, seed []domain.Post) *MemoryStorage {
	s := &MemoryStorage{
		users: append([]domain.User(nil), users...),
		seed:  clonePosts(seed),
	}
	s.resetLocked()
	return s
}

var _ ports.Feed = (*MemoryStorage)(nil)

func (s *MemoryStorage) Users() []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.User(nil), s.users...)
}

func (s *MemoryStorage) User(id int) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return domain.User{}, false
}

func (s *MemoryStorage) Posts() []domain.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePosts(s.posts)
}

func (s *MemoryStorage) Post(id string) (domain.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return domain.Post{}, false
}

// LatestPostBy returns the user's post with the greatest CreatedAt.
// Ties go to the post appended last.
func (s *MemoryStorage) LatestPostBy(userID int) (domain.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		latest domain.Post
		found  bool
	)
	for _, p := range s.posts {
		if p.UserID != userID {
			continue
		}
		if !found || !p.CreatedAt.Before(latest.CreatedAt) {
			latest, found = p, true
		}
	}
	return latest.Clone(), found
}

// AppendPost stores a copy of post. CreatedAt is bumped when needed so that
// appended posts are strictly increasing in time.
func (s *MemoryStorage) AppendPost(post domain.Post) domain.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !post.CreatedAt.After(s.lastCreated) {
		post.CreatedAt = s.lastCreated.Add(time.Nanosecond)
	}
	s.lastCreated = post.CreatedAt
	post = post.Clone()
	s.posts = append(s.posts, post)
	return post.Clone()
}

func (s *MemoryStorage) Notifications() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Notification(nil), s.notifications...)
}

func (s *MemoryStorage) AppendNotification(n domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
}

func (s *MemoryStorage) MarkNotificationRead(id string) (domain.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].Read = true
			return s.notifications[i], true
		}
	}
	return domain.Notification{}, false
}

func (s *MemoryStorage) ClearNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = nil
}

func (s *MemoryStorage) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *MemoryStorage) resetLocked() {
	s.posts = clonePosts(s.seed)
	s.notifications = nil
	s.lastCreated = time.Time{}
	for _, p := range s.posts {
		if p.CreatedAt.After(s.lastCreated) {
			s.lastCreated = p.CreatedAt
		}
	}
}

func clonePosts(in []domain.Post) []domain.Post {
	if in == nil {
		return nil
	}
	out := make([]domain.Post, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

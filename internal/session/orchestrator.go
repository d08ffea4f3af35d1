package session

import (
	"context"
	"fmt"
	"forgery-sim/internal/core/domain"
	"forgery-sim/internal/imaging"
	"forgery-sim/internal/scenario"
	"strings"

	"go.uber.org/zap"
)

// TamperOutcome is what a successful tamper submission added to the feed.
type TamperOutcome struct {
	Post         domain.Post
	Notification domain.Notification
}

// UploadResult describes how an upload was recorded.
type UploadResult struct {
	Post         domain.Post
	Notification *domain.Notification // set only for tamper uploads
	Stage        domain.ScenarioStage
}

func (r UploadResult) Tampered() bool { return r.Notification != nil }

// Upload is the presenter's single entry point for a new image from the
// active user. While the scenario waits for the second actor's tamper
// upload, that actor's image goes through analysis; anything else is an
// ordinary post.
func (s *Session) Upload(ctx context.Context, img domain.Image, caption string) (UploadResult, error) {
	if strings.TrimSpace(caption) == "" {
		return UploadResult{}, domain.ErrEmptyCaption
	}

	s.mu.Lock()
	actor := s.active.ID
	tamper := s.machine.Expects(scenario.EventTamperAnalyzed, actor)
	s.mu.Unlock()

	if tamper {
		out, err := s.SubmitTamperedImage(ctx, actor, img, caption)
		if err != nil {
			return UploadResult{}, err
		}
		n := out.Notification
		return UploadResult{Post: out.Post, Notification: &n, Stage: s.Stage()}, nil
	}

	post, err := s.CreatePost(actor, img, caption)
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{Post: post, Stage: s.Stage()}, nil
}

// SubmitTamperedImage runs the forgery analysis of img against the first
// actor's most recent post and records the tampered post and its
// notification. On any failure the feed and scenario are left untouched.
func (s *Session) SubmitTamperedImage(ctx context.Context, actorID int, img domain.Image, caption string) (TamperOutcome, error) {
	if !s.inflight.TryAcquire(1) {
		return TamperOutcome{}, domain.ErrBusy
	}
	s.busy.Store(true)
	defer func() {
		s.busy.Store(false)
		s.inflight.Release(1)
	}()

	original, err := s.eligibleOriginal(actorID)
	if err != nil {
		return TamperOutcome{}, err
	}

	log := s.logger.With(zap.String("original_post", original.ID), zap.Int("actor", actorID))
	log.Info("Analyzing forgery...")

	analysis, err := s.analyzer.AnalyzeForgery(ctx, original.ImageURL, img)
	if err == nil {
		err = analysis.Validate()
	}
	if err != nil {
		log.Warn("forgery analysis failed", zap.Error(err))
		return TamperOutcome{}, &domain.AnalysisError{Cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A reset may have landed while the analysis was in flight.
	if st := s.machine.Stage(); st != domain.StageAwaitingTamperUpload {
		return TamperOutcome{}, fmt.Errorf("%w: scenario moved to %s during analysis", domain.ErrMissingOriginalPost, st)
	}
	if _, ok := s.feed.Post(original.ID); !ok {
		return TamperOutcome{}, fmt.Errorf("%w: %s was removed during analysis", domain.ErrMissingOriginalPost, original.ID)
	}

	a := analysis
	post := s.feed.AppendPost(domain.Post{
		ID:             s.newID("post_tampered"),
		UserID:         actorID,
		ImageURL:       imaging.DataURI(img),
		Caption:        caption,
		CreatedAt:      s.clock.Now(),
		IsTampered:     true,
		OriginalPostID: original.ID,
		Analysis:       &a,
	})
	n := domain.Notification{
		ID:        s.newID("notif"),
		Message:   fmt.Sprintf("%s posted a tampered version of your image.", s.second.Name),
		PostID:    post.ID,
		CreatedAt: post.CreatedAt,
	}
	s.feed.AppendNotification(n)
	s.fireLocked(scenario.EventTamperAnalyzed, actorID)

	log.Info("tampered post recorded", zap.String("post", post.ID), zap.String("notification", n.ID))
	return TamperOutcome{Post: post, Notification: n}, nil
}

func (s *Session) eligibleOriginal(actorID int) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if actorID != s.second.ID {
		return domain.Post{}, fmt.Errorf("%w: user %d", domain.ErrActorMismatch, actorID)
	}
	if st := s.machine.Stage(); st != domain.StageAwaitingTamperUpload {
		return domain.Post{}, fmt.Errorf("%w: scenario is %s", domain.ErrMissingOriginalPost, st)
	}
	original, ok := s.feed.LatestPostBy(s.first.ID)
	if !ok {
		return domain.Post{}, fmt.Errorf("%w: %s has no posts", domain.ErrMissingOriginalPost, s.first.Name)
	}
	return original, nil
}

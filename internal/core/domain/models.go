package domain

import "time"

// Scenario actors. The demo always runs with exactly these two users.
const (
	FirstActorID  = 1
	SecondActorID = 2
)

// User is a seeded participant of the demo feed.
type User struct {
	ID     int
	Name   string
	Avatar string
}

// FirstName returns the leading word of the display name, used for feed titles.
func (u User) FirstName() string {
	for i, r := range u.Name {
		if r == ' ' {
			return u.Name[:i]
		}
	}
	return u.Name
}

// Post represents an image post in the feed.
type Post struct {
	ID        string
	UserID    int
	ImageURL  string // data URI or remote URL
	Caption   string
	CreatedAt time.Time

	IsTampered     bool
	OriginalPostID string           // set iff IsTampered
	Analysis       *ForgeryAnalysis // attached iff a tamper analysis ran
}

// Clone returns a copy that shares no mutable state with p.
func (p Post) Clone() Post {
	if p.Analysis != nil {
		a := *p.Analysis
		p.Analysis = &a
	}
	return p
}

// Notification tells the original poster that a tampered copy was detected.
type Notification struct {
	ID        string
	Message   string
	PostID    string // ID of the tampered post
	Read      bool
	CreatedAt time.Time
}

// ForgeryAnalysis is the four-phase narrative returned by the analysis service.
type ForgeryAnalysis struct {
	Vaccinator string `json:"vaccinator"`
	Detector   string `json:"detector"`
	Recovery   string `json:"recovery"`
	Assurance  string `json:"assurance"`
}

// Image is an uploaded picture ready to be stored or sent to the analyzer.
type Image struct {
	MIMEType string
	Data     []byte
}

// ScenarioStage is the active step of the scripted two-actor demo.
type ScenarioStage string

const (
	StageAwaitingOriginalPost      ScenarioStage = "awaiting_alice_post"
	StageAwaitingTamperUpload      ScenarioStage = "awaiting_bob_tamper"
	StageAwaitingNotificationCheck ScenarioStage = "awaiting_alice_notification_check"
	StageComplete                  ScenarioStage = "complete"
)

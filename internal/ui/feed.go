// Package ui holds presentation policy shared by the console and telegram
// front-ends.
package ui

import (
	"fmt"
	"forgery-sim/internal/core/domain"
	"sort"
	"strings"
)

// PostsToShow applies the feed policy: the first actor sees only their own
// posts, everyone else sees every post. Newest first.
func PostsToShow(viewer domain.User, posts []domain.Post) []domain.Post {
	out := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		if viewer.ID == domain.FirstActorID && p.UserID != viewer.ID {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func UnreadCount(ns []domain.Notification) int {
	var n int
	for _, x := range ns {
		if !x.Read {
			n++
		}
	}
	return n
}

// FeedTitle is "Alice's Feed" style heading.
func FeedTitle(u domain.User) string {
	return u.FirstName() + "'s Feed"
}

// Instructions is the scenario helper banner.
type Instructions struct {
	Title       string
	Description string
	Highlight   bool
	CanReset    bool
}

func ScenarioInstructions(stage domain.ScenarioStage, viewer domain.User) Instructions {
	isFirst := viewer.ID == domain.FirstActorID

	switch stage {
	case domain.StageAwaitingOriginalPost:
		in := Instructions{Title: "Step 1: Post an Image as Alice", Highlight: isFirst}
		if isFirst {
			in.Description = "You are logged in as Alice. Upload an image to post a picture."
		} else {
			in.Description = "Please switch to Alice's account to begin the simulation."
		}
		return in
	case domain.StageAwaitingTamperUpload:
		in := Instructions{Title: "Step 2: Tamper the Image as Bob", Highlight: !isFirst}
		if isFirst {
			in.Description = "Image posted! Now, switch to Bob's account to simulate the tampering."
		} else {
			in.Description = "You are Bob. Upload your manually tampered version of Alice's latest image."
		}
		return in
	case domain.StageAwaitingNotificationCheck:
		in := Instructions{Title: "Step 3: Check Notification as Alice", Highlight: isFirst}
		if isFirst {
			in.Description = "A tampered version of your post was detected! Open the notification to view the forgery report."
		} else {
			in.Description = "Tampering successful! Switch back to Alice's account to see the result."
		}
		return in
	case domain.StageComplete:
		return Instructions{
			Title:       "Simulation Complete!",
			Description: "You have successfully walked through the forgery detection and recovery simulation.",
			Highlight:   true,
			CanReset:    true,
		}
	}
	return Instructions{}
}

// ReportSection is one phase of the analysis report.
type ReportSection struct {
	Icon    string
	Title   string
	Content string
}

func ReportSections(a domain.ForgeryAnalysis) []ReportSection {
	return []ReportSection{
		{"🛡️", "Cyber Vaccinator Module", a.Vaccinator},
		{"🔍", "Forgery Detector Phase", a.Detector},
		{"🔄", "Self Recovery Phase", a.Recovery},
		{"✅", "Quality Assurance", a.Assurance},
	}
}

// ReportTitle mirrors the modal heading of the report view.
func ReportTitle(p domain.Post) string {
	if p.IsTampered {
		return "Forgery Analysis Report"
	}
	return "Process Complete: Analysis Report"
}

// ReportMarkdown renders the analysis of p as markdown.
func ReportMarkdown(p domain.Post) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", ReportTitle(p))
	if p.OriginalPostID != "" {
		fmt.Fprintf(&sb, "_Tampered post `%s` derived from `%s`_\n\n", p.ID, p.OriginalPostID)
	}
	if p.Analysis == nil {
		sb.WriteString("Analysis complete.\n")
		return sb.String()
	}
	for _, s := range ReportSections(*p.Analysis) {
		fmt.Fprintf(&sb, "## %s %s\n\n%s\n\n", s.Icon, s.Title, s.Content)
	}
	return sb.String()
}

// FailureMessage is the text shown when an operation fails.
func FailureMessage(err error) string {
	return "Process Failed: " + err.Error()
}

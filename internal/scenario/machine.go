// Package scenario tracks the scripted two-actor demo. It observes actions
// and advances on matching (stage, event, actor) triples; it never blocks.
package scenario

import (
	"fmt"
	"forgery-sim/internal/core/domain"
	"sort"
)

type Event string

const (
	EventPostCreated              Event = "post_created"
	EventTamperAnalyzed           Event = "tamper_analyzed"
	EventNotificationAcknowledged Event = "notification_acknowledged"
	EventReset                    Event = "reset"
)

// AnyActor matches every actor in a transition row.
const AnyActor = 0

type key struct {
	stage domain.ScenarioStage
	event Event
}

type rule struct {
	actor int
	next  domain.ScenarioStage
}

// Transition is one row of the transition table.
type Transition struct {
	From  domain.ScenarioStage
	Event Event
	Actor int
	To    domain.ScenarioStage
}

var stages = []domain.ScenarioStage{
	domain.StageAwaitingOriginalPost,
	domain.StageAwaitingTamperUpload,
	domain.StageAwaitingNotificationCheck,
	domain.StageComplete,
}

var transitions = func() map[key]rule {
	t := map[key]rule{
		{domain.StageAwaitingOriginalPost, EventPostCreated}:                   {domain.FirstActorID, domain.StageAwaitingTamperUpload},
		{domain.StageAwaitingTamperUpload, EventTamperAnalyzed}:                {domain.SecondActorID, domain.StageAwaitingNotificationCheck},
		{domain.StageAwaitingNotificationCheck, EventNotificationAcknowledged}: {domain.FirstActorID, domain.StageComplete},
	}
	for _, s := range stages {
		t[key{s, EventReset}] = rule{AnyActor, domain.StageAwaitingOriginalPost}
	}
	return t
}()

// Machine holds the single active scenario stage. It is not safe for
// concurrent use; the session serializes access.
type Machine struct {
	stage domain.ScenarioStage
}

func New() *Machine {
	return &Machine{stage: domain.StageAwaitingOriginalPost}
}

func (m *Machine) Stage() domain.ScenarioStage {
	return m.stage
}

// Fire applies event by actor. It reports whether the stage changed.
func (m *Machine) Fire(event Event, actor int) (domain.ScenarioStage, bool) {
	r, ok := transitions[key{m.stage, event}]
	if !ok || (r.actor != AnyActor && r.actor != actor) {
		return m.stage, false
	}
	changed := r.next != m.stage
	m.stage = r.next
	return m.stage, changed
}

// Expects reports whether event by actor would advance the current stage.
func (m *Machine) Expects(event Event, actor int) bool {
	r, ok := transitions[key{m.stage, event}]
	return ok && (r.actor == AnyActor || r.actor == actor)
}

// Transitions lists the table in stage order.
func Transitions() []Transition {
	order := make(map[domain.ScenarioStage]int, len(stages))
	for i, s := range stages {
		order[s] = i
	}
	out := make([]Transition, 0, len(transitions))
	for k, r := range transitions {
		out = append(out, Transition{From: k.stage, Event: k.event, Actor: r.actor, To: r.next})
	}
	sort.Slice(out, func(i, j int) bool {
		if order[out[i].From] != order[out[j].From] {
			return order[out[i].From] < order[out[j].From]
		}
		return out[i].Event < out[j].Event
	})
	return out
}

// ParseStage validates a stage name.
func ParseStage(s string) (domain.ScenarioStage, error) {
	for _, st := range stages {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid scenario stage: %q", s)
}

package scenario

import (
	"forgery-sim/internal/core/domain"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = domain.FirstActorID
	bob   = domain.SecondActorID
)

func TestMachine_HappyPath(t *testing.T) {
	m := New()
	assert.Equal(t, domain.StageAwaitingOriginalPost, m.Stage())

	steps := []struct {
		event Event
		actor int
		want  domain.ScenarioStage
	}{
		{EventPostCreated, alice, domain.StageAwaitingTamperUpload},
		{EventTamperAnalyzed, bob, domain.StageAwaitingNotificationCheck},
		{EventNotificationAcknowledged, alice, domain.StageComplete},
		{EventReset, alice, domain.StageAwaitingOriginalPost},
	}
	for _, s := range steps {
		got, changed := m.Fire(s.event, s.actor)
		assert.True(t, changed, "%s by %d", s.event, s.actor)
		assert.Equal(t, s.want, got)
	}
}

func TestMachine_MismatchedActionsAreObservedOnly(t *testing.T) {
	tests := []struct {
		name  string
		setup []Event
		event Event
		actor int
	}{
		{"bob posts first", nil, EventPostCreated, bob},
		{"alice posts again", []Event{EventPostCreated}, EventPostCreated, alice},
		{"bob posts ordinarily while tamper expected", []Event{EventPostCreated}, EventPostCreated, bob},
		{"alice tampers", []Event{EventPostCreated}, EventTamperAnalyzed, alice},
		{"bob acknowledges", []Event{EventPostCreated, EventTamperAnalyzed}, EventNotificationAcknowledged, bob},
		{"acknowledge too early", nil, EventNotificationAcknowledged, alice},
	}
	actors := map[Event]int{EventPostCreated: alice, EventTamperAnalyzed: bob}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			for _, e := range tt.setup {
				_, changed := m.Fire(e, actors[e])
				require.True(t, changed)
			}
			before := m.Stage()
			assert.False(t, m.Expects(tt.event, tt.actor))
			got, changed := m.Fire(tt.event, tt.actor)
			assert.False(t, changed)
			assert.Equal(t, before, got)
		})
	}
}

func TestMachine_ResetFromEveryStage(t *testing.T) {
	for _, tr := range Transitions() {
		if tr.Event != EventReset {
			continue
		}
		m := &Machine{stage: tr.From}
		got, _ := m.Fire(EventReset, bob)
		assert.Equal(t, domain.StageAwaitingOriginalPost, got, "reset from %s", tr.From)
	}
}

func TestTransitions_Enumerable(t *testing.T) {
	table := Transitions()
	assert.Len(t, table, 7)
	assert.Equal(t, Transition{
		From: domain.StageAwaitingOriginalPost, Event: EventPostCreated, Actor: alice, To: domain.StageAwaitingTamperUpload,
	}, table[0])
}

func TestParseStage(t *testing.T) {
	st, err := ParseStage("complete")
	require.NoError(t, err)
	assert.Equal(t, domain.StageComplete, st)

	_, err = ParseStage("bogus")
	assert.Error(t, err)
}

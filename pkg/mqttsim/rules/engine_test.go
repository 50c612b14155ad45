package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicMatchesWildcards(t *testing.T) {
	assert.True(t, TopicMatches("sensor/#", "sensor/a/b/c"))
	assert.False(t, TopicMatches("sensor/+/temp", "sensor/a/b/temp"))
	assert.False(t, TopicMatches("a/b", "a/b/c"))
	assert.True(t, TopicMatches("sensor/+/temp", "sensor/room1/temp"))
	assert.True(t, TopicMatches("a/b", "a/b"))
}

func TestFindMatchingPreservesPriorityOrder(t *testing.T) {
	e := New()
	require.NoError(t, e.Load([]*Rule{
		{ID: "r5", Enabled: true, TopicPattern: "x", Priority: 5},
		{ID: "r1", Enabled: true, TopicPattern: "x", Priority: 1},
		{ID: "r3", Enabled: true, TopicPattern: "x", Priority: 3},
	}))

	matches := e.FindMatching("x", nil)
	require.Len(t, matches, 3)
	assert.Equal(t, []string{"r1", "r3", "r5"}, []string{matches[0].ID, matches[1].ID, matches[2].ID})
}

func TestFindMatchingFiresAllMatchesNotFirstWins(t *testing.T) {
	e := New()
	require.NoError(t, e.Load([]*Rule{
		{ID: "a", Enabled: true, TopicPattern: "sensor/#", Priority: 1},
		{ID: "b", Enabled: true, TopicPattern: "sensor/+/temp", Priority: 2},
	}))

	matches := e.FindMatching("sensor/room1/temp", []byte("25"))
	require.Len(t, matches, 2)
}

func TestFindMatchingSkipsDisabledRules(t *testing.T) {
	e := New()
	require.NoError(t, e.Load([]*Rule{
		{ID: "a", Enabled: false, TopicPattern: "x", Priority: 1},
	}))
	assert.Empty(t, e.FindMatching("x", nil))
}

func TestMqttRuleRespondScenario(t *testing.T) {
	e := New()
	require.NoError(t, e.Load([]*Rule{
		{
			ID:           "ack",
			Enabled:      true,
			TopicPattern: "sensor/+/temp",
			Priority:     1,
			Action: Action{
				Kind:    ActionRespond,
				Topic:   "ack/temp",
				Payload: "ok",
			},
		},
	}))

	matches := e.FindMatching("sensor/room1/temp", []byte("25"))
	require.Len(t, matches, 1)
	assert.Equal(t, ActionRespond, matches[0].Action.Kind)
	assert.Equal(t, "ack/temp", matches[0].Action.Topic)
	assert.Equal(t, "ok", matches[0].Action.Payload)
}

func TestPayloadMatcherVariants(t *testing.T) {
	exact := &PayloadMatcher{Kind: MatchExact, Value: "on"}
	assert.True(t, payloadMatches(exact, []byte("on")))
	assert.False(t, payloadMatches(exact, []byte("off")))

	prefix := &PayloadMatcher{Kind: MatchPrefix, Value: "temp:"}
	assert.True(t, payloadMatches(prefix, []byte("temp:25")))

	contains := &PayloadMatcher{Kind: MatchContains, Value: "err"}
	assert.True(t, payloadMatches(contains, []byte("status=error")))

	hexM := &PayloadMatcher{Kind: MatchHex, Value: "0102ff"}
	assert.True(t, payloadMatches(hexM, []byte{0x01, 0x02, 0xff}))

	jsonM := &PayloadMatcher{Kind: MatchJsonField, Path: "status", Expected: "ok"}
	assert.True(t, payloadMatches(jsonM, []byte(`{"status":"ok"}`)))
	assert.False(t, payloadMatches(jsonM, []byte(`{"status":"bad"}`)))
}

func TestRegexMatcherCompiledWhenAddedViaAdd(t *testing.T) {
	e := New()
	require.NoError(t, e.Add(&Rule{
		ID:           "re",
		Enabled:      true,
		TopicPattern: "x",
		Priority:     1,
		PayloadMatch: &PayloadMatcher{Kind: MatchRegex, Value: `^temp=\d+$`},
	}))

	require.Len(t, e.FindMatching("x", []byte("temp=42")), 1)
	require.Empty(t, e.FindMatching("x", []byte("temp=abc")))
}

func TestRemove(t *testing.T) {
	e := New()
	require.NoError(t, e.Add(&Rule{ID: "a", Enabled: true, TopicPattern: "x", Priority: 1}))
	assert.True(t, e.Remove("a"))
	assert.False(t, e.Remove("a"))
	assert.Empty(t, e.List())
}

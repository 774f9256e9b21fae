package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionForwardWalk(t *testing.T) {
	walk := []RequestStatus{
		StatusRunning,
		StatusAddressStart,
		StatusLookupStart,
		StatusScrapeStart,
		StatusAppraiseStart,
		StatusDone,
	}
	for i := 0; i < len(walk)-1; i++ {
		assert.True(t, CanTransition(walk[i], walk[i+1]), "%s -> %s", walk[i], walk[i+1])
	}
}

func TestCanTransitionNoBackwardSkips(t *testing.T) {
	assert.False(t, CanTransition(StatusScrapeStart, StatusAddressStart))
	assert.False(t, CanTransition(StatusDone, StatusRunning))
	assert.False(t, CanTransition(StatusAppraiseStart, StatusLookupStart))
}

func TestCanTransitionFailedAbsorbing(t *testing.T) {
	for _, from := range []RequestStatus{StatusRunning, StatusAddressStart, StatusLookupStart, StatusScrapeStart, StatusAppraiseStart} {
		assert.True(t, CanTransition(from, StatusFailed), "from %s", from)
	}
	// Terminal states admit nothing.
	assert.False(t, CanTransition(StatusDone, StatusFailed))
	assert.False(t, CanTransition(StatusFailed, StatusRunning))
	assert.False(t, CanTransition(StatusFailed, StatusFailed))
}

func TestCanTransitionSameStepRecommit(t *testing.T) {
	// Crash-resume re-enters the step it never finished.
	assert.True(t, CanTransition(StatusScrapeStart, StatusScrapeStart))
}

func TestCanTransitionRejectsUnknown(t *testing.T) {
	assert.False(t, CanTransition("bogus", StatusDone))
	assert.False(t, CanTransition(StatusRunning, "bogus"))
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusAppraiseStart.Terminal())
}

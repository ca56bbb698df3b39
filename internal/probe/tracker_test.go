package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnknownProviderAssumedReachable(t *testing.T) {
	tr := NewTracker()
	assert.True(t, tr.IsReachable("never-probed"))
}

func TestRecordFailure(t *testing.T) {
	tr := NewTracker()

	transition := tr.RecordFailure("p1")
	assert.False(t, transition, "unknown provider going down is not a transition")
	assert.False(t, tr.IsReachable("p1"))
	assert.Equal(t, 1, tr.FailureCount("p1"))

	transition = tr.RecordFailure("p1")
	assert.False(t, transition)
	assert.Equal(t, 2, tr.FailureCount("p1"))
}

func TestRecoveryTransition(t *testing.T) {
	tr := NewTracker()

	tr.RecordFailure("p1")
	transition := tr.RecordSuccess("p1")
	assert.True(t, transition, "unreachable to reachable is a transition")
	assert.True(t, tr.IsReachable("p1"))
	assert.Equal(t, 0, tr.FailureCount("p1"))

	// Staying reachable is not a transition.
	assert.False(t, tr.RecordSuccess("p1"))
}

func TestFailureTransition(t *testing.T) {
	tr := NewTracker()

	tr.RecordSuccess("p1")
	transition := tr.RecordFailure("p1")
	assert.True(t, transition, "reachable to unreachable is a transition")
}

func TestUnreachableIDs(t *testing.T) {
	tr := NewTracker()

	tr.RecordSuccess("up")
	tr.RecordFailure("down-1")
	tr.RecordFailure("down-2")

	ids := tr.UnreachableIDs()
	assert.ElementsMatch(t, []string{"down-1", "down-2"}, ids)
}

package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoinsight-dev/repoinsight/pkg/session"
)

func analyzingSession() *session.Session {
	s := session.New("user-1")
	s.State = session.StateAnalyzing
	s.RepoURL = "https://github.com/owner/repo"
	s.AnalysisTaskID = "task-1"
	s.AnalysisSessionID = "sess-1"
	return s
}

func waitingSession() *session.Session {
	s := analyzingSession()
	s.State = session.StateWaitingForAnswer
	s.PendingQuestion = "how is auth handled?"
	s.QueryTaskID = "query-1"
	return s
}

func TestBeginRepoFromAnyState(t *testing.T) {
	for _, s := range []*session.Session{
		session.New("u"),
		analyzingSession(),
		waitingSession(),
	} {
		out := Apply(s, Event{Kind: EventBeginRepo})
		assert.True(t, out.Changed)
		assert.NotEmpty(t, out.Reply)
		assert.Equal(t, session.StateWaitingForRepo, s.State)
		assert.NoError(t, s.Validate())
	}
}

func TestAnalysisStarted(t *testing.T) {
	s := session.New("user-1")
	s.State = session.StateWaitingForRepo

	out := Apply(s, Event{
		Kind:      EventAnalysisStarted,
		RepoURL:   "https://github.com/owner/repo",
		SessionID: "sess-1",
		TaskID:    "task-1",
	})

	require.True(t, out.Changed)
	assert.Equal(t, session.StateAnalyzing, s.State)
	assert.Equal(t, "sess-1", s.AnalysisSessionID)
	assert.Equal(t, "task-1", s.AnalysisTaskID)
	assert.NoError(t, s.Validate())
}

func TestAnalysisSucceeded(t *testing.T) {
	s := analyzingSession()

	out := Apply(s, Event{Kind: EventAnalysisSucceeded})

	require.True(t, out.Changed)
	assert.Equal(t, session.StateReadyForQuery, s.State)
	assert.Contains(t, out.Notify, "https://github.com/owner/repo")
	assert.Empty(t, out.Reply)
}

func TestAnalysisFailedClearsFields(t *testing.T) {
	s := analyzingSession()

	out := Apply(s, Event{Kind: EventAnalysisFailed, Err: "clone failed"})

	require.True(t, out.Changed)
	assert.Equal(t, session.StateIdle, s.State)
	assert.Empty(t, s.RepoURL)
	assert.Empty(t, s.AnalysisTaskID)
	assert.Empty(t, s.AnalysisSessionID)
	assert.Contains(t, out.Notify, "clone failed")
}

func TestAnswerReadyEchoesOriginalQuestion(t *testing.T) {
	s := waitingSession()

	out := Apply(s, Event{Kind: EventAnswerReady, Answer: "via middleware"})

	require.True(t, out.Changed)
	assert.Equal(t, session.StateReadyForQuery, s.State)
	assert.Contains(t, out.Notify, "how is auth handled?")
	assert.Contains(t, out.Notify, "via middleware")
	assert.Empty(t, s.PendingQuestion)
	assert.Empty(t, s.QueryTaskID)
	// Correlation id survives for follow-up questions.
	assert.Equal(t, "sess-1", s.AnalysisSessionID)
	assert.NoError(t, s.Validate())
}

func TestQueryFailureReturnsToReady(t *testing.T) {
	for _, kind := range []EventKind{EventQueryFailed, EventQueryRevoked} {
		s := waitingSession()
		out := Apply(s, Event{Kind: kind, Err: "worker died"})

		require.True(t, out.Changed)
		assert.Equal(t, session.StateReadyForQuery, s.State)
		assert.Contains(t, out.Notify, "how is auth handled?")
		assert.NoError(t, s.Validate())
	}
}

func TestCancelOnlyWhileAnalyzing(t *testing.T) {
	s := analyzingSession()
	out := Apply(s, Event{Kind: EventCancelled})
	assert.True(t, out.Changed)
	assert.Equal(t, session.StateIdle, s.State)

	idle := session.New("user-2")
	out = Apply(idle, Event{Kind: EventCancelled})
	assert.False(t, out.Changed)
	assert.Equal(t, session.StateIdle, idle.State)
}

func TestPollEventsAreNoOpsOutsideTheirState(t *testing.T) {
	// A late or duplicate completion must never corrupt a session that has
	// already moved on.
	s := session.New("user-1")
	for _, kind := range []EventKind{
		EventAnalysisSucceeded, EventAnalysisFailed, EventAnalysisCancelled,
		EventAnswerReady, EventQueryFailed, EventQueryRevoked,
	} {
		out := Apply(s, Event{Kind: kind, Answer: "stale"})
		assert.False(t, out.Changed, "kind %v", kind)
		assert.Empty(t, out.Notify, "kind %v", kind)
		assert.Equal(t, session.StateIdle, s.State)
		assert.NoError(t, s.Validate())
	}
}

func TestResetKeepsNothing(t *testing.T) {
	s := waitingSession()

	out := Apply(s, Event{Kind: EventReset})

	require.True(t, out.Changed)
	assert.Equal(t, session.StateIdle, s.State)
	assert.Empty(t, s.RepoURL)
	assert.Empty(t, s.AnalysisSessionID)
	assert.Empty(t, s.PendingQuestion)
	assert.Empty(t, s.QueryTaskID)
}

package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionDefaults(t *testing.T) {
	sess := New("user-1")

	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, StateIdle, sess.State)
	assert.Empty(t, sess.RepoURL)
	assert.Empty(t, sess.AnalysisTaskID)
	assert.Empty(t, sess.AnalysisSessionID)
	assert.Empty(t, sess.PendingQuestion)
	assert.Empty(t, sess.QueryTaskID)
	assert.False(t, sess.LastActivity.IsZero())
	assert.NoError(t, sess.Validate())
}

func TestParseState(t *testing.T) {
	for _, raw := range []string{"idle", "waiting_for_repo", "analyzing", "ready_for_query", "waiting_for_answer"} {
		st, err := ParseState(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, string(st))
	}

	_, err := ParseState("completed")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptSession)
}

func TestSessionJSONRoundTrip(t *testing.T) {
	orig := &Session{
		UserID:            "user-42",
		State:             StateWaitingForAnswer,
		RepoURL:           "https://github.com/owner/repo",
		AnalysisTaskID:    "task-1",
		AnalysisSessionID: "sess-1",
		PendingQuestion:   "how does the parser work?",
		QueryTaskID:       "query-9",
		LastActivity:      time.Now().UTC().Truncate(time.Microsecond),
	}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Session
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *orig, decoded)
}

func TestSessionReset(t *testing.T) {
	sess := New("user-1")
	sess.State = StateAnalyzing
	sess.RepoURL = "https://github.com/owner/repo"
	sess.AnalysisTaskID = "task-1"
	sess.AnalysisSessionID = "sess-1"

	sess.Reset()

	assert.Equal(t, StateIdle, sess.State)
	assert.Empty(t, sess.RepoURL)
	assert.Empty(t, sess.AnalysisTaskID)
	assert.Empty(t, sess.AnalysisSessionID)
	assert.NoError(t, sess.Validate())
}

func TestSessionClearQueryKeepsCorrelation(t *testing.T) {
	sess := New("user-1")
	sess.State = StateWaitingForAnswer
	sess.RepoURL = "https://github.com/owner/repo"
	sess.AnalysisTaskID = "task-1"
	sess.AnalysisSessionID = "sess-1"
	sess.PendingQuestion = "why?"
	sess.QueryTaskID = "query-1"

	sess.ClearQuery()
	sess.State = StateReadyForQuery

	assert.Empty(t, sess.PendingQuestion)
	assert.Empty(t, sess.QueryTaskID)
	assert.Equal(t, "sess-1", sess.AnalysisSessionID)
	assert.NoError(t, sess.Validate())
}

func TestSessionValidateInvariants(t *testing.T) {
	// WAITING_FOR_ANSWER requires both question and query task id.
	sess := New("user-1")
	sess.State = StateWaitingForAnswer
	sess.AnalysisSessionID = "sess-1"
	require.Error(t, sess.Validate())

	sess.PendingQuestion = "q"
	sess.QueryTaskID = "query-1"
	require.NoError(t, sess.Validate())

	// Question fields outside WAITING_FOR_ANSWER are invalid.
	sess.State = StateReadyForQuery
	require.Error(t, sess.Validate())

	// Analysis ids are not allowed in IDLE.
	idle := New("user-2")
	idle.AnalysisSessionID = "sess-2"
	require.Error(t, idle.Validate())
}

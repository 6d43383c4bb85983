// Package session provides per-user workflow session persistence for the
// RepoInsight orchestrator. A session tracks which step of the
// analyze-then-ask workflow a user is in, together with the remote job
// handles needed to poll that step to completion.
package session

import (
	"fmt"
	"time"
)

// State identifies the workflow step a session is in.
type State string

const (
	// StateIdle is the initial state; nothing is in flight.
	StateIdle State = "idle"
	// StateWaitingForRepo means the user has been prompted for a repository URL.
	StateWaitingForRepo State = "waiting_for_repo"
	// StateAnalyzing means a remote analysis job is in flight.
	StateAnalyzing State = "analyzing"
	// StateReadyForQuery means analysis finished and questions are accepted.
	StateReadyForQuery State = "ready_for_query"
	// StateWaitingForAnswer means a remote query job is in flight.
	StateWaitingForAnswer State = "waiting_for_answer"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateWaitingForRepo, StateAnalyzing, StateReadyForQuery, StateWaitingForAnswer:
		return true
	}
	return false
}

// ParseState converts a stored string into a State.
// Unknown values are a persistence-corruption error, never silently defaulted.
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown state %q", ErrCorruptSession, raw)
	}
	return s, nil
}

// Session is the persisted workflow record for one user.
// The user id is the primary key; absence of a record is equivalent to a
// fresh session in StateIdle.
type Session struct {
	// UserID identifies the chat user this session belongs to.
	UserID string `json:"userId"`
	// State is the current workflow step.
	State State `json:"state"`
	// RepoURL is the repository under analysis, if any.
	RepoURL string `json:"repoUrl,omitempty"`
	// AnalysisTaskID is the remote analysis job handle.
	AnalysisTaskID string `json:"analysisTaskId,omitempty"`
	// AnalysisSessionID is the remote correlation id returned by the analysis
	// service. It is reused for all subsequent queries against the repo.
	AnalysisSessionID string `json:"analysisSessionId,omitempty"`
	// PendingQuestion is the question awaiting an answer, if any.
	PendingQuestion string `json:"pendingQuestion,omitempty"`
	// QueryTaskID is the remote query job handle.
	QueryTaskID string `json:"queryTaskId,omitempty"`
	// LastActivity is updated on every inbound message and every poll-driven
	// transition. Sessions idle past a configured threshold are evicted.
	LastActivity time.Time `json:"lastActivity"`
}

// New returns a fresh session for a user in the initial state.
func New(userID string) *Session {
	return &Session{
		UserID:       userID,
		State:        StateIdle,
		LastActivity: time.Now().UTC(),
	}
}

// Touch stamps the last-activity time.
func (s *Session) Touch() {
	s.LastActivity = time.Now().UTC()
}

// ClearQuery drops the in-flight question and its job handle.
// The analysis correlation id is kept so further questions can follow.
func (s *Session) ClearQuery() {
	s.PendingQuestion = ""
	s.QueryTaskID = ""
}

// Reset returns the session to the initial state, dropping all job fields.
func (s *Session) Reset() {
	s.State = StateIdle
	s.RepoURL = ""
	s.AnalysisTaskID = ""
	s.AnalysisSessionID = ""
	s.PendingQuestion = ""
	s.QueryTaskID = ""
}

// Validate checks the field invariants tied to the current state.
func (s *Session) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("%w: empty user id", ErrCorruptSession)
	}
	if !s.State.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrCorruptSession, s.State)
	}
	hasQuery := s.PendingQuestion != "" && s.QueryTaskID != ""
	if (s.State == StateWaitingForAnswer) != hasQuery {
		return fmt.Errorf("%w: state %s with question=%t task=%t",
			ErrCorruptSession, s.State, s.PendingQuestion != "", s.QueryTaskID != "")
	}
	switch s.State {
	case StateIdle, StateWaitingForRepo:
		if s.AnalysisSessionID != "" || s.AnalysisTaskID != "" {
			return fmt.Errorf("%w: state %s holds analysis ids", ErrCorruptSession, s.State)
		}
	default:
		if s.AnalysisSessionID == "" {
			return fmt.Errorf("%w: state %s without analysis session id", ErrCorruptSession, s.State)
		}
	}
	return nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	return &c
}

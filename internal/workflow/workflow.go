// Package workflow holds the session state machine: pure transition logic
// mapping (current session, event) to (mutated session, reply, notification).
// It performs no I/O; the router and the polling scheduler feed it events and
// persist the result.
package workflow

import (
	"fmt"

	"github.com/repoinsight-dev/repoinsight/pkg/session"
)

// EventKind identifies a state machine input.
type EventKind int

const (
	// EventBeginRepo is the /repo command.
	EventBeginRepo EventKind = iota
	// EventAnalysisStarted carries the job ref of a freshly submitted analysis.
	EventAnalysisStarted
	// EventAnalysisSucceeded is the poll result for a finished analysis.
	EventAnalysisSucceeded
	// EventAnalysisFailed is the poll result for a failed analysis.
	EventAnalysisFailed
	// EventAnalysisCancelled is the poll result for a remotely cancelled analysis.
	EventAnalysisCancelled
	// EventQueryStarted carries the job ref of a freshly submitted question.
	EventQueryStarted
	// EventAnswerReady carries the fetched answer for a finished query.
	EventAnswerReady
	// EventQueryFailed is the poll result for a failed query.
	EventQueryFailed
	// EventQueryRevoked is the poll result for a revoked query.
	EventQueryRevoked
	// EventCancelled resets an analyzing session after a local /cancel.
	EventCancelled
	// EventReset is the /exit command.
	EventReset
)

// Event is one state machine input.
type Event struct {
	Kind EventKind

	// RepoURL, SessionID and TaskID accompany EventAnalysisStarted.
	RepoURL   string
	SessionID string
	TaskID    string

	// Question and TaskID accompany EventQueryStarted.
	Question string

	// Answer accompanies EventAnswerReady.
	Answer string

	// Err accompanies failure events.
	Err string
}

// Outcome is the result of applying an event.
type Outcome struct {
	// Reply is the synchronous response for user-initiated events.
	Reply string
	// Notify is the out-of-band push text for poll-driven events.
	Notify string
	// Changed reports whether the session was mutated.
	Changed bool
}

// Guidance is the fallback reply for any input the current state cannot use.
const Guidance = "Use /repo to start analyzing a repository, or /help for usage."

// Apply runs one transition. Unmatched (state, event) pairs are a no-op that
// returns guidance and leaves every stored field untouched.
func Apply(s *session.Session, ev Event) Outcome {
	switch ev.Kind {
	case EventBeginRepo:
		// Allowed from any state; an in-flight job is simply abandoned.
		s.Reset()
		s.State = session.StateWaitingForRepo
		return Outcome{
			Reply:   "Send the URL of the repository to analyze (for example: https://github.com/owner/repo).",
			Changed: true,
		}

	case EventReset:
		s.Reset()
		return Outcome{
			Reply:   "Session reset. Use /repo to start a new analysis.",
			Changed: true,
		}

	case EventCancelled:
		if s.State != session.StateAnalyzing {
			return Outcome{Reply: "There is no analysis in progress to cancel."}
		}
		s.Reset()
		return Outcome{
			Reply:   "Analysis cancelled. Use /repo to start a new analysis.",
			Changed: true,
		}

	case EventAnalysisStarted:
		if s.State != session.StateWaitingForRepo {
			return Outcome{Reply: Guidance}
		}
		s.State = session.StateAnalyzing
		s.RepoURL = ev.RepoURL
		s.AnalysisTaskID = ev.TaskID
		s.AnalysisSessionID = ev.SessionID
		return Outcome{
			Reply: fmt.Sprintf("Analysis of %s has started. This may take a few minutes; "+
				"you will be notified when it completes.", ev.RepoURL),
			Changed: true,
		}

	case EventAnalysisSucceeded:
		if s.State != session.StateAnalyzing {
			return Outcome{}
		}
		s.State = session.StateReadyForQuery
		return Outcome{
			Notify: fmt.Sprintf("Repository analysis complete!\nRepository: %s\n"+
				"You can now ask questions about the code. Just send them as messages.", s.RepoURL),
			Changed: true,
		}

	case EventAnalysisFailed:
		if s.State != session.StateAnalyzing {
			return Outcome{}
		}
		reason := ev.Err
		if reason == "" {
			reason = "unknown error"
		}
		s.Reset()
		return Outcome{
			Notify:  fmt.Sprintf("Repository analysis failed: %s\nUse /repo to start over.", reason),
			Changed: true,
		}

	case EventAnalysisCancelled:
		if s.State != session.StateAnalyzing {
			return Outcome{}
		}
		s.Reset()
		return Outcome{
			Notify:  "Repository analysis was cancelled.\nUse /repo to start a new analysis.",
			Changed: true,
		}

	case EventQueryStarted:
		if s.State != session.StateReadyForQuery {
			return Outcome{Reply: Guidance}
		}
		s.State = session.StateWaitingForAnswer
		s.PendingQuestion = ev.Question
		s.QueryTaskID = ev.TaskID
		return Outcome{
			Reply: fmt.Sprintf("Got your question: %q\nLooking for the answer; "+
				"you will be notified as soon as it is ready.", ev.Question),
			Changed: true,
		}

	case EventAnswerReady:
		if s.State != session.StateWaitingForAnswer {
			return Outcome{}
		}
		// Capture before clearing so the notification echoes the original
		// question, not the post-transition empty field.
		question := s.PendingQuestion
		s.ClearQuery()
		s.State = session.StateReadyForQuery
		return Outcome{
			Notify:  fmt.Sprintf("Question: %s\n\nAnswer:\n%s", question, ev.Answer),
			Changed: true,
		}

	case EventQueryFailed:
		if s.State != session.StateWaitingForAnswer {
			return Outcome{}
		}
		question := s.PendingQuestion
		reason := ev.Err
		if reason == "" {
			reason = "processing failed"
		}
		s.ClearQuery()
		s.State = session.StateReadyForQuery
		return Outcome{
			Notify:  fmt.Sprintf("Question: %s\n\nError: %s\nFeel free to ask again.", question, reason),
			Changed: true,
		}

	case EventQueryRevoked:
		if s.State != session.StateWaitingForAnswer {
			return Outcome{}
		}
		question := s.PendingQuestion
		s.ClearQuery()
		s.State = session.StateReadyForQuery
		return Outcome{
			Notify:  fmt.Sprintf("Question: %s\n\nThe query was cancelled.", question),
			Changed: true,
		}
	}

	return Outcome{Reply: Guidance}
}

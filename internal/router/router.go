// Package router interprets inbound chat text as either a control command or
// state-specific content, drives the session state machine, and persists the
// result. One Handle call is one read-modify-write under the user's lock.
package router

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/repoinsight-dev/repoinsight/internal/remote"
	"github.com/repoinsight-dev/repoinsight/internal/workflow"
	"github.com/repoinsight-dev/repoinsight/pkg/observability"
	"github.com/repoinsight-dev/repoinsight/pkg/session"
)

// TaskService is the slice of the remote client the router needs.
type TaskService interface {
	ProbeHealth(ctx context.Context) bool
	SubmitAnalysis(ctx context.Context, repoURL string, embedding map[string]any) (remote.JobRef, error)
	SubmitQuery(ctx context.Context, sessionID, question string, llm map[string]any) (remote.JobRef, error)
	CancelAnalysis(ctx context.Context, sessionID string) bool
}

// Config holds router tunables.
type Config struct {
	// MaxQuestionLen rejects questions longer than this many runes (default 2000).
	MaxQuestionLen int
	// EmbeddingConfig is passed through to analysis submissions.
	EmbeddingConfig map[string]any
	// LLMConfig is passed through to query submissions.
	LLMConfig map[string]any
}

// Router dispatches inbound messages.
type Router struct {
	cfg   Config
	store session.Store
	locks *session.KeyedMutex
	tasks TaskService
}

// User-facing replies that do not depend on session fields.
const (
	replyStillProcessing  = "Your question is still being processed, please wait..."
	replyStoreUnavailable = "Something went wrong handling your message, please try again."
	replyBadRepoURL       = "Please send a valid repository URL, for example: https://github.com/owner/repo"
	replyServiceDown      = "The analysis service is temporarily unavailable, please try again later."
	replySubmitFailed     = "Failed to start the analysis. Check the repository URL or try again later."
	replyQueryFailed      = "Failed to submit your question, please try again later."
	replyUnknownCommand   = "Unknown command. Use /help to see available commands."

	helpText = "RepoInsight - repository analysis assistant\n\n" +
		"Commands:\n" +
		"/repo - analyze a new repository\n" +
		"/status - show the current session state\n" +
		"/cancel - cancel the running analysis\n" +
		"/exit - reset the session\n" +
		"/help - show this message\n\n" +
		"Flow: send /repo, provide a repository URL, wait for the analysis to\n" +
		"finish, then ask questions about the code."
)

// New creates a router. The keyed mutex must be the same instance the polling
// scheduler uses, so an inbound message cannot race a poll-tick completion for
// the same user.
func New(cfg Config, store session.Store, locks *session.KeyedMutex, tasks TaskService) *Router {
	if cfg.MaxQuestionLen <= 0 {
		cfg.MaxQuestionLen = 2000
	}
	return &Router{cfg: cfg, store: store, locks: locks, tasks: tasks}
}

// Handle processes one inbound message and returns the reply.
func (r *Router) Handle(ctx context.Context, userID, text string) string {
	unlock := r.locks.Lock(userID)
	defer unlock()

	sess, err := session.GetOrNew(ctx, r.store, userID)
	if err != nil {
		log.Printf("[ROUTER] load session for %s: %v", userID, err)
		return replyStoreUnavailable
	}
	sess.Touch()

	text = strings.TrimSpace(text)

	var reply string
	if strings.HasPrefix(text, "/") {
		reply = r.handleCommand(ctx, sess, text)
	} else {
		reply = r.handleText(ctx, sess, text)
	}

	if err := r.store.Put(ctx, sess); err != nil {
		// Not committed: surface it so the user retries instead of assuming
		// the transition took effect.
		log.Printf("[ROUTER] save session for %s: %v", userID, err)
		return replyStoreUnavailable
	}
	return reply
}

func (r *Router) handleCommand(ctx context.Context, sess *session.Session, command string) string {
	observability.CountInbound("command")

	switch command {
	case "/repo":
		return r.apply(sess, workflow.Event{Kind: workflow.EventBeginRepo})

	case "/exit":
		return r.apply(sess, workflow.Event{Kind: workflow.EventReset})

	case "/status":
		return statusReply(sess)

	case "/cancel":
		if sess.State == session.StateAnalyzing && sess.AnalysisSessionID != "" {
			// Best effort: local state resets whether or not the remote
			// service accepts the cancel.
			if !r.tasks.CancelAnalysis(ctx, sess.AnalysisSessionID) {
				log.Printf("[ROUTER] remote cancel failed for session %s", sess.AnalysisSessionID)
			}
		}
		return r.apply(sess, workflow.Event{Kind: workflow.EventCancelled})

	case "/help":
		return helpText
	}

	return replyUnknownCommand
}

func (r *Router) handleText(ctx context.Context, sess *session.Session, text string) string {
	observability.CountInbound("text")

	switch sess.State {
	case session.StateWaitingForRepo:
		return r.handleRepoURL(ctx, sess, text)
	case session.StateReadyForQuery:
		return r.handleQuestion(ctx, sess, text)
	case session.StateWaitingForAnswer:
		return replyStillProcessing
	}
	return workflow.Guidance
}

func (r *Router) handleRepoURL(ctx context.Context, sess *session.Session, raw string) string {
	repoURL := strings.TrimSpace(raw)
	if !ValidRepoURL(repoURL) {
		return replyBadRepoURL
	}

	// Pre-flight gate: avoid submitting into a dead service.
	if !r.tasks.ProbeHealth(ctx) {
		return replyServiceDown
	}

	ref, err := r.tasks.SubmitAnalysis(ctx, repoURL, r.cfg.EmbeddingConfig)
	if err != nil {
		log.Printf("[ROUTER] submit analysis for %s: %v", sess.UserID, err)
		return replySubmitFailed
	}

	return r.apply(sess, workflow.Event{
		Kind:      workflow.EventAnalysisStarted,
		RepoURL:   repoURL,
		SessionID: ref.SessionID,
		TaskID:    ref.TaskID,
	})
}

func (r *Router) handleQuestion(ctx context.Context, sess *session.Session, question string) string {
	if len([]rune(question)) > r.cfg.MaxQuestionLen {
		return fmt.Sprintf("That question is too long, please keep it under %d characters.", r.cfg.MaxQuestionLen)
	}

	ref, err := r.tasks.SubmitQuery(ctx, sess.AnalysisSessionID, question, r.cfg.LLMConfig)
	if err != nil {
		log.Printf("[ROUTER] submit query for %s: %v", sess.UserID, err)
		return replyQueryFailed
	}

	return r.apply(sess, workflow.Event{
		Kind:     workflow.EventQueryStarted,
		Question: question,
		TaskID:   ref.TaskID,
	})
}

func (r *Router) apply(sess *session.Session, ev workflow.Event) string {
	out := workflow.Apply(sess, ev)
	if out.Changed {
		observability.CountTransition(string(sess.State))
	}
	return out.Reply
}

func statusReply(sess *session.Session) string {
	switch sess.State {
	case session.StateWaitingForRepo:
		return "Status: waiting for a repository URL.\nSend the URL of the repository to analyze."
	case session.StateAnalyzing:
		return fmt.Sprintf("Status: analyzing.\nRepository: %s\nPlease wait...", sess.RepoURL)
	case session.StateReadyForQuery:
		return fmt.Sprintf("Status: ready.\nRepository: %s\nAsk away!", sess.RepoURL)
	case session.StateWaitingForAnswer:
		return fmt.Sprintf("Status: waiting for an answer.\nQuestion: %s\nProcessing...", sess.PendingQuestion)
	}
	return "Status: idle.\nUse /repo to start analyzing a repository."
}

// ValidRepoURL accepts only a strict repository-URL shape: http(s) scheme,
// a host, and exactly two non-empty path segments (owner/name), optionally
// with a trailing slash. Anything else is rejected before any remote call.
func ValidRepoURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return false
	}
	if u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return false
	}
	path := strings.TrimSuffix(u.Path, "/")
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) != 2 {
		return false
	}
	return segments[0] != "" && segments[1] != ""
}

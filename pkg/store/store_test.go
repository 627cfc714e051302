package store_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"work/pkg/protocol"
	"work/pkg/store"
)

// newTestStore creates a Store over an in-memory SQLite database with the
// schema applied. A single connection keeps the in-memory database shared.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s := store.New(db)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func registerSample(t *testing.T, s *store.Store) int64 {
	t.Helper()
	id, err := s.RegisterWorker(context.Background(), store.RegisterParams{
		RepoPath:     "/home/user/repos/myrepo",
		RepoName:     "myrepo",
		IssueNumber:  42,
		Branch:       "issue-42-fix-bug",
		WorktreePath: "/home/user/.worktrees/myrepo/issue-42-fix-bug",
		PID:          12345,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return id
}

func TestInitIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		if err := s.Init(context.Background()); err != nil {
			t.Fatalf("init %d: %v", i, err)
		}
	}
	workers, err := s.ListWorkers(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(workers) != 0 {
		t.Errorf("expected empty workers table, got %d", len(workers))
	}
}

func TestRegisterWorker_Defaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := registerSample(t, s)

	w, err := s.Worker(ctx, id)
	if err != nil {
		t.Fatalf("get worker: %v", err)
	}
	if w.Status != protocol.StatusStarting {
		t.Errorf("status = %q, want starting", w.Status)
	}
	if w.Stage != protocol.StageExploring {
		t.Errorf("stage = %q, want exploring", w.Stage)
	}
	if w.IssueSource != "github" {
		t.Errorf("issue_source = %q, want github", w.IssueSource)
	}

	sess, err := s.ActiveSession(ctx, id)
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if sess.SessionNumber != 1 {
		t.Errorf("first session number = %d, want 1", sess.SessionNumber)
	}
}

func TestRegisterWorker_ReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	params := store.RegisterParams{
		RepoPath: "/path/to/repo", RepoName: "myrepo", IssueNumber: 42,
		Branch: "issue-42", WorktreePath: "/path/to/worktree", PID: 1111,
	}
	first, err := s.RegisterWorker(ctx, params)
	if err != nil {
		t.Fatalf("register 1: %v", err)
	}
	params.PID = 2222
	second, err := s.RegisterWorker(ctx, params)
	if err != nil {
		t.Fatalf("register 2: %v", err)
	}
	if first != second {
		t.Errorf("re-registration changed id: %d -> %d", first, second)
	}

	w, err := s.Worker(ctx, second)
	if err != nil {
		t.Fatalf("get worker: %v", err)
	}
	if w.PID != 2222 {
		t.Errorf("pid = %d, want 2222", w.PID)
	}
	workers, _ := s.ListWorkers(ctx)
	if len(workers) != 1 {
		t.Errorf("expected 1 worker, got %d", len(workers))
	}
	sessions, _ := s.Sessions(ctx, second)
	if len(sessions) != 1 {
		t.Errorf("re-registration must not open another session, got %d", len(sessions))
	}
}

func TestRegisterWorker_Jira(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.RegisterWorker(ctx, store.RegisterParams{
		RepoPath: "/path/to/repo", RepoName: "myrepo", Branch: "AIE-123-feature",
		WorktreePath: "/path/to/worktree", PID: 1234, JiraKey: "AIE-123", IssueSource: "jira",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	w, _ := s.Worker(ctx, id)
	if w.JiraKey != "AIE-123" || w.IssueSource != "jira" {
		t.Errorf("unexpected jira fields: %q %q", w.JiraKey, w.IssueSource)
	}

	found, err := s.FindWorkerByIssue(ctx, "AIE-123", "")
	if err != nil || found != id {
		t.Errorf("FindWorkerByIssue(AIE-123) = %d, %v; want %d", found, err, id)
	}
}

func TestFindWorkerByIssue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := registerSample(t, s)

	found, err := s.FindWorkerByIssue(ctx, "42", "myrepo")
	if err != nil || found != id {
		t.Errorf("FindWorkerByIssue(42) = %d, %v; want %d", found, err, id)
	}

	_, err = s.FindWorkerByIssue(ctx, "99999", "")
	var nf *protocol.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestWorker_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Worker(context.Background(), 7)
	var nf *protocol.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.Kind != "worker" || nf.Key != "7" {
		t.Errorf("unexpected not-found fields: %+v", nf)
	}
}

func TestUpdateStage_LogsEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := registerSample(t, s)

	if err := s.UpdateStage(ctx, id, protocol.StageTesting, protocol.StatusRunning); err != nil {
		t.Fatalf("update stage: %v", err)
	}
	w, _ := s.Worker(ctx, id)
	if w.Stage != protocol.StageTesting || w.Status != protocol.StatusRunning {
		t.Errorf("got %s/%s, want testing/running", w.Stage, w.Status)
	}

	events, err := s.Events(ctx, id)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	last := events[len(events)-1]
	if last.Type != protocol.EventStageChange {
		t.Errorf("last event type = %q, want stage_change", last.Type)
	}
	if last.Message != "exploring -> testing (running)" {
		t.Errorf("stage change message = %q", last.Message)
	}
}

func TestUpdateStage_InvalidStage(t *testing.T) {
	s := newTestStore(t)
	id := registerSample(t, s)

	err := s.UpdateStage(context.Background(), id, "invalid_stage", protocol.StatusRunning)
	if err == nil || !strings.Contains(err.Error(), "Invalid stage") {
		t.Fatalf("expected Invalid stage error, got %v", err)
	}
}

func TestUpdateStage_AllStagesAccepted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := registerSample(t, s)

	for _, stage := range protocol.Stages {
		if err := s.UpdateStage(ctx, id, stage, protocol.StatusRunning); err != nil {
			t.Fatalf("update to %s: %v", stage, err)
		}
		w, _ := s.Worker(ctx, id)
		if w.Stage != stage {
			t.Errorf("stage = %q, want %q", w.Stage, stage)
		}
	}
}

func TestUpdatePR(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := registerSample(t, s)

	if err := s.UpdatePR(ctx, id, 99, "https://github.com/org/repo/pull/99"); err != nil {
		t.Fatalf("update pr: %v", err)
	}
	w, _ := s.Worker(ctx, id)
	if w.PRNumber != 99 || w.PRURL != "https://github.com/org/repo/pull/99" {
		t.Errorf("unexpected pr fields: %d %q", w.PRNumber, w.PRURL)
	}
	if w.Status != protocol.StatusPROpen {
		t.Errorf("status = %q, want pr_open", w.Status)
	}
}

func TestHeartbeat_PromotesStarting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := registerSample(t, s)

	if err := s.Heartbeat(ctx, id); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	w, _ := s.Worker(ctx, id)
	if w.Status != protocol.StatusRunning {
		t.Errorf("status = %q, want running", w.Status)
	}
	if w.HeartbeatAt == "" {
		t.Error("heartbeat_at not set")
	}
}

func TestLastReminder_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := registerSample(t, s)

	got, err := s.LastReminder(ctx, id)
	if err != nil || !got.IsZero() {
		t.Fatalf("fresh worker LastReminder = %v, %v; want zero", got, err)
	}

	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	if err := s.SetLastReminder(ctx, id, at); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err = s.LastReminder(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Equal(at) {
		t.Errorf("LastReminder = %v, want %v", got, at)
	}
}

func TestEvents_InOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := registerSample(t, s)

	for _, typ := range []string{"event1", "event2", "event3"} {
		if err := s.LogEvent(ctx, id, typ, "msg "+typ); err != nil {
			t.Fatalf("log %s: %v", typ, err)
		}
	}
	events, err := s.Events(ctx, id)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var types []string
	for _, e := range events {
		if strings.HasPrefix(e.Type, "event") {
			types = append(types, e.Type)
		}
	}
	if strings.Join(types, ",") != "event1,event2,event3" {
		t.Errorf("events out of order: %v", types)
	}
}

func TestMessages_MarkRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := registerSample(t, s)

	if err := s.SendMessage(ctx, id, "info", "Message 1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.SendMessage(ctx, id, "info", "Message 2"); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs, err := s.Messages(ctx, id, false)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("peek = %d, %v; want 2", len(msgs), err)
	}
	msgs, err = s.Messages(ctx, id, true)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("read = %d, %v; want 2", len(msgs), err)
	}
	if msgs[0].Payload != "Message 1" {
		t.Errorf("first payload = %q", msgs[0].Payload)
	}
	msgs, err = s.Messages(ctx, id, true)
	if err != nil || len(msgs) != 0 {
		t.Errorf("after mark read = %d, %v; want 0", len(msgs), err)
	}
}

func TestStoreUnavailable_AfterClose(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := store.New(db)
	_ = db.Close()

	err = s.LogEvent(context.Background(), 1, "x", "y")
	var su *protocol.StoreUnavailableError
	if !errors.As(err, &su) {
		t.Fatalf("expected StoreUnavailableError, got %v", err)
	}
}

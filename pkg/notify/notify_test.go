package notify

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"
)

type fakeRunner struct {
	command string
	env     []string
	err     error
}

func (f *fakeRunner) Run(_ context.Context, command string, env []string) ([]byte, error) {
	f.command, f.env = command, env
	return nil, f.err
}

func TestCommandNotifier(t *testing.T) {
	r := &fakeRunner{}
	n := NewCommandNotifier("notify-send \"$WORK_NOTIFY_TITLE\"", r)

	err := n.Notify(context.Background(), Notification{WorkerID: 3, Issue: "api#42", Kind: KindBlocked, Body: "merge\nconflict"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if r.command != "notify-send \"$WORK_NOTIFY_TITLE\"" {
		t.Errorf("command = %q", r.command)
	}
	for _, want := range []string{
		"WORK_NOTIFY_TITLE=work: api#42 blocked",
		"WORK_NOTIFY_BODY=merge conflict",
		"WORK_NOTIFY_KIND=blocked",
		"WORK_NOTIFY_WORKER=3",
	} {
		if !slices.Contains(r.env, want) {
			t.Errorf("env missing %q: %v", want, r.env)
		}
	}
}

func TestCommandNotifier_Error(t *testing.T) {
	r := &fakeRunner{err: errors.New("exit 1")}
	err := NewCommandNotifier("false", r).Notify(context.Background(), Notification{Kind: KindComplete})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestWriterNotifier(t *testing.T) {
	var buf bytes.Buffer
	err := WriterNotifier{W: &buf}.Notify(context.Background(), Notification{Issue: "PROJ-7", Kind: KindComplete, Body: "PR merged"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got := buf.String(); got != "work: PROJ-7 complete: PR merged\n" {
		t.Errorf("output = %q", got)
	}
}

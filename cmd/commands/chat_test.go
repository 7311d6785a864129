package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dohr-michael/jarvis/internal/dialog"
	"github.com/dohr-michael/jarvis/internal/heartbeat"
	"github.com/dohr-michael/jarvis/internal/intents"
	"github.com/dohr-michael/jarvis/internal/tasks"
)

func TestChatLoop(t *testing.T) {
	o := dialog.New(intents.NewClassifier(nil), tasks.NewStore(), dialog.Options{})
	calls := 0
	turn := func(u string) (dialog.Turn, error) {
		calls++
		return o.Turn(u), nil
	}
	summary := func() (string, error) { return o.Store().Summary(), nil }

	in := strings.NewReader("send email to john@example.com\n/tasks\nsubject is project update\n/quit\nnever reached\n")
	var out bytes.Buffer
	if err := chatLoop(context.Background(), in, &out, turn, summary, "> ", false); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"What should the subject line be? I have: to: john@example.com",
		"Active tasks:\n- email_send (pending): {to=john@example.com}",
		"Send email to john@example.com with subject 'project update' and content ''",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if !strings.HasPrefix(got, "> ") {
		t.Errorf("output should start with the prompt: %q", got)
	}
	if calls != 2 {
		t.Errorf("turns handled = %d, want 2 (loop must stop at /quit)", calls)
	}
}

func TestPrintStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.heartbeat")

	var buf bytes.Buffer
	if err := printStatus(&buf, path, time.Minute); err != nil {
		t.Fatalf("printStatus: %v", err)
	}
	if got := buf.String(); got != "Gateway: not running\n" {
		t.Errorf("dead status = %q", got)
	}

	w := heartbeat.NewWriter(path, "127.0.0.1:18421", time.Hour, func() int { return 2 })
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	buf.Reset()
	if err := printStatus(&buf, path, time.Minute); err != nil {
		t.Fatalf("printStatus: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "running on 127.0.0.1:18421") {
		t.Errorf("missing address in %q", out)
	}
	if !strings.Contains(out, "Sessions: 2") {
		t.Errorf("missing session count in %q", out)
	}
}

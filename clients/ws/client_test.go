package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dohr-michael/jarvis/internal/dialog"
	"github.com/dohr-michael/jarvis/internal/events"
	"github.com/dohr-michael/jarvis/internal/gateway"
	"github.com/dohr-michael/jarvis/internal/intents"
	"github.com/dohr-michael/jarvis/internal/sessions"
)

func startGateway(t *testing.T) string {
	t.Helper()
	bus := events.NewBus(64)
	classifier := intents.NewClassifier(nil)
	registry := sessions.NewRegistry(classifier, dialog.Options{Bus: bus})
	srv := gateway.NewServer(bus, registry, classifier, "localhost", 0)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		ts.Close()
		bus.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
}

func TestClient_Conversation(t *testing.T) {
	url := startGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	sid, err := c.OpenSession()
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if !strings.HasPrefix(sid, "sess_") {
		t.Errorf("session id = %q", sid)
	}

	var turn dialog.Turn
	if err := c.SendMessage(sid, "send email to john@example.com", &turn); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if turn.Result.Valid || turn.Intent != intents.EmailSend {
		t.Errorf("turn 1 = %+v", turn)
	}

	if err := c.SendMessage(sid, "subject is project update", &turn); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !turn.Result.Valid {
		t.Errorf("turn 2 should complete the email, missing %v", turn.Result.Missing)
	}

	var list struct {
		Summary string `json:"summary"`
	}
	if err := c.ListTasks(sid, &list); err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if list.Summary != "No active tasks." {
		t.Errorf("summary = %q", list.Summary)
	}
}

func TestClient_RequestError(t *testing.T) {
	url := startGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	err = c.SendMessage("sess_missing", "hi", nil)
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("err = %v, want ErrRequestFailed", err)
	}
}

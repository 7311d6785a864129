package dialog

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dohr-michael/jarvis/internal/events"
	"github.com/dohr-michael/jarvis/internal/intents"
	"github.com/dohr-michael/jarvis/internal/tasks"
)

var testNow = time.Date(2026, time.March, 8, 10, 30, 0, 0, time.UTC)

func newTestOrchestrator(opts Options) *Orchestrator {
	return New(intents.NewClassifier(intents.FixedClock(testNow)), tasks.NewStore(), opts)
}

func TestEmailFollowUp(t *testing.T) {
	o := newTestOrchestrator(Options{})

	first := o.Turn("send email to john@example.com")
	if first.Intent != intents.EmailSend {
		t.Fatalf("intent = %q, want %q", first.Intent, intents.EmailSend)
	}
	if first.Result.Valid {
		t.Fatal("expected first turn to be incomplete")
	}
	if diff := cmp.Diff([]string{"subject"}, first.Result.Missing); diff != "" {
		t.Errorf("missing mismatch (-want +got):\n%s", diff)
	}
	wantQ := "What should the subject line be? I have: to: john@example.com"
	if first.Reply != wantQ {
		t.Errorf("reply = %q, want %q", first.Reply, wantQ)
	}

	active := o.Store().Active("email_send")
	if len(active) != 1 {
		t.Fatalf("active email tasks = %d, want 1", len(active))
	}
	if _, ok := active[first.Result.TaskID]; !ok {
		t.Errorf("task %q not among active tasks", first.Result.TaskID)
	}

	second := o.Turn("subject is project update")
	if !second.FollowUp {
		t.Error("expected second turn to answer the pending task")
	}
	if !second.Result.Valid {
		t.Fatalf("expected second turn to complete the task, missing %v", second.Result.Missing)
	}
	wantFields := intents.Fields{"to": "john@example.com", "subject": "project update"}
	if diff := cmp.Diff(wantFields, second.Result.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	wantReply := "Send email to john@example.com with subject 'project update' and content ''"
	if second.Reply != wantReply {
		t.Errorf("reply = %q, want %q", second.Reply, wantReply)
	}

	task, ok := o.Store().Get(first.Result.TaskID)
	if !ok {
		t.Fatal("task disappeared")
	}
	if task.Status != tasks.TaskCompleted {
		t.Errorf("status = %q, want completed", task.Status)
	}
	if len(o.Store().Active("email_send")) != 0 {
		t.Error("completed task still reported active")
	}

	if n := o.Store().ClearCompleted(); n != 1 {
		t.Errorf("ClearCompleted = %d, want 1", n)
	}
	if _, ok := o.Store().Get(first.Result.TaskID); ok {
		t.Error("task still present after ClearCompleted")
	}
}

func TestNoRequiredSlotsIsValid(t *testing.T) {
	o := newTestOrchestrator(Options{})
	turn := o.Turn("what's the weather")
	if turn.Intent != intents.Weather {
		t.Fatalf("intent = %q, want weather", turn.Intent)
	}
	if !turn.Result.Valid {
		t.Error("weather should be valid without slots")
	}
	if len(turn.Result.Missing) != 0 {
		t.Errorf("missing = %v, want none", turn.Result.Missing)
	}
	if turn.Result.TaskID != "" {
		t.Errorf("task id = %q, want none", turn.Result.TaskID)
	}
	if n := len(o.Store().List()); n != 0 {
		t.Errorf("store holds %d tasks, want 0", n)
	}
	if turn.Reply != "Handle request: weather" {
		t.Errorf("reply = %q", turn.Reply)
	}
}

func TestCalendarSingleTurn(t *testing.T) {
	o := newTestOrchestrator(Options{})
	res := o.ValidateAndExtract("gym at 5", intents.CalendarCreate)
	if !res.Valid {
		t.Fatalf("expected valid, missing %v", res.Missing)
	}
	want := intents.Fields{"title": "gym", "time": "17:00"}
	if diff := cmp.Diff(want, res.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if got := Describe(res.Intent, res.Fields); got != "Create calendar event: title='gym', date='tomorrow', time='17:00'" {
		t.Errorf("Describe = %q", got)
	}
}

func TestValidateAndExtract_MultipleMissing(t *testing.T) {
	o := newTestOrchestrator(Options{})
	res := o.ValidateAndExtract("send an email", intents.EmailSend)
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	if diff := cmp.Diff([]string{"to", "subject"}, res.Missing); diff != "" {
		t.Errorf("missing mismatch (-want +got):\n%s", diff)
	}
	want := "I need a bit more information: Who should I send this email to? And What should the subject line be?"
	if res.Clarification != want {
		t.Errorf("clarification = %q, want %q", res.Clarification, want)
	}
	task, ok := o.Store().Get(res.TaskID)
	if !ok {
		t.Fatal("no task saved for incomplete request")
	}
	if task.Status != tasks.TaskPending {
		t.Errorf("status = %q, want pending", task.Status)
	}
}

func TestValidateAndExtract_BackfillFromActiveTask(t *testing.T) {
	o := newTestOrchestrator(Options{})
	first := o.ValidateAndExtract("send email to john@example.com", intents.EmailSend)
	if first.Valid {
		t.Fatal("expected first call to be incomplete")
	}

	second := o.ValidateAndExtract("subject is hello", intents.EmailSend)
	if !second.Valid {
		t.Fatalf("expected backfill to satisfy requirements, missing %v", second.Missing)
	}
	if second.TaskID != first.TaskID {
		t.Errorf("task id = %q, want %q", second.TaskID, first.TaskID)
	}
	if second.Fields["to"] != "john@example.com" {
		t.Errorf("to = %q, want backfilled address", second.Fields["to"])
	}

	// Becoming valid through backfill leaves the stored task untouched.
	task, _ := o.Store().Get(first.TaskID)
	if task.Status != tasks.TaskPending {
		t.Errorf("status = %q, want pending", task.Status)
	}
	if _, ok := task.Data["subject"]; ok {
		t.Error("stored task gained a subject")
	}
}

func TestValidateAndExtract_UpdatesActiveTask(t *testing.T) {
	o := newTestOrchestrator(Options{})
	first := o.ValidateAndExtract("tomorrow at 3pm", intents.CalendarCreate)
	if first.Valid {
		t.Fatal("expected missing title")
	}
	second := o.ValidateAndExtract("at 4pm", intents.CalendarCreate)
	if second.TaskID != first.TaskID {
		t.Errorf("second call created task %q, want update of %q", second.TaskID, first.TaskID)
	}
	task, _ := o.Store().Get(first.TaskID)
	if task.Status != tasks.TaskInProgress {
		t.Errorf("status = %q, want in_progress", task.Status)
	}
	if task.Data["time"] != "16:00" {
		t.Errorf("time = %q, want 16:00", task.Data["time"])
	}
	if task.Data["date"] != "2026-03-09" {
		t.Errorf("date = %q, want kept from first call", task.Data["date"])
	}
	if n := len(o.Store().List()); n != 1 {
		t.Errorf("store holds %d tasks, want 1", n)
	}
}

func TestCompleteTask_MergeKeepsEarlierFields(t *testing.T) {
	o := newTestOrchestrator(Options{})
	first := o.ValidateAndExtract("tomorrow at 3pm", intents.CalendarCreate)

	res, ok := o.CompleteTask(first.TaskID, "going to the dentist")
	if !ok {
		t.Fatal("CompleteTask reported no task")
	}
	if !res.Valid {
		t.Fatalf("expected valid, missing %v", res.Missing)
	}
	want := intents.Fields{"title": "dentist", "date": "2026-03-09", "time": "15:00"}
	if diff := cmp.Diff(want, res.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	task, _ := o.Store().Get(first.TaskID)
	if diff := cmp.Diff(map[string]string(want), task.Data); diff != "" {
		t.Errorf("stored data mismatch (-want +got):\n%s", diff)
	}
	if task.Status != tasks.TaskCompleted {
		t.Errorf("status = %q, want completed", task.Status)
	}

	if _, ok := o.CompleteTask(first.TaskID, "anything"); ok {
		t.Error("CompleteTask accepted an already completed task")
	}
	if _, ok := o.CompleteTask("task_missing", "anything"); ok {
		t.Error("CompleteTask accepted an unknown task")
	}
}

func TestCompleteTaskWithResponse_PartialAnswer(t *testing.T) {
	o := newTestOrchestrator(Options{})
	first := o.ValidateAndExtract("send an email", intents.EmailSend)

	res, ok := o.CompleteTaskWithResponse("it goes to bob@example.com")
	if !ok {
		t.Fatal("no pending task found")
	}
	if res.Valid {
		t.Fatal("expected subject to be still missing")
	}
	if diff := cmp.Diff([]string{"subject"}, res.Missing); diff != "" {
		t.Errorf("missing mismatch (-want +got):\n%s", diff)
	}
	want := "What should the subject line be? I have: to: bob@example.com"
	if res.Clarification != want {
		t.Errorf("clarification = %q, want %q", res.Clarification, want)
	}
	task, _ := o.Store().Get(first.TaskID)
	if task.Status != tasks.TaskInProgress {
		t.Errorf("status = %q, want in_progress", task.Status)
	}
}

func TestCompleteTaskWithResponse_NoPending(t *testing.T) {
	o := newTestOrchestrator(Options{})
	if _, ok := o.CompleteTaskWithResponse("subject is hi"); ok {
		t.Error("expected no pending task")
	}
}

func TestCompleteTaskWithResponse_PicksLatest(t *testing.T) {
	o := newTestOrchestrator(Options{})
	o.ValidateAndExtract("send an email", intents.EmailSend)
	cal := o.ValidateAndExtract("tomorrow at 3pm", intents.CalendarCreate)

	res, ok := o.CompleteTaskWithResponse("going to the gym")
	if !ok {
		t.Fatal("no pending task found")
	}
	if res.TaskID != cal.TaskID {
		t.Errorf("answered %q, want latest task %q", res.TaskID, cal.TaskID)
	}
}

func TestTurn_Cancel(t *testing.T) {
	o := newTestOrchestrator(Options{})
	first := o.Turn("send email to john@example.com")

	turn := o.Turn("Never mind.")
	if !turn.Cancelled {
		t.Fatal("expected cancellation")
	}
	if turn.Reply != "Okay, I've dropped the email send request." {
		t.Errorf("reply = %q", turn.Reply)
	}
	task, _ := o.Store().Get(first.Result.TaskID)
	if task.Status != tasks.TaskFailed {
		t.Errorf("status = %q, want failed", task.Status)
	}
	if task.Reason == "" {
		t.Error("failed task has no reason")
	}
}

func TestTurn_CancelWithoutPendingClassifies(t *testing.T) {
	o := newTestOrchestrator(Options{})
	turn := o.Turn("cancel")
	if turn.Cancelled {
		t.Error("nothing to cancel, but turn reported cancellation")
	}
	if turn.FollowUp {
		t.Error("unexpected follow-up")
	}
}

func TestTurn_CustomCancelPhrases(t *testing.T) {
	o := newTestOrchestrator(Options{CancelPhrases: []string{"abort"}})
	o.Turn("send email to john@example.com")
	if turn := o.Turn("abort"); !turn.Cancelled {
		t.Error("custom phrase did not cancel")
	}
}

func TestTurn_PublishesEvents(t *testing.T) {
	bus := events.NewBus(32)
	defer bus.Close()
	ch, unsub := bus.SubscribeChan(8, events.EventTurnHandled)
	defer unsub()

	o := newTestOrchestrator(Options{Bus: bus, SessionID: "sess_test"})
	o.Turn("send email to john@example.com")

	select {
	case e := <-ch:
		if e.SessionID != "sess_test" {
			t.Errorf("session = %q, want sess_test", e.SessionID)
		}
		p, ok := events.ExtractPayload[events.TurnPayload](e)
		if !ok {
			t.Fatal("could not decode turn payload")
		}
		if p.Intent != "email_send" || p.Valid {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for turn event")
	}
}

func TestOrchestrator_PhrasebookOverride(t *testing.T) {
	pb := Phrasebook{intents.EmailSend: {"subject": "What's it about?"}}
	o := newTestOrchestrator(Options{Phrasebook: pb})
	turn := o.Turn("send email to john@example.com")
	if want := "What's it about? I have: to: john@example.com"; turn.Reply != want {
		t.Errorf("reply = %q, want %q", turn.Reply, want)
	}
}

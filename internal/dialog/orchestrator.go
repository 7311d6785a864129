package dialog

import (
	"log/slog"
	"strings"

	"github.com/dohr-michael/jarvis/internal/events"
	"github.com/dohr-michael/jarvis/internal/intents"
	"github.com/dohr-michael/jarvis/internal/tasks"
)

// DefaultCancelPhrases abandon the pending task when a turn matches one exactly.
var DefaultCancelPhrases = []string{"cancel", "never mind", "nevermind", "forget it", "stop"}

// Options configures an Orchestrator. Every field is optional.
type Options struct {
	Bus           *events.Bus // lifecycle events are published here when set
	SessionID     string      // stamped on published events
	Phrasebook    Phrasebook
	CancelPhrases []string // nil uses DefaultCancelPhrases
}

// Orchestrator turns utterances into clarifications or complete tasks. It borrows
// the store on each call and keeps no task state of its own.
//
// An Orchestrator is not safe for concurrent use; see sessions.Registry.
type Orchestrator struct {
	classifier *intents.Classifier
	store      *tasks.Store
	bus        *events.Bus
	sessionID  string
	phrases    Phrasebook
	cancel     []string
}

// New creates an Orchestrator over classifier and store.
func New(classifier *intents.Classifier, store *tasks.Store, opts Options) *Orchestrator {
	cancel := opts.CancelPhrases
	if cancel == nil {
		cancel = DefaultCancelPhrases
	}
	return &Orchestrator{
		classifier: classifier,
		store:      store,
		bus:        opts.Bus,
		sessionID:  opts.SessionID,
		phrases:    opts.Phrasebook,
		cancel:     cancel,
	}
}

// Store returns the task store the orchestrator works on.
func (o *Orchestrator) Store() *tasks.Store { return o.store }

// ValidateAndExtract extracts slots for intent from utterance and checks them
// against the intent's required slots, backfilling from an active task of the
// same type. When something is still missing the partial state is saved to that
// task (or a new one) and a clarification is returned.
func (o *Orchestrator) ValidateAndExtract(utterance string, intent intents.Intent) Result {
	fields := o.classifier.ExtractFields(utterance, intent)
	missing := missingSlots(intent, fields)

	active, hasActive := o.store.LatestActive(string(intent))
	backfilled := false
	if hasActive && len(missing) > 0 {
		still := missing[:0]
		for _, slot := range missing {
			if v := active.Data[slot]; v != "" {
				fields[slot] = v
				backfilled = true
				continue
			}
			still = append(still, slot)
		}
		missing = still
	}

	res := Result{Intent: intent, Fields: fields, Missing: missing}
	if hasActive && (backfilled || len(missing) > 0) {
		res.TaskID = active.ID
	}
	if len(missing) == 0 {
		res.Valid = true
		res.Missing = []string{}
		return res
	}

	res.Clarification = o.phrases.Clarify(intent, missing, fields)
	if hasActive {
		o.store.Update(active.ID, tasks.TaskInProgress, fields)
		o.publishTask(events.EventTaskUpdated, active.ID)
	} else {
		t := o.store.Create("", string(intent), fields)
		res.TaskID = t.ID
		slog.Info("task created", "id", t.ID, "type", intent, "missing", missing)
		o.publishTask(events.EventTaskCreated, t.ID)
	}
	o.publishClarification(res)
	return res
}

// CompleteTaskWithResponse treats utterance as the answer to the most recently
// created active task. It reports false when no task is waiting.
func (o *Orchestrator) CompleteTaskWithResponse(utterance string) (Result, bool) {
	t, ok := o.store.LatestActive("")
	if !ok {
		return Result{}, false
	}
	return o.answer(t, utterance), true
}

// CompleteTask is CompleteTaskWithResponse for an explicit task. It reports
// false when the task is unknown or no longer active.
func (o *Orchestrator) CompleteTask(taskID, utterance string) (Result, bool) {
	t, ok := o.store.Get(taskID)
	if !ok || !t.Status.Active() {
		return Result{}, false
	}
	return o.answer(t, utterance), true
}

func (o *Orchestrator) answer(t *tasks.Task, utterance string) Result {
	intent := intents.Intent(t.Type)
	fresh := o.classifier.ExtractFields(utterance, intent)

	merged := intents.Fields(t.Data).Clone()
	for k, v := range fresh {
		merged[k] = v
	}
	missing := missingSlots(intent, merged)

	res := Result{Intent: intent, TaskID: t.ID, Fields: merged, Missing: missing}
	if len(missing) > 0 {
		o.store.Update(t.ID, tasks.TaskInProgress, fresh)
		res.Clarification = o.phrases.Clarify(intent, missing, merged)
		o.publishTask(events.EventTaskUpdated, t.ID)
		o.publishClarification(res)
		return res
	}

	o.store.Update(t.ID, "", fresh)
	o.store.Complete(t.ID, nil)
	slog.Info("task completed", "id", t.ID, "type", intent)
	o.publishTask(events.EventTaskCompleted, t.ID)

	res.Valid = true
	res.Missing = []string{}
	return res
}

// Cancel fails the most recent active task. It reports false when none is waiting.
func (o *Orchestrator) Cancel(reason string) (*tasks.Task, bool) {
	t, ok := o.store.LatestActive("")
	if !ok {
		return nil, false
	}
	o.store.Fail(t.ID, reason)
	slog.Info("task cancelled", "id", t.ID, "type", t.Type)
	o.publishTask(events.EventTaskFailed, t.ID)
	return t, true
}

// Turn handles one conversational turn: a cancel phrase abandons the pending
// task, any other utterance first answers a pending task and otherwise is
// classified as a new command.
func (o *Orchestrator) Turn(utterance string) Turn {
	turn := Turn{Utterance: utterance}

	if o.isCancel(utterance) {
		if t, ok := o.Cancel("cancelled by user"); ok {
			turn.Cancelled = true
			turn.Intent = intents.Intent(t.Type)
			turn.Result = Result{Intent: turn.Intent, TaskID: t.ID, Missing: []string{}, Fields: intents.Fields(t.Data)}
			turn.Reply = "Okay, I've dropped the " + strings.ReplaceAll(t.Type, "_", " ") + " request."
			o.publishTurn(turn)
			return turn
		}
	}

	if res, ok := o.CompleteTaskWithResponse(utterance); ok {
		turn.FollowUp = true
		turn.Intent = res.Intent
		turn.Result = res
	} else {
		turn.Intent, turn.Confidence = o.classifier.Classify(utterance)
		slog.Debug("intent classified", "intent", turn.Intent, "confidence", turn.Confidence)
		o.publish(events.IntentClassifiedPayload{
			Utterance:  utterance,
			Intent:     string(turn.Intent),
			Confidence: turn.Confidence,
		})
		turn.Result = o.ValidateAndExtract(utterance, turn.Intent)
	}

	if turn.Result.Valid {
		turn.Reply = Describe(turn.Intent, turn.Result.Fields)
	} else {
		turn.Reply = turn.Result.Clarification
	}
	o.publishTurn(turn)
	return turn
}

func (o *Orchestrator) isCancel(utterance string) bool {
	u := strings.Trim(strings.ToLower(strings.TrimSpace(utterance)), ".!")
	for _, p := range o.cancel {
		if u == p {
			return true
		}
	}
	return false
}

// missingSlots lists required slots that are absent or empty, in requirement order.
func missingSlots(intent intents.Intent, f intents.Fields) []string {
	var missing []string
	for _, slot := range intents.RequiredSlots(intent) {
		if f[slot] == "" {
			missing = append(missing, slot)
		}
	}
	return missing
}

func (o *Orchestrator) publish(p events.EventPayload) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.NewTypedEvent(events.SourceDialog, o.sessionID, p))
}

func (o *Orchestrator) publishTask(kind events.EventType, id string) {
	if o.bus == nil {
		return
	}
	t, ok := o.store.Get(id)
	if !ok {
		return
	}
	o.publish(events.TaskPayload{
		Kind:   kind,
		TaskID: t.ID,
		Intent: t.Type,
		Status: string(t.Status),
		Fields: t.Data,
		Reason: t.Reason,
	})
}

func (o *Orchestrator) publishClarification(r Result) {
	o.publish(events.ClarificationPayload{
		TaskID:        r.TaskID,
		Intent:        string(r.Intent),
		Missing:       r.Missing,
		Fields:        r.Fields,
		Clarification: r.Clarification,
	})
}

func (o *Orchestrator) publishTurn(t Turn) {
	o.publish(events.TurnPayload{
		Utterance:     t.Utterance,
		Intent:        string(t.Intent),
		Confidence:    t.Confidence,
		FollowUp:      t.FollowUp,
		Valid:         t.Result.Valid,
		TaskID:        t.Result.TaskID,
		Fields:        t.Result.Fields,
		Missing:       t.Result.Missing,
		Clarification: t.Result.Clarification,
	})
}

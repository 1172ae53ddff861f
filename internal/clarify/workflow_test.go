package clarify

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/benvon/gtd/internal/models"
)

func strPtr(s string) *string { return &s }
func int64Ptr(v int64) *int64 { return &v }

func newTaskItem() TaskItem {
	return TaskItem{Task: &models.Task{ID: 11, Title: "Quarterly plan", Description: strPtr("from the offsite"), Status: models.TaskStatusInbox}}
}

func newEmailItem() EmailItem {
	return EmailItem{Email: &models.Email{ID: 42, Subject: "Vendor quote", Content: "Please call us back about the quote.", Folder: models.FolderInbox}}
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}
}

func TestScenarioTaskTrash(t *testing.T) {
	t.Parallel()
	w := New(newTaskItem())
	mustOK(t, w.AnswerActionable(false))
	if w.Step() != StepNonActionable {
		t.Fatalf("Expected step %s, got %s", StepNonActionable, w.Step())
	}
	mustOK(t, w.ChooseNonActionable(ChoiceTrash))

	res, ok := w.Result()
	if !ok {
		t.Fatal("Expected a result")
	}
	if res.Action != ActionTrash || res.Details != nil || res.CreateProject != nil {
		t.Errorf("Expected bare trash result, got %+v", res)
	}

	task := &models.Task{Status: models.TaskStatusInbox}
	res.ApplyToTask(task, time.Now())
	if task.Status != models.TaskStatusTrash {
		t.Errorf("Expected status trash, got %s", task.Status)
	}
}

func TestScenarioEmailNextAction(t *testing.T) {
	t.Parallel()
	item := newEmailItem()
	w := New(item, WithContexts([]*models.Context{{ID: 1, Name: "@home"}, {ID: 2, Name: "@work"}}))

	mustOK(t, w.AnswerActionable(true))
	mustOK(t, w.SubmitNextAction("Call vendor"))
	mustOK(t, w.AnswerTwoMinute(false))
	mustOK(t, w.AnswerDelegate(false))
	mustOK(t, w.AnswerProject(false))
	est := models.TimeEstimate30Min
	mustOK(t, w.SubmitOrganize(Organize{ContextID: int64Ptr(2), TimeEstimate: &est}))

	res, ok := w.Result()
	if !ok {
		t.Fatal("Expected a result")
	}
	if res.Action != ActionNextAction {
		t.Fatalf("Expected action next-action, got %s", res.Action)
	}
	if res.CreateProject != nil {
		t.Errorf("Expected no project request, got %+v", res.CreateProject)
	}
	d, ok := res.Details.(NextActionDetails)
	if !ok {
		t.Fatalf("Expected NextActionDetails, got %T", res.Details)
	}
	if d.Title != "Call vendor" {
		t.Errorf("Expected title 'Call vendor', got %q", d.Title)
	}
	if d.ContextID == nil || *d.ContextID != 2 {
		t.Errorf("Expected context 2, got %v", d.ContextID)
	}
	if d.TimeEstimate == nil || *d.TimeEstimate != models.TimeEstimate30Min {
		t.Errorf("Expected time estimate 30min, got %v", d.TimeEstimate)
	}
	if d.Description == nil || *d.Description != item.Email.Content {
		t.Errorf("Expected description to be the email content, got %v", d.Description)
	}
	if d.EmailID == nil || *d.EmailID != 42 {
		t.Errorf("Expected email id 42, got %v", d.EmailID)
	}

	task := res.NewTask(time.Now())
	if task == nil {
		t.Fatal("Expected a new task")
	}
	if task.Status != models.TaskStatusNextAction || task.Title != "Call vendor" {
		t.Errorf("Unexpected new task %+v", task)
	}
	if err := res.Validate(); err != nil {
		t.Errorf("Expected emitted result to validate, got %v", err)
	}
}

func TestScenarioDelegate(t *testing.T) {
	t.Parallel()
	w := New(newTaskItem())
	followUp := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	mustOK(t, w.AnswerActionable(true))
	mustOK(t, w.SubmitNextAction("Draft proposal"))
	mustOK(t, w.AnswerTwoMinute(false))
	mustOK(t, w.AnswerDelegate(true))
	mustOK(t, w.SubmitDelegate("Alice", &followUp))

	res, ok := w.Result()
	if !ok {
		t.Fatal("Expected a result")
	}
	d, ok := res.Details.(WaitingDetails)
	if res.Action != ActionDelegate || !ok {
		t.Fatalf("Expected delegate with WaitingDetails, got %s %T", res.Action, res.Details)
	}
	if d.Title != "Draft proposal" || d.WaitingFor != "Alice" || !d.FollowUp.Equal(followUp) {
		t.Errorf("Unexpected waiting details %+v", d)
	}
	if d.EmailID != nil {
		t.Errorf("Expected no email id for a task item, got %v", *d.EmailID)
	}

	task := &models.Task{ID: 11, Title: "Quarterly plan", Status: models.TaskStatusInbox, ReferenceCategory: strPtr("stale")}
	res.ApplyToTask(task, time.Now())
	if task.Status != models.TaskStatusWaiting {
		t.Errorf("Expected status waiting, got %s", task.Status)
	}
	if task.WaitingFor == nil || *task.WaitingFor != "Alice" {
		t.Errorf("Expected waiting_for Alice, got %v", task.WaitingFor)
	}
	if task.WaitingForFollowUp == nil || !task.WaitingForFollowUp.Equal(followUp) {
		t.Errorf("Expected follow-up %v, got %v", followUp, task.WaitingForFollowUp)
	}
	if task.ReferenceCategory != nil {
		t.Errorf("Expected reference category cleared, got %v", *task.ReferenceCategory)
	}
}

func TestDoNow(t *testing.T) {
	t.Parallel()
	w := New(newTaskItem())
	mustOK(t, w.AnswerActionable(true))
	mustOK(t, w.SubmitNextAction("Reply yes"))
	mustOK(t, w.AnswerTwoMinute(true))

	res, ok := w.Result()
	if !ok || res.Action != ActionDoNow {
		t.Fatalf("Expected do-now, got %+v", res)
	}
	task := &models.Task{Status: models.TaskStatusInbox}
	now := time.Now()
	res.ApplyToTask(task, now)
	if task.Status != models.TaskStatusDone || task.CompletedAt == nil {
		t.Errorf("Expected done with completion time, got %+v", task)
	}
}

func TestReferenceAndSomeday(t *testing.T) {
	t.Parallel()

	w := New(newTaskItem())
	mustOK(t, w.AnswerActionable(false))
	mustOK(t, w.ChooseNonActionable(ChoiceReference))
	mustOK(t, w.SubmitReference("  manuals "))
	res, _ := w.Result()
	ref, ok := res.Details.(ReferenceDetails)
	if res.Action != ActionReference || !ok || ref.Category == nil || *ref.Category != "manuals" {
		t.Errorf("Unexpected reference result %+v", res)
	}

	w = New(newTaskItem())
	mustOK(t, w.AnswerActionable(false))
	mustOK(t, w.ChooseNonActionable(ChoiceSomeday))
	mustOK(t, w.SubmitSomeday(""))
	res, _ = w.Result()
	sd, ok := res.Details.(SomedayDetails)
	if res.Action != ActionSomeday || !ok || sd.Notes != nil {
		t.Errorf("Unexpected someday result %+v", res)
	}
}

func TestSubmitWithoutSubChoice(t *testing.T) {
	t.Parallel()
	w := New(newTaskItem())
	mustOK(t, w.AnswerActionable(false))
	if err := w.SubmitReference("x"); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Expected ErrWrongStep, got %v", err)
	}
	mustOK(t, w.ChooseNonActionable(ChoiceSomeday))
	if err := w.SubmitReference("x"); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Expected ErrWrongStep for reference after someday, got %v", err)
	}
	if err := w.ChooseNonActionable("archive"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestBackFromSubChoiceStaysOnNonActionable(t *testing.T) {
	t.Parallel()
	for _, choice := range []Choice{ChoiceReference, ChoiceSomeday} {
		t.Run(string(choice), func(t *testing.T) {
			t.Parallel()
			w := New(newTaskItem())
			mustOK(t, w.AnswerActionable(false))
			mustOK(t, w.ChooseNonActionable(choice))
			historyBefore := len(w.History())

			mustOK(t, w.Back())
			if w.Step() != StepNonActionable {
				t.Errorf("Expected step %s, got %s", StepNonActionable, w.Step())
			}
			if w.Choice() != ChoiceNone {
				t.Errorf("Expected no sub-choice, got %q", w.Choice())
			}
			if len(w.History()) != historyBefore {
				t.Errorf("Expected history unchanged at %d, got %d", historyBefore, len(w.History()))
			}

			mustOK(t, w.Back())
			if w.Step() != StepActionable {
				t.Errorf("Expected second Back to reach %s, got %s", StepActionable, w.Step())
			}
		})
	}
}

func TestBackPopsExactlyOneEntry(t *testing.T) {
	t.Parallel()
	w := New(newTaskItem())
	mustOK(t, w.AnswerActionable(true))
	mustOK(t, w.SubmitNextAction("Write outline"))
	mustOK(t, w.AnswerTwoMinute(false))
	mustOK(t, w.AnswerDelegate(false))
	mustOK(t, w.AnswerProject(true))
	mustOK(t, w.SubmitProject("Launch site", ""))

	want := []Step{StepProjectForm, StepProjectChoice, StepDelegateChoice, StepTwoMinute, StepNextAction, StepActionable}
	for _, step := range want {
		before := len(w.History())
		mustOK(t, w.Back())
		if w.Step() != step {
			t.Fatalf("Expected step %s after Back, got %s", step, w.Step())
		}
		if len(w.History()) != before-1 {
			t.Fatalf("Expected history %d, got %d", before-1, len(w.History()))
		}
	}
	if err := w.Back(); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Expected ErrWrongStep at the initial step, got %v", err)
	}
}

func TestNextActionMinimumLength(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text    string
		wantErr bool
	}{
		{"", true},
		{"ab", true},
		{"  ab  ", true},
		{"abc", false},
		{"Call vendor", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			w := New(newTaskItem())
			mustOK(t, w.AnswerActionable(true))
			err := w.SubmitNextAction(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("Expected ErrInvalidInput, got %v", err)
				}
				if w.Step() != StepNextAction {
					t.Errorf("Expected to stay on %s, got %s", StepNextAction, w.Step())
				}
				return
			}
			mustOK(t, err)
			if w.Step() != StepTwoMinute {
				t.Errorf("Expected %s, got %s", StepTwoMinute, w.Step())
			}
		})
	}
}

func TestDelegateFormRequiresBothFields(t *testing.T) {
	t.Parallel()
	followUp := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		waitingFor string
		followUp   *time.Time
		wantErr    bool
	}{
		{"both present", "Alice", &followUp, false},
		{"missing name", "", &followUp, true},
		{"blank name", "   ", &followUp, true},
		{"missing date", "Alice", nil, true},
		{"zero date", "Alice", &time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := New(newTaskItem())
			mustOK(t, w.AnswerActionable(true))
			mustOK(t, w.SubmitNextAction("Draft proposal"))
			mustOK(t, w.AnswerTwoMinute(false))
			mustOK(t, w.AnswerDelegate(true))

			err := w.SubmitDelegate(tt.waitingFor, tt.followUp)
			_, emitted := w.Result()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("Expected ErrInvalidInput, got %v", err)
				}
				if emitted || w.Step() != StepDelegateForm {
					t.Errorf("Expected no result and step %s, got emitted=%v step=%s", StepDelegateForm, emitted, w.Step())
				}
				return
			}
			mustOK(t, err)
			if !emitted {
				t.Error("Expected a result")
			}
		})
	}
}

func TestProjectFormAndPendingProject(t *testing.T) {
	t.Parallel()
	w := New(newTaskItem())
	mustOK(t, w.AnswerActionable(true))
	mustOK(t, w.SubmitNextAction("Book venue"))
	mustOK(t, w.AnswerTwoMinute(false))
	mustOK(t, w.AnswerDelegate(false))
	mustOK(t, w.AnswerProject(true))
	if err := w.SubmitProject("ab", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput for short project name, got %v", err)
	}
	mustOK(t, w.SubmitProject("Team offsite", "Q3 planning"))
	if err := w.SubmitOrganize(Organize{ProjectID: int64Ptr(3)}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput when choosing a project with one pending, got %v", err)
	}
	mustOK(t, w.SubmitOrganize(Organize{}))

	res, _ := w.Result()
	if res.CreateProject == nil || res.CreateProject.Name != "Team offsite" {
		t.Fatalf("Expected project request, got %+v", res.CreateProject)
	}
	if res.CreateProject.Description == nil || *res.CreateProject.Description != "Q3 planning" {
		t.Errorf("Expected project description, got %v", res.CreateProject.Description)
	}

	withID := res.WithProjectID(99)
	d := withID.Details.(NextActionDetails)
	if d.ProjectID == nil || *d.ProjectID != 99 {
		t.Errorf("Expected project id 99, got %v", d.ProjectID)
	}
	if orig := res.Details.(NextActionDetails); orig.ProjectID != nil {
		t.Error("Expected WithProjectID to leave the original untouched")
	}
}

func TestAnswerProjectNoClearsPendingProject(t *testing.T) {
	t.Parallel()
	w := New(newTaskItem())
	mustOK(t, w.AnswerActionable(true))
	mustOK(t, w.SubmitNextAction("Book venue"))
	mustOK(t, w.AnswerTwoMinute(false))
	mustOK(t, w.AnswerDelegate(false))
	mustOK(t, w.AnswerProject(true))
	mustOK(t, w.SubmitProject("Team offsite", ""))
	mustOK(t, w.Back())
	mustOK(t, w.Back())
	mustOK(t, w.AnswerProject(false))
	mustOK(t, w.SubmitOrganize(Organize{}))

	res, _ := w.Result()
	if res.CreateProject != nil {
		t.Errorf("Expected no project request after answering no, got %+v", res.CreateProject)
	}
}

func TestOrganizeRejectsUnknownContext(t *testing.T) {
	t.Parallel()
	w := New(newTaskItem(), WithContexts([]*models.Context{{ID: 1}}), WithProjects([]*models.Project{{ID: 5, IsActive: true}, {ID: 6}}))
	mustOK(t, w.AnswerActionable(true))
	mustOK(t, w.SubmitNextAction("Pick paint"))
	mustOK(t, w.AnswerTwoMinute(false))
	mustOK(t, w.AnswerDelegate(false))
	mustOK(t, w.AnswerProject(false))

	if err := w.SubmitOrganize(Organize{ContextID: int64Ptr(9)}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for unknown context, got %v", err)
	}
	if err := w.SubmitOrganize(Organize{ProjectID: int64Ptr(6)}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for inactive project, got %v", err)
	}
	bad := models.TimeEstimate("3hr")
	if err := w.SubmitOrganize(Organize{TimeEstimate: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for bad estimate, got %v", err)
	}
	mustOK(t, w.SubmitOrganize(Organize{ContextID: int64Ptr(1), ProjectID: int64Ptr(5)}))
}

func TestExactlyOneResultPerRun(t *testing.T) {
	t.Parallel()
	w := New(newTaskItem())
	mustOK(t, w.AnswerActionable(false))
	mustOK(t, w.ChooseNonActionable(ChoiceTrash))
	first, _ := w.Result()

	calls := []func() error{
		func() error { return w.AnswerActionable(true) },
		func() error { return w.ChooseNonActionable(ChoiceTrash) },
		func() error { return w.SubmitNextAction("Another one") },
		func() error { return w.Back() },
	}
	for i, call := range calls {
		if err := call(); !errors.Is(err, ErrFinished) {
			t.Errorf("call %d: Expected ErrFinished, got %v", i, err)
		}
	}
	second, _ := w.Result()
	if first.Action != second.Action {
		t.Errorf("Expected result to stay %s, got %s", first.Action, second.Action)
	}
	if !w.Finished() {
		t.Error("Expected workflow to be finished")
	}
	if len(w.History()) != 0 || w.NextAction() != "" || w.PendingProject() != nil {
		t.Error("Expected transient state cleared after emission")
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	w := New(newTaskItem())
	mustOK(t, w.AnswerActionable(true))
	mustOK(t, w.SubmitNextAction("Anything"))
	w.Cancel()
	if _, ok := w.Result(); ok {
		t.Error("Expected no result after cancel")
	}
	if err := w.AnswerTwoMinute(true); !errors.Is(err, ErrFinished) {
		t.Errorf("Expected ErrFinished, got %v", err)
	}
}

func TestWrongStep(t *testing.T) {
	t.Parallel()
	w := New(newTaskItem())
	if err := w.AnswerTwoMinute(true); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Expected ErrWrongStep, got %v", err)
	}
	if err := w.SubmitOrganize(Organize{}); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Expected ErrWrongStep, got %v", err)
	}
	if w.Step() != StepActionable {
		t.Errorf("Expected state unchanged, got %s", w.Step())
	}
}

func TestItemVariants(t *testing.T) {
	t.Parallel()
	var items = []Item{newTaskItem(), newEmailItem(), EmailItem{Email: &models.Email{ID: 1}}}
	for _, item := range items {
		switch it := item.(type) {
		case TaskItem:
			if it.EmailID() != nil || it.Origin() != "task" {
				t.Errorf("Unexpected task item accessors")
			}
		case EmailItem:
			if it.EmailID() == nil || *it.EmailID() != it.Email.ID || it.Origin() != "email" {
				t.Errorf("Unexpected email item accessors")
			}
			if it.Email.Subject == "" && it.Title() != "(no subject)" {
				t.Errorf("Expected placeholder title, got %q", it.Title())
			}
			if it.Email.Content == "" && it.Description() != nil {
				t.Error("Expected nil description for empty content")
			}
		}
	}
}

func TestResultJSON(t *testing.T) {
	t.Parallel()
	due := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	est := models.TimeEstimate1Hr
	res := Result{
		Action: ActionNextAction,
		Details: NextActionDetails{
			Title:        "Call vendor",
			ContextID:    int64Ptr(2),
			TimeEstimate: &est,
			DueDate:      &due,
			EmailID:      int64Ptr(42),
		},
		CreateProject: &ProjectRequest{Name: "Vendor switch"},
	}
	data, err := json.Marshal(res)
	mustOK(t, err)

	var raw map[string]any
	mustOK(t, json.Unmarshal(data, &raw))
	if raw["action"] != "next-action" {
		t.Errorf("Expected action next-action, got %v", raw["action"])
	}
	task, ok := raw["task"].(map[string]any)
	if !ok {
		t.Fatalf("Expected task object, got %v", raw["task"])
	}
	if task["status"] != "next_action" || task["due_date"] != "2025-02-01" || task["time_estimate"] != "1hr" {
		t.Errorf("Unexpected task payload %v", task)
	}
	if _, ok := raw["create_project"].(map[string]any); !ok {
		t.Errorf("Expected create_project object, got %v", raw["create_project"])
	}

	var back Result
	mustOK(t, json.Unmarshal(data, &back))
	d, ok := back.Details.(NextActionDetails)
	if !ok || d.DueDate == nil || !d.DueDate.Equal(due) || *d.ContextID != 2 {
		t.Errorf("Unexpected decoded details %+v", back.Details)
	}

	trash, err := json.Marshal(Result{Action: ActionTrash})
	mustOK(t, err)
	if string(trash) != `{"action":"trash"}` {
		t.Errorf("Expected bare trash JSON, got %s", trash)
	}
}

func TestResultUnmarshalErrors(t *testing.T) {
	t.Parallel()
	tests := []string{
		`{"action":"explode"}`,
		`{"action":"delegate"}`,
		`{"action":"next-action"}`,
		`{"action":"delegate","task":{"title":"x","waiting_for":"Bob","waiting_for_follow_up":"soon"}}`,
		`{"action":"next-action","task":{"title":"abc","due_date":"tomorrow"}}`,
	}
	for _, body := range tests {
		var r Result
		if err := json.Unmarshal([]byte(body), &r); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Unmarshal(%s): expected ErrInvalidInput, got %v", body, err)
		}
	}
}

func TestResultValidate(t *testing.T) {
	t.Parallel()
	followUp := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	bad := models.EnergyLevel("huge")
	tests := []struct {
		name    string
		res     Result
		wantErr bool
	}{
		{"trash", Result{Action: ActionTrash}, false},
		{"defer", DeferResult(), false},
		{"trash with payload", Result{Action: ActionTrash, Details: SomedayDetails{}}, true},
		{"do-now with project", Result{Action: ActionDoNow, CreateProject: &ProjectRequest{Name: "Big one"}}, true},
		{"reference", Result{Action: ActionReference, Details: ReferenceDetails{}}, false},
		{"reference mismatched", Result{Action: ActionReference, Details: SomedayDetails{}}, true},
		{"someday missing payload", Result{Action: ActionSomeday}, true},
		{"delegate ok", Result{Action: ActionDelegate, Details: WaitingDetails{Title: "Draft", WaitingFor: "Alice", FollowUp: followUp}}, false},
		{"delegate no follow-up", Result{Action: ActionDelegate, Details: WaitingDetails{Title: "Draft", WaitingFor: "Alice"}}, true},
		{"delegate no name", Result{Action: ActionDelegate, Details: WaitingDetails{Title: "Draft", FollowUp: followUp}}, true},
		{"next-action short", Result{Action: ActionNextAction, Details: NextActionDetails{Title: "ab"}}, true},
		{"next-action bad energy", Result{Action: ActionNextAction, Details: NextActionDetails{Title: "abc", EnergyLevel: &bad}}, true},
		{"next-action short project", Result{Action: ActionNextAction, Details: NextActionDetails{Title: "abc"}, CreateProject: &ProjectRequest{Name: "x"}}, true},
		{"next-action both projects", Result{Action: ActionNextAction, Details: NextActionDetails{Title: "abc", ProjectID: int64Ptr(1)}, CreateProject: &ProjectRequest{Name: "xyz"}}, true},
		{"unknown", Result{Action: "later"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.res.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestDeferApply(t *testing.T) {
	t.Parallel()
	task := &models.Task{Status: models.TaskStatusInbox, DeferCount: 2}
	DeferResult().ApplyToTask(task, time.Now())
	if task.DeferCount != 3 || task.Status != models.TaskStatusInbox {
		t.Errorf("Expected defer count 3 and status inbox, got %d %s", task.DeferCount, task.Status)
	}
	if DeferResult().NewTask(time.Now()) != nil {
		t.Error("Expected defer to create no task")
	}
}

func TestApplyToTaskPatchesOnlyGivenFields(t *testing.T) {
	t.Parallel()

	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	energy := models.EnergyLow
	est := models.TimeEstimate1Hr
	saved := func() *models.Task {
		return &models.Task{
			ID:          5,
			Title:       "Garden",
			Status:      models.TaskStatusInbox,
			ProjectID:   int64Ptr(3),
			ContextID:   int64Ptr(1),
			DueDate:     &due,
			EnergyLevel: &energy,
			Notes:       strPtr("compost first"),
			Description: strPtr("north bed"),
		}
	}

	t.Run("next action keeps blanks", func(t *testing.T) {
		t.Parallel()
		task := saved()
		Result{Action: ActionNextAction, Details: NextActionDetails{Title: "Buy seeds", TimeEstimate: &est}}.ApplyToTask(task, time.Now())
		if task.ProjectID == nil || *task.ProjectID != 3 || task.ContextID == nil || *task.ContextID != 1 {
			t.Errorf("Expected project 3 and context 1 kept, got %v %v", task.ProjectID, task.ContextID)
		}
		if task.DueDate == nil || !task.DueDate.Equal(due) || task.EnergyLevel == nil || *task.EnergyLevel != energy {
			t.Errorf("Expected due date and energy kept, got %v %v", task.DueDate, task.EnergyLevel)
		}
		if task.Description == nil || *task.Description != "north bed" {
			t.Errorf("Expected description kept, got %v", task.Description)
		}
		if task.TimeEstimate == nil || *task.TimeEstimate != est {
			t.Errorf("Expected estimate %s, got %v", est, task.TimeEstimate)
		}
	})

	t.Run("next action overrides given fields", func(t *testing.T) {
		t.Parallel()
		task := saved()
		Result{Action: ActionNextAction, Details: NextActionDetails{Title: "Buy seeds", ContextID: int64Ptr(2)}}.ApplyToTask(task, time.Now())
		if task.ContextID == nil || *task.ContextID != 2 {
			t.Errorf("Expected context 2, got %v", task.ContextID)
		}
	})

	t.Run("someday keeps notes", func(t *testing.T) {
		t.Parallel()
		task := saved()
		Result{Action: ActionSomeday, Details: SomedayDetails{}}.ApplyToTask(task, time.Now())
		if task.Status != models.TaskStatusSomeday {
			t.Errorf("Expected status someday, got %s", task.Status)
		}
		if task.Notes == nil || *task.Notes != "compost first" {
			t.Errorf("Expected notes kept, got %v", task.Notes)
		}
	})

	t.Run("delegate keeps description", func(t *testing.T) {
		t.Parallel()
		task := saved()
		Result{Action: ActionDelegate, Details: WaitingDetails{Title: "Ask Sam", WaitingFor: "Sam", FollowUp: due}}.ApplyToTask(task, time.Now())
		if task.Description == nil || *task.Description != "north bed" {
			t.Errorf("Expected description kept, got %v", task.Description)
		}
	})
}

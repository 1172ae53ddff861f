// Package clarify implements the GTD clarification dialog as a state machine.
//
// A Workflow takes one inbox item through the decision tree
// actionable → next action → two-minute rule → delegate → project → organize
// and ends with exactly one Result. It performs no I/O; applying the Result is
// the caller's job.
package clarify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/gtd/internal/models"
)

var (
	// ErrInvalidInput means a form value was refused and the state did not change
	ErrInvalidInput = errors.New("invalid input")
	// ErrWrongStep means the operation does not belong to the current step
	ErrWrongStep = errors.New("operation not allowed in current step")
	// ErrFinished means the workflow already emitted its result or was cancelled
	ErrFinished = errors.New("workflow finished")
)

// Step is a state of the clarification dialog
type Step string

const (
	StepActionable     Step = "actionable"
	StepNonActionable  Step = "non-actionable"
	StepNextAction     Step = "next-action"
	StepTwoMinute      Step = "two-minute"
	StepDelegateChoice Step = "delegate-choice"
	StepDelegateForm   Step = "delegate-form"
	StepProjectChoice  Step = "project-choice"
	StepProjectForm    Step = "project-form"
	StepOrganize       Step = "organize"
)

// Choice is the answer on the non-actionable screen
type Choice string

const (
	ChoiceNone      Choice = ""
	ChoiceTrash     Choice = "trash"
	ChoiceReference Choice = "reference"
	ChoiceSomeday   Choice = "someday"
)

// Organize holds the optional fields collected on the organize step
type Organize struct {
	ProjectID    *int64
	ContextID    *int64
	TimeEstimate *models.TimeEstimate
	EnergyLevel  *models.EnergyLevel
	DueDate      *time.Time
}

// Option configures a Workflow
type Option func(*Workflow)

// WithContexts restricts the organize step to the given contexts
func WithContexts(contexts []*models.Context) Option {
	return func(w *Workflow) {
		w.contexts = make(map[int64]bool, len(contexts))
		for _, c := range contexts {
			w.contexts[c.ID] = true
		}
	}
}

// WithProjects restricts the organize step to the given active projects
func WithProjects(projects []*models.Project) Option {
	return func(w *Workflow) {
		w.projects = make(map[int64]bool, len(projects))
		for _, p := range projects {
			if p.IsActive {
				w.projects[p.ID] = true
			}
		}
	}
}

// Workflow is one clarification run over a single item. It is not safe for concurrent use.
type Workflow struct {
	item     Item
	contexts map[int64]bool
	projects map[int64]bool

	step    Step
	history []Step
	// choice is the reference/someday sub-choice. It is never pushed onto history.
	choice     Choice
	nextAction string
	project    *ProjectRequest

	result   *Result
	finished bool
}

// New starts a workflow at the actionable question
func New(item Item, opts ...Option) *Workflow {
	w := &Workflow{item: item, step: StepActionable}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Item returns the item under clarification
func (w *Workflow) Item() Item { return w.item }

// Step returns the current step
func (w *Workflow) Step() Step { return w.step }

// Choice returns the pending non-actionable sub-choice
func (w *Workflow) Choice() Choice { return w.choice }

// History returns a copy of the back stack, oldest first
func (w *Workflow) History() []Step {
	out := make([]Step, len(w.history))
	copy(out, w.history)
	return out
}

// NextAction returns the next action text entered so far
func (w *Workflow) NextAction() string { return w.nextAction }

// PendingProject returns the project stashed by the project form
func (w *Workflow) PendingProject() *ProjectRequest { return w.project }

// Finished reports whether the run has ended, with or without a result
func (w *Workflow) Finished() bool { return w.finished }

// Result returns the emitted result. ok is false until a terminal step has been reached.
func (w *Workflow) Result() (Result, bool) {
	if w.result == nil {
		return Result{}, false
	}
	return *w.result, true
}

func (w *Workflow) expect(step Step) error {
	if w.finished {
		return ErrFinished
	}
	if w.step != step {
		return fmt.Errorf("%w: in %s", ErrWrongStep, w.step)
	}
	return nil
}

func (w *Workflow) advance(next Step) {
	w.history = append(w.history, w.step)
	w.step = next
}

// emit records the single terminal result and clears transient form state
func (w *Workflow) emit(r Result) {
	w.result = &r
	w.finished = true
	w.reset()
}

func (w *Workflow) reset() {
	w.history = nil
	w.choice = ChoiceNone
	w.nextAction = ""
	w.project = nil
	w.step = StepActionable
}

// AnswerActionable answers "is this actionable?"
func (w *Workflow) AnswerActionable(yes bool) error {
	if err := w.expect(StepActionable); err != nil {
		return err
	}
	if yes {
		w.advance(StepNextAction)
	} else {
		w.advance(StepNonActionable)
	}
	return nil
}

// ChooseNonActionable picks trash, reference or someday. Trash ends the run at once.
func (w *Workflow) ChooseNonActionable(c Choice) error {
	if err := w.expect(StepNonActionable); err != nil {
		return err
	}
	switch c {
	case ChoiceTrash:
		w.emit(Result{Action: ActionTrash})
	case ChoiceReference, ChoiceSomeday:
		w.choice = c
	default:
		return fmt.Errorf("%w: unknown choice %q", ErrInvalidInput, c)
	}
	return nil
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// SubmitReference files the item as reference with an optional category
func (w *Workflow) SubmitReference(category string) error {
	if err := w.expect(StepNonActionable); err != nil {
		return err
	}
	if w.choice != ChoiceReference {
		return fmt.Errorf("%w: reference not chosen", ErrWrongStep)
	}
	w.emit(Result{Action: ActionReference, Details: ReferenceDetails{Category: optionalText(category)}})
	return nil
}

// SubmitSomeday parks the item on someday/maybe with optional notes
func (w *Workflow) SubmitSomeday(notes string) error {
	if err := w.expect(StepNonActionable); err != nil {
		return err
	}
	if w.choice != ChoiceSomeday {
		return fmt.Errorf("%w: someday not chosen", ErrWrongStep)
	}
	w.emit(Result{Action: ActionSomeday, Details: SomedayDetails{Notes: optionalText(notes)}})
	return nil
}

// SubmitNextAction records the next physical action
func (w *Workflow) SubmitNextAction(text string) error {
	if err := w.expect(StepNextAction); err != nil {
		return err
	}
	if err := validateNextAction(text); err != nil {
		return err
	}
	w.nextAction = strings.TrimSpace(text)
	w.advance(StepTwoMinute)
	return nil
}

// AnswerTwoMinute answers "would this take less than two minutes?"
func (w *Workflow) AnswerTwoMinute(yes bool) error {
	if err := w.expect(StepTwoMinute); err != nil {
		return err
	}
	if yes {
		w.emit(Result{Action: ActionDoNow})
		return nil
	}
	w.advance(StepDelegateChoice)
	return nil
}

// AnswerDelegate answers "can this be delegated?"
func (w *Workflow) AnswerDelegate(yes bool) error {
	if err := w.expect(StepDelegateChoice); err != nil {
		return err
	}
	if yes {
		w.advance(StepDelegateForm)
	} else {
		w.advance(StepProjectChoice)
	}
	return nil
}

// SubmitDelegate records who the item waits on and when to follow up. Both are required.
func (w *Workflow) SubmitDelegate(waitingFor string, followUp *time.Time) error {
	if err := w.expect(StepDelegateForm); err != nil {
		return err
	}
	waitingFor = strings.TrimSpace(waitingFor)
	if waitingFor == "" {
		return fmt.Errorf("%w: waiting for is required", ErrInvalidInput)
	}
	if followUp == nil || followUp.IsZero() {
		return fmt.Errorf("%w: follow-up date is required", ErrInvalidInput)
	}
	w.emit(Result{
		Action: ActionDelegate,
		Details: WaitingDetails{
			Title:       w.nextAction,
			WaitingFor:  waitingFor,
			FollowUp:    *followUp,
			Description: w.item.Description(),
			EmailID:     w.item.EmailID(),
		},
	})
	return nil
}

// AnswerProject answers "is this part of a larger outcome?"
func (w *Workflow) AnswerProject(yes bool) error {
	if err := w.expect(StepProjectChoice); err != nil {
		return err
	}
	if yes {
		w.advance(StepProjectForm)
		return nil
	}
	w.project = nil
	w.advance(StepOrganize)
	return nil
}

// SubmitProject stashes a new project to be created with the task
func (w *Workflow) SubmitProject(name, description string) error {
	if err := w.expect(StepProjectForm); err != nil {
		return err
	}
	if err := validateProjectName(name); err != nil {
		return err
	}
	w.project = &ProjectRequest{Name: strings.TrimSpace(name), Description: optionalText(description)}
	w.advance(StepOrganize)
	return nil
}

// SubmitOrganize ends the run with a next action
func (w *Workflow) SubmitOrganize(o Organize) error {
	if err := w.expect(StepOrganize); err != nil {
		return err
	}
	if o.ContextID != nil && w.contexts != nil && !w.contexts[*o.ContextID] {
		return fmt.Errorf("%w: unknown context %d", ErrInvalidInput, *o.ContextID)
	}
	if o.ProjectID != nil {
		if w.project != nil {
			return fmt.Errorf("%w: a new project is already pending", ErrInvalidInput)
		}
		if w.projects != nil && !w.projects[*o.ProjectID] {
			return fmt.Errorf("%w: unknown project %d", ErrInvalidInput, *o.ProjectID)
		}
	}
	if o.TimeEstimate != nil && !o.TimeEstimate.Valid() {
		return fmt.Errorf("%w: invalid time estimate %q", ErrInvalidInput, *o.TimeEstimate)
	}
	if o.EnergyLevel != nil && !o.EnergyLevel.Valid() {
		return fmt.Errorf("%w: invalid energy level %q", ErrInvalidInput, *o.EnergyLevel)
	}

	w.emit(Result{
		Action: ActionNextAction,
		Details: NextActionDetails{
			Title:        w.nextAction,
			ProjectID:    o.ProjectID,
			ContextID:    o.ContextID,
			TimeEstimate: o.TimeEstimate,
			EnergyLevel:  o.EnergyLevel,
			DueDate:      o.DueDate,
			Description:  w.item.Description(),
			EmailID:      w.item.EmailID(),
		},
		CreateProject: w.project,
	})
	return nil
}

// Back returns to the previous screen. On the non-actionable screen with a
// sub-choice selected it only clears the sub-choice.
func (w *Workflow) Back() error {
	if w.finished {
		return ErrFinished
	}
	if w.step == StepNonActionable && w.choice != ChoiceNone {
		w.choice = ChoiceNone
		return nil
	}
	if len(w.history) == 0 {
		return fmt.Errorf("%w: nothing to go back to", ErrWrongStep)
	}
	last := len(w.history) - 1
	w.step = w.history[last]
	w.history = w.history[:last]
	return nil
}

// Cancel closes the dialog without a result
func (w *Workflow) Cancel() {
	if w.finished {
		return
	}
	w.finished = true
	w.reset()
}

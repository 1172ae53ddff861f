package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/benvon/gtd/internal/clarify"
	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/models"
	"github.com/benvon/gtd/internal/services/inbox"
)

var (
	errBack = errors.New("back")
	errSkip = errors.New("skip")
	errQuit = errors.New("quit")
)

// NewProcessCmd creates the process command
func NewProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Clarify every inbox task interactively",
		Long: "Walks each inbox task through the clarification questions and applies the result.\n" +
			"At any prompt type :back, :skip or :quit.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(db *database.DB, repos *database.Repositories) error {
				processor := inbox.NewProcessor(db, repos.Tasks, repos.Projects, repos.Emails, nil, cliLogger(cmd))
				s := &processSession{
					tasks:     repos.Tasks,
					contexts:  repos.Contexts,
					projects:  repos.Projects,
					processor: processor,
					in:        bufio.NewScanner(cmd.InOrStdin()),
					out:       cmd.OutOrStdout(),
				}
				_, err := s.run(ctx)
				return err
			})
		},
	}
}

// processSession is one pass over the inbox
type processSession struct {
	tasks     database.TaskRepositoryInterface
	contexts  database.ContextRepositoryInterface
	projects  database.ProjectRepositoryInterface
	processor *inbox.Processor
	in        *bufio.Scanner
	out       io.Writer

	contextList []*models.Context
	projectList []*models.Project
}

// run clarifies inbox tasks until the inbox is exhausted or the user quits. It returns how many were applied.
func (s *processSession) run(ctx context.Context) (int, error) {
	status := models.TaskStatusInbox
	tasks, err := s.tasks.List(ctx, models.TaskFilter{Status: &status})
	if err != nil {
		return 0, fmt.Errorf("failed to list inbox: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(s.out, "Inbox zero. Nothing to process.")
		return 0, nil
	}
	if s.contextList, err = s.contexts.List(ctx); err != nil {
		return 0, fmt.Errorf("failed to list contexts: %w", err)
	}
	if s.projectList, err = s.projects.List(ctx, true); err != nil {
		return 0, fmt.Errorf("failed to list projects: %w", err)
	}

	applied := 0
	for i, task := range tasks {
		fmt.Fprintf(s.out, "\n[%d/%d] %s\n", i+1, len(tasks), task.Title)
		if task.Description != nil && *task.Description != "" {
			fmt.Fprintf(s.out, "  %s\n", *task.Description)
		}

		item := clarify.TaskItem{Task: task}
		wf := clarify.New(item, clarify.WithContexts(s.contextList), clarify.WithProjects(s.projectList))
		err := s.dialog(wf)
		switch {
		case errors.Is(err, errSkip):
			fmt.Fprintln(s.out, "  skipped")
			continue
		case errors.Is(err, errQuit):
			fmt.Fprintf(s.out, "Stopped. %d item(s) processed.\n", applied)
			return applied, nil
		case err != nil:
			return applied, err
		}

		result, _ := wf.Result()
		outcome, err := s.processor.Apply(ctx, item, result)
		if err != nil {
			return applied, fmt.Errorf("failed to apply %s to %q: %w", result.Action, task.Title, err)
		}
		applied++
		if outcome.Project != nil {
			s.projectList = append(s.projectList, outcome.Project)
			fmt.Fprintf(s.out, "  created project %q\n", outcome.Project.Name)
		}
		fmt.Fprintf(s.out, "  -> %s\n", outcome.Action)
	}

	fmt.Fprintf(s.out, "\nDone. %d item(s) processed.\n", applied)
	return applied, nil
}

// dialog drives wf until it emits a result. Refused answers are reported and asked again.
func (s *processSession) dialog(wf *clarify.Workflow) error {
	for !wf.Finished() {
		err := s.step(wf)
		switch {
		case err == nil:
		case errors.Is(err, errBack):
			if backErr := wf.Back(); backErr != nil {
				fmt.Fprintln(s.out, "  ! already at the first question")
			}
		case errors.Is(err, errSkip), errors.Is(err, errQuit):
			wf.Cancel()
			return err
		case errors.Is(err, clarify.ErrInvalidInput):
			fmt.Fprintf(s.out, "  ! %v\n", err)
		default:
			return err
		}
	}
	return nil
}

func (s *processSession) step(wf *clarify.Workflow) error {
	switch wf.Step() {
	case clarify.StepActionable:
		yes, err := s.yesNo("Is it actionable?")
		if err != nil {
			return err
		}
		return wf.AnswerActionable(yes)

	case clarify.StepNonActionable:
		switch wf.Choice() {
		case clarify.ChoiceReference:
			category, err := s.ask("Reference category (optional)")
			if err != nil {
				return err
			}
			return wf.SubmitReference(category)
		case clarify.ChoiceSomeday:
			notes, err := s.ask("Someday notes (optional)")
			if err != nil {
				return err
			}
			return wf.SubmitSomeday(notes)
		default:
			choice, err := s.ask("Trash, reference or someday?")
			if err != nil {
				return err
			}
			return wf.ChooseNonActionable(clarify.Choice(strings.ToLower(choice)))
		}

	case clarify.StepNextAction:
		text, err := s.ask("What is the next physical action?")
		if err != nil {
			return err
		}
		return wf.SubmitNextAction(text)

	case clarify.StepTwoMinute:
		yes, err := s.yesNo("Will it take less than two minutes?")
		if err != nil {
			return err
		}
		return wf.AnswerTwoMinute(yes)

	case clarify.StepDelegateChoice:
		yes, err := s.yesNo("Can someone else do it?")
		if err != nil {
			return err
		}
		return wf.AnswerDelegate(yes)

	case clarify.StepDelegateForm:
		who, err := s.ask("Waiting for whom?")
		if err != nil {
			return err
		}
		followUp, err := s.date("Follow-up date (YYYY-MM-DD)")
		if err != nil {
			return err
		}
		return wf.SubmitDelegate(who, followUp)

	case clarify.StepProjectChoice:
		yes, err := s.yesNo("Does it need a new project?")
		if err != nil {
			return err
		}
		return wf.AnswerProject(yes)

	case clarify.StepProjectForm:
		name, err := s.ask("Project name")
		if err != nil {
			return err
		}
		description, err := s.ask("Project description (optional)")
		if err != nil {
			return err
		}
		return wf.SubmitProject(name, description)

	case clarify.StepOrganize:
		o, err := s.organize(wf.PendingProject() == nil)
		if err != nil {
			return err
		}
		return wf.SubmitOrganize(o)
	}
	return fmt.Errorf("unexpected step %q", wf.Step())
}

func (s *processSession) organize(offerProjects bool) (clarify.Organize, error) {
	var o clarify.Organize
	var err error

	if len(s.contextList) > 0 {
		names := make([]string, len(s.contextList))
		ids := make([]int64, len(s.contextList))
		for i, c := range s.contextList {
			names[i], ids[i] = c.Name, c.ID
		}
		if o.ContextID, err = s.pick("Context", names, ids); err != nil {
			return o, err
		}
	}
	if offerProjects && len(s.projectList) > 0 {
		names := make([]string, len(s.projectList))
		ids := make([]int64, len(s.projectList))
		for i, p := range s.projectList {
			names[i], ids[i] = p.Name, p.ID
		}
		if o.ProjectID, err = s.pick("Project", names, ids); err != nil {
			return o, err
		}
	}

	estimate, err := s.ask("Time estimate (15min, 30min, 1hr, 2hr+, blank to skip)")
	if err != nil {
		return o, err
	}
	if estimate != "" {
		te := models.TimeEstimate(estimate)
		o.TimeEstimate = &te
	}
	energy, err := s.ask("Energy (low, medium, high, blank to skip)")
	if err != nil {
		return o, err
	}
	if energy != "" {
		el := models.EnergyLevel(strings.ToLower(energy))
		o.EnergyLevel = &el
	}
	if o.DueDate, err = s.optionalDate("Due date (YYYY-MM-DD, blank to skip)"); err != nil {
		return o, err
	}
	return o, nil
}

// ask prints a prompt and reads one trimmed line. Navigation commands come back as errors.
func (s *processSession) ask(prompt string) (string, error) {
	fmt.Fprintf(s.out, "%s: ", prompt)
	if !s.in.Scan() {
		if err := s.in.Err(); err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		fmt.Fprintln(s.out)
		return "", errQuit
	}
	line := strings.TrimSpace(s.in.Text())
	switch strings.ToLower(line) {
	case ":back", ":b":
		return "", errBack
	case ":skip", ":s":
		return "", errSkip
	case ":quit", ":q":
		return "", errQuit
	}
	return line, nil
}

func (s *processSession) yesNo(prompt string) (bool, error) {
	for {
		answer, err := s.ask(prompt + " [y/n]")
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(s.out, "  ! answer y or n")
	}
}

func (s *processSession) date(prompt string) (*time.Time, error) {
	for {
		d, err := s.optionalDate(prompt)
		if err != nil || d != nil {
			return d, err
		}
		fmt.Fprintln(s.out, "  ! a date is required")
	}
}

func (s *processSession) optionalDate(prompt string) (*time.Time, error) {
	for {
		answer, err := s.ask(prompt)
		if err != nil {
			return nil, err
		}
		if answer == "" {
			return nil, nil
		}
		d, err := models.ParseDate(answer)
		if err == nil {
			return &d, nil
		}
		fmt.Fprintf(s.out, "  ! %q is not a date\n", answer)
	}
}

// pick lists numbered options and returns the chosen id, or nil for a blank answer
func (s *processSession) pick(label string, names []string, ids []int64) (*int64, error) {
	for i, name := range names {
		fmt.Fprintf(s.out, "  %d) %s\n", i+1, name)
	}
	for {
		answer, err := s.ask(label + " (number, blank for none)")
		if err != nil {
			return nil, err
		}
		if answer == "" {
			return nil, nil
		}
		n, err := strconv.Atoi(answer)
		if err == nil && n >= 1 && n <= len(ids) {
			id := ids[n-1]
			return &id, nil
		}
		fmt.Fprintf(s.out, "  ! pick a number from 1 to %d\n", len(ids))
	}
}

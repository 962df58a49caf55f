package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/prflow/internal/config"
	perrors "github.com/Iron-Ham/prflow/internal/errors"
	"github.com/Iron-Ham/prflow/internal/tui/view"
	"github.com/Iron-Ham/prflow/internal/workflow"
)

const (
	fieldOwner = iota
	fieldRepo
	fieldIssue
	fieldBase
	fieldDryRun // the toggle, not a text input
	fieldCount
)

var fieldLabels = [...]string{"Owner", "Repository", "Issue #", "Base branch"}

// runForm is the run form: four text inputs and the dry-run toggle.
type runForm struct {
	inputs [fieldDryRun]textinput.Model
	dryRun bool
	focus  int
}

func newRunForm(defaults config.FormConfig) runForm {
	var f runForm
	placeholders := [...]string{"octocat", "hello-world", "42", workflow.DefaultBaseBranch}
	values := [...]string{defaults.Owner, defaults.Repo, "", defaults.BaseBranch}
	for i := range f.inputs {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Placeholder = placeholders[i]
		ti.CharLimit = 100
		ti.Width = 32
		ti.SetValue(values[i])
		f.inputs[i] = ti
	}
	f.inputs[fieldIssue].CharLimit = 9
	f.dryRun = defaults.DryRun
	f.focusOn(fieldOwner)
	return f
}

func (f *runForm) focusOn(i int) tea.Cmd {
	f.focus = (i%fieldCount + fieldCount) % fieldCount
	var cmd tea.Cmd
	for j := range f.inputs {
		if j == f.focus {
			cmd = f.inputs[j].Focus()
		} else {
			f.inputs[j].Blur()
		}
	}
	return cmd
}

func (f *runForm) next() tea.Cmd { return f.focusOn(f.focus + 1) }
func (f *runForm) prev() tea.Cmd { return f.focusOn(f.focus - 1) }

// update forwards a message to the focused input. Space toggles dry run when
// the toggle has focus.
func (f *runForm) update(msg tea.Msg) tea.Cmd {
	if f.focus == fieldDryRun {
		if key, ok := msg.(tea.KeyMsg); ok && key.Type == tea.KeySpace {
			f.dryRun = !f.dryRun
		}
		return nil
	}
	if key, ok := msg.(tea.KeyMsg); ok && f.focus == fieldIssue && key.Type == tea.KeyRunes {
		key.Runes = digits(key.Runes)
		if len(key.Runes) == 0 {
			return nil
		}
		msg = key
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func digits(rs []rune) []rune {
	out := rs[:0:0]
	for _, r := range rs {
		if r >= '0' && r <= '9' {
			out = append(out, r)
		}
	}
	return out
}

// request builds the run request. The issue number must parse; everything
// else is validated by the controller.
func (f *runForm) request() (workflow.RunRequest, error) {
	req := workflow.RunRequest{
		Owner:      f.inputs[fieldOwner].Value(),
		Repo:       f.inputs[fieldRepo].Value(),
		BaseBranch: f.inputs[fieldBase].Value(),
		DryRun:     f.dryRun,
	}
	raw := strings.TrimSpace(f.inputs[fieldIssue].Value())
	if raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, perrors.NewValidationError("must be a number").WithField("issue_number").WithValue(raw)
		}
		req.IssueNumber = n
	}
	return req, nil
}

func (f *runForm) state(disabled bool, errMsg string) view.FormState {
	s := view.FormState{
		DryRun:        f.dryRun,
		DryRunFocused: f.focus == fieldDryRun,
		Disabled:      disabled,
		Error:         errMsg,
	}
	for i := range f.inputs {
		s.Fields = append(s.Fields, view.FormField{
			Label:   fieldLabels[i],
			Input:   f.inputs[i].View(),
			Focused: f.focus == i,
		})
	}
	return s
}

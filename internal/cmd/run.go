package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/Iron-Ham/prflow/internal/agents"
	"github.com/Iron-Ham/prflow/internal/config"
	"github.com/Iron-Ham/prflow/internal/dashboard"
	perrors "github.com/Iron-Ham/prflow/internal/errors"
	"github.com/Iron-Ham/prflow/internal/event"
	"github.com/Iron-Ham/prflow/internal/runevent"
	"github.com/Iron-Ham/prflow/internal/timeline"
	"github.com/Iron-Ham/prflow/internal/tui/styles"
	"github.com/Iron-Ham/prflow/internal/tui/view"
	"github.com/Iron-Ham/prflow/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a run and follow it without the dashboard",
	Long: `Start a workflow run and print its progress as the backend streams
events, then print the final timeline, agent summaries and result.

Form values not given as flags fall back to the form section of the config.
The exit status is non-zero when the run fails.

Examples:
  prflow run --owner acme --repo app --issue 42
  prflow run --owner acme --repo app --issue 42 --dry-run --json`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runOwner  string
	runRepo   string
	runIssue  int
	runBase   string
	runDryRun bool
	runJSON   bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runOwner, "owner", "", "Repository owner (default: form.owner)")
	runCmd.Flags().StringVar(&runRepo, "repo", "", "Repository name (default: form.repo)")
	runCmd.Flags().IntVar(&runIssue, "issue", 0, "Issue number")
	runCmd.Flags().StringVar(&runBase, "base", "", "Base branch (default: form.base_branch)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Compute changes without publishing (default: form.dry_run)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print events and the summary as JSON")
}

// requestFromFlags merges explicitly set flags over the form defaults.
func requestFromFlags(cmd *cobra.Command, form config.FormConfig) workflow.RunRequest {
	req := workflow.RunRequest{
		Owner:       form.Owner,
		Repo:        form.Repo,
		IssueNumber: runIssue,
		BaseBranch:  form.BaseBranch,
		DryRun:      form.DryRun,
	}
	flags := cmd.Flags()
	if flags.Changed("owner") {
		req.Owner = runOwner
	}
	if flags.Changed("repo") {
		req.Repo = runRepo
	}
	if flags.Changed("base") {
		req.BaseBranch = runBase
	}
	if flags.Changed("dry-run") {
		req.DryRun = runDryRun
	}
	return req
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	rt, err := newRuntime(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	req := requestFromFlags(cmd, cfg.Form)
	return usageHint(followRun(cmd.Context(), rt.controller(), req, cmd.OutOrStdout(), cmd.ErrOrStderr(), runJSON))
}

// usageHint points invalid flag input at the command's help.
func usageHint(err error) error {
	if perrors.Is(err, perrors.ErrInvalidInput) {
		return fmt.Errorf("invalid run: %s (see 'prflow run --help')", perrors.UserMessage(err))
	}
	return err
}

// followRun submits req, prints progress until the run settled and its
// stream closed, then prints the summary.
func followRun(ctx context.Context, ctrl *dashboard.Controller, req workflow.RunRequest, out, errOut io.Writer, asJSON bool) error {
	p := &progressPrinter{out: out, errOut: errOut, json: asJSON}
	bus := ctrl.Bus()

	// This controller only ever carries one run, so no generation filtering.
	settled := make(chan struct{})
	streamDone := make(chan struct{})
	var settleOnce, streamOnce sync.Once
	subs := []string{
		bus.SubscribeAll(p.handle),
		bus.Subscribe(event.TypeRunSettled, func(event.Event) { settleOnce.Do(func() { close(settled) }) }),
		bus.Subscribe(event.TypeStreamClosed, func(event.Event) { streamOnce.Do(func() { close(streamDone) }) }),
	}
	defer func() {
		for _, id := range subs {
			bus.Unsubscribe(id)
		}
	}()

	if _, err := ctrl.Submit(ctx, req); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return waitClosed(gctx, settled) })
	g.Go(func() error { return waitClosed(gctx, streamDone) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("interrupted before the run finished: %w", err)
	}

	snap := ctrl.Snapshot()
	if err := p.summary(snap); err != nil {
		return err
	}
	if snap.Error != "" {
		return fmt.Errorf("run failed: %s", snap.Error)
	}
	return nil
}

func waitClosed(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// progressPrinter writes bus events as they arrive. Handlers run on the
// stream and request goroutines, so writes are serialized.
type progressPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	json   bool
	enc    *json.Encoder
}

func (p *progressPrinter) handle(e event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e := e.(type) {
	case event.RunStartedEvent:
		if !p.json {
			mode := ""
			if e.DryRun {
				mode = " (dry run)"
			}
			fmt.Fprintf(p.out, "Started %s%s · request %s\n", e.Slug, mode, e.RequestID)
		}
	case event.StreamEventReceived:
		if p.json {
			if p.enc == nil {
				p.enc = json.NewEncoder(p.out)
			}
			_ = p.enc.Encode(e.Event)
			return
		}
		if e.Event.Event == runevent.EventContractFailed {
			fmt.Fprintf(p.out, "%s integration contract failed: %s\n",
				styles.Warning.Render("!"), e.Event.Field(runevent.FieldError))
		}
	case event.TimelineAdvancedEvent:
		if !p.json {
			fmt.Fprintln(p.out, stepLine(e))
		}
	case event.StreamClosedEvent:
		if e.Err != nil {
			fmt.Fprintf(p.errOut, "Warning: event stream lost: %v\n", e.Err)
		}
	}
}

// stepLine renders a timeline advance, e.g. "● [3/6] Generate changes · drafting".
func stepLine(e event.TimelineAdvancedEvent) string {
	steps := timeline.Steps()
	idx := min(max(e.StepIndex, 0), len(steps)-1)
	line := fmt.Sprintf("%s [%d/%d] %s", styles.StatusIcon(e.Phase), idx+1, len(steps), steps[idx].Title)
	if timeline.Phase(e.Phase).IsTerminal() {
		line += " · " + e.Phase
	}
	if e.Detail != "" {
		line += styles.Muted.Render(" · " + e.Detail)
	}
	return line
}

// jsonSummary is the final --json document.
type jsonSummary struct {
	RequestID string                  `json:"request_id"`
	Phase     string                  `json:"phase"`
	Result    *workflow.Result        `json:"result,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Agents    map[string]agentSummary `json:"agents"`
	Events    int                     `json:"events"`
	Dropped   int                     `json:"dropped_events,omitempty"`
	Stream    string                  `json:"stream"`
}

type agentSummary struct {
	LastAction string `json:"last_action"`
	Delivered  string `json:"delivered"`
}

func (p *progressPrinter) summary(snap dashboard.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		doc := jsonSummary{
			RequestID: snap.RequestID,
			Phase:     string(snap.Timeline.Phase),
			Result:    snap.Result,
			Error:     snap.Error,
			Agents:    make(map[string]agentSummary, len(agents.Order)),
			Events:    len(snap.Events),
			Dropped:   snap.Dropped,
			Stream:    string(snap.Stream),
		}
		for _, id := range agents.Order {
			s := snap.Agents[id]
			doc.Agents[string(id)] = agentSummary{LastAction: s.LastAction, Delivered: s.Delivered}
		}
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	width := outputWidth(p.out)
	panels := []string{
		view.RenderTimeline(snap.Steps, snap.Timeline, width),
		view.RenderAgents(snap.Agents, width),
		view.RenderResult(snap.Outcome, width),
	}
	_, err := fmt.Fprintln(p.out, strings.Join(panels, "\n"))
	return err
}

// outputWidth is the terminal width when out is one, else 80 columns.
func outputWidth(out io.Writer) int {
	if f, ok := out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return min(w, 120)
		}
	}
	return 80
}

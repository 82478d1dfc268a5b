// Package loop implements the plan/edit/test/commit-or-revert state
// machine.
//
// The loop is single-threaded and sequential by design: exactly one patch
// is applied and verified per iteration so a verdict always maps to one
// patch. Callers must not run two loops against the same working tree.
package loop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/rcliao/selfedit/internal/config"
	"github.com/rcliao/selfedit/internal/memory"
	"github.com/rcliao/selfedit/internal/model"
	"github.com/rcliao/selfedit/internal/oracle"
	"github.com/rcliao/selfedit/internal/patch"
	"github.com/rcliao/selfedit/internal/planner"
	"github.com/rcliao/selfedit/internal/policy"
)

// State is a terminal state of one run.
type State string

const (
	StateDone     State = "done"
	StateMaxSteps State = "max_steps"
	StateFatal    State = "fatal"
)

// Step summarizes one loop iteration.
type Step struct {
	Index   int           `json:"index"`
	Outcome model.Outcome `json:"outcome"`
	Path    string        `json:"path,omitempty"`
	Detail  string        `json:"detail,omitempty"`
}

// Result is the final state of a run. The full audit trail lives in the
// message log; Result is the summary handed back to the front door.
type Result struct {
	RunID string `json:"run_id"`
	Goal  string `json:"goal"`
	State State  `json:"state"`
	Steps []Step `json:"steps"`
}

// How many trailing log entries and recalled snippets the planner sees.
const (
	transcriptWindow = 12
	recallK          = 3
)

// Orchestrator sequences propose, policy check, apply, verify and
// commit-or-revert for one goal at a time.
type Orchestrator struct {
	mem     memory.Log
	planner planner.Planner
	policy  *policy.Engine
	oracle  *oracle.Runner
	cfg     *config.Config
	logger  *zap.Logger
}

// New assembles an orchestrator from its collaborators.
func New(mem memory.Log, pl planner.Planner, pe *policy.Engine, or *oracle.Runner, cfg *config.Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		mem:     mem,
		planner: pl,
		policy:  pe,
		oracle:  or,
		cfg:     cfg,
		logger:  logger,
	}
}

// run carries the mutable state of a single Run invocation.
type run struct {
	o          *Orchestrator
	res        *Result
	transcript []model.Message
	log        *zap.Logger
}

// Run drives the loop for one goal until it is satisfied, the step budget
// is exhausted, or an unrecoverable condition occurs. maxSteps <= 0 uses
// the configured default. Only storage failures, a failed revert and a
// missing planner return an error; everything else is recovered inside the
// loop and recorded in the log.
func (o *Orchestrator) Run(ctx context.Context, goal string, maxSteps int) (*Result, error) {
	if o.planner == nil {
		return nil, planner.ErrNotConfigured
	}
	if maxSteps <= 0 {
		maxSteps = o.cfg.MaxSteps
	}

	res := &Result{
		RunID: ulid.Make().String(),
		Goal:  goal,
	}
	r := &run{
		o:   o,
		res: res,
		log: o.logger.With(zap.String("run_id", res.RunID)),
	}
	r.log.Info("starting run", zap.String("goal", goal), zap.Int("max_steps", maxSteps))

	if err := r.record(ctx, model.RoleUser, goal, map[string]any{model.MetaType: model.TypeGoal}); err != nil {
		res.State = StateFatal
		return res, err
	}

	// Baseline: know whether the tree is healthy before editing.
	baseline := o.oracle.Run(ctx, o.cfg.TestPath)
	if err := r.recordVerdict(ctx, "initial test run", baseline); err != nil {
		res.State = StateFatal
		return res, err
	}

	for step := 0; step < maxSteps; step++ {
		done, err := r.step(ctx, step)
		if err != nil {
			res.State = StateFatal
			return res, err
		}
		if done {
			res.State = StateDone
			if err := r.record(ctx, model.RoleSystem,
				"goal satisfied after "+stepCount(len(res.Steps)),
				map[string]any{model.MetaType: model.TypeSummary, "state": string(StateDone)},
			); err != nil {
				res.State = StateFatal
				return res, err
			}
			r.log.Info("run done", zap.Int("steps", len(res.Steps)))
			return res, nil
		}
	}

	res.State = StateMaxSteps
	if err := r.record(ctx, model.RoleSystem,
		fmt.Sprintf("step budget of %d exhausted without satisfying goal", maxSteps),
		map[string]any{model.MetaType: model.TypeSummary, "state": string(StateMaxSteps)},
	); err != nil {
		res.State = StateFatal
		return res, err
	}
	r.log.Info("run stopped at step budget", zap.Int("max_steps", maxSteps))
	return res, nil
}

// record appends to the durable log and the in-memory transcript in one
// motion. A storage failure here is fatal for the whole run.
func (r *run) record(ctx context.Context, role model.Role, content string, meta map[string]any) error {
	if meta == nil {
		meta = map[string]any{}
	}
	meta[model.MetaRunID] = r.res.RunID
	id, err := r.o.mem.AppendMessage(ctx, role, content, meta)
	if err != nil {
		return err
	}
	r.transcript = append(r.transcript, model.Message{ID: id, Role: role, Content: content, Metadata: meta})
	return nil
}

func (r *run) recordVerdict(ctx context.Context, label string, v oracle.Verdict) error {
	return r.record(ctx, model.RoleSystem,
		fmt.Sprintf("%s %s:\n%s", label, passFail(v.Passed), v.Output),
		map[string]any{model.MetaType: model.TypeTestResult, "passed": v.Passed, "timed_out": v.TimedOut},
	)
}

// addStep records one finished iteration in both the result and the log.
func (r *run) addStep(ctx context.Context, index int, outcome model.Outcome, path, detail string) error {
	r.res.Steps = append(r.res.Steps, Step{Index: index, Outcome: outcome, Path: path, Detail: detail})
	return r.record(ctx, model.RoleSystem, detail, map[string]any{
		model.MetaType:    model.TypeStep,
		model.MetaStep:    index,
		model.MetaOutcome: string(outcome),
		model.MetaPath:    path,
	})
}

// tail returns the most recent transcript entries for planner context.
func (r *run) tail() []model.Message {
	if len(r.transcript) <= transcriptWindow {
		return r.transcript
	}
	return r.transcript[len(r.transcript)-transcriptWindow:]
}

// step runs one PROPOSE..COMMIT/REVERT cycle. Every invocation consumes one
// unit of the step budget regardless of outcome. A returned error is fatal
// for the run.
func (r *run) step(ctx context.Context, index int) (bool, error) {
	o := r.o

	var snippets []string
	for _, hit := range o.mem.SimilaritySearch(ctx, r.res.Goal, recallK) {
		snippets = append(snippets, hit.Text)
	}

	prop, err := o.planner.Propose(ctx, planner.Request{
		Goal:       r.res.Goal,
		Transcript: r.tail(),
		Snippets:   snippets,
	})
	if err != nil {
		if errors.Is(err, planner.ErrNotConfigured) {
			return false, err
		}
		return false, r.addStep(ctx, index, model.OutcomeErrored, "", fmt.Sprintf("planner failed: %v", err))
	}

	if err := r.record(ctx, model.RoleAssistant, proposalSummary(prop), map[string]any{
		model.MetaType: model.TypeProposal,
		model.MetaStep: index,
		model.MetaPath: prop.Path,
		"done":         prop.Done,
	}); err != nil {
		return false, err
	}

	// Goal satisfied with no further edit: nothing to verify.
	if prop.Done && !prop.HasEdit() {
		return true, nil
	}

	// Materialize the candidate patch against current file content.
	absPath := prop.Path
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(o.cfg.WorkDir, prop.Path)
	}
	original, created, err := readFileIfExists(absPath)
	if err != nil {
		return false, r.addStep(ctx, index, model.OutcomeErrored, prop.Path, fmt.Sprintf("cannot read %s: %v", prop.Path, err))
	}

	p := patch.New(absPath, original, prop.Updated, o.cfg.ContextLines)

	if d := o.policy.CheckPatch(p); !d.Allowed {
		return false, r.addStep(ctx, index, model.OutcomeSkipped, prop.Path, "policy rejected patch: "+d.Reason)
	}

	if !p.IsNoop() {
		// Re-derive the updated text through the diff as a guard against an
		// inconsistent patch before any write happens.
		updated, err := patch.Apply(p.Original, p.Diff)
		if err != nil {
			return false, r.addStep(ctx, index, model.OutcomeErrored, prop.Path, fmt.Sprintf("patch does not apply: %v", err))
		}
		if updated != p.Updated {
			return false, r.addStep(ctx, index, model.OutcomeErrored, prop.Path, "patch round trip mismatch")
		}
		if err := patch.WriteFileAtomic(absPath, p.Updated); err != nil {
			return false, r.addStep(ctx, index, model.OutcomeErrored, prop.Path, fmt.Sprintf("write failed: %v", err))
		}
	}

	verdict := o.oracle.Run(ctx, o.cfg.TestPath)
	if err := r.recordVerdict(ctx, "test run", verdict); err != nil {
		return false, err
	}

	if verdict.Passed {
		o.mem.StoreEmbeddings(ctx, []string{p.Diff, prop.Rationale})
		if err := r.addStep(ctx, index, model.OutcomeCommitted, prop.Path,
			fmt.Sprintf("committed %d byte patch to %s", p.Size(), prop.Path)); err != nil {
			return false, err
		}
		r.log.Info("patch committed", zap.String("path", prop.Path), zap.Int("bytes", p.Size()))
		// Completion is only finalized once the implicated patch passed.
		return prop.Done, nil
	}

	if !p.IsNoop() {
		if err := revert(p, created); err != nil {
			// The tree may be inconsistent; that is unrecoverable.
			_ = r.addStep(ctx, index, model.OutcomeErrored, prop.Path, fmt.Sprintf("revert failed: %v", err))
			return false, fmt.Errorf("revert %s: %w", prop.Path, err)
		}
	}
	detail := "patch reverted after failing tests"
	if verdict.TimedOut {
		detail = "patch reverted after test timeout"
	}
	if err := r.addStep(ctx, index, model.OutcomeReverted, prop.Path, detail+":\n"+verdict.Output); err != nil {
		return false, err
	}
	r.log.Info("patch reverted", zap.String("path", prop.Path), zap.Bool("timed_out", verdict.TimedOut))
	return false, nil
}

// revert restores the pre-patch state: the retained original bytes, or no
// file at all when the patch created it.
func revert(p *patch.Patch, created bool) error {
	if created {
		return os.Remove(p.Path)
	}
	return patch.WriteFileAtomic(p.Path, p.Original)
}

func readFileIfExists(path string) (content string, created bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", true, nil
		}
		return "", false, err
	}
	return string(b), false, nil
}

func stepCount(n int) string {
	if n == 1 {
		return "1 step"
	}
	return fmt.Sprintf("%d steps", n)
}

func passFail(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

func proposalSummary(p *planner.Proposal) string {
	switch {
	case p.Done && !p.HasEdit():
		if p.Rationale != "" {
			return "goal satisfied: " + p.Rationale
		}
		return "goal satisfied"
	case p.Rationale != "":
		return fmt.Sprintf("proposing edit to %s: %s", p.Path, p.Rationale)
	default:
		return "proposing edit to " + p.Path
	}
}

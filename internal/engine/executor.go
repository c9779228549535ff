package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/muqtarM/novapipe/internal/logger"
	"github.com/muqtarM/novapipe/internal/pipeline"
	"github.com/muqtarM/novapipe/internal/pipelinectx"
	"github.com/muqtarM/novapipe/internal/ratelimit"
	"github.com/muqtarM/novapipe/internal/registry"
	"github.com/muqtarM/novapipe/internal/summary"
	"github.com/muqtarM/novapipe/internal/template"
	novapipeerrors "github.com/muqtarM/novapipe/pkg/errors"
)

// taskResult is the scheduler's in-memory record of one task's terminal
// outcome, used for gating decisions made by tasks further down the graph.
// SkipPropagate means this task's own skip/failure should itself cascade to
// its dependents: for a failure it mirrors the task's skip_downstream_on_failure
// flag; for a skip it is that same flag OR'd with whether this task's own
// skip was itself a propagated one (so an unbroken chain keeps propagating
// even past a task that doesn't set the flag).
type taskResult struct {
	Status        string
	SkipPropagate bool
}

// gateDecision is the outcome of evaluateGate. Cascade reports whether Skip
// was caused by upstream propagation (rule 1 below) rather than this task's
// own branch/run_if/run_unless condition.
type gateDecision struct {
	Skip    bool
	Reason  string
	Cascade bool
}

// evaluateGate runs the ordered gating checks of the executor state machine:
// upstream skip propagation, branch, run_if, run_unless. A dependency that is
// itself skipped only cascades the skip when that dependency set
// skip_downstream_on_failure or its own skip was already a propagated one
// (spec rule: "that dependency set skip_downstream_on_failure or propagated
// a skip"); a plain branch/run_if/run_unless skip does not cascade on its
// own.
func evaluateGate(node *Node, results map[string]taskResult, branches map[string]string, store *pipelinectx.Store) (gateDecision, error) {
	for _, dep := range node.DependsOn {
		res, ok := results[dep.Name]
		if !ok {
			continue
		}
		if res.Status == summary.StatusSkipped && res.SkipPropagate {
			return gateDecision{Skip: true, Cascade: true, Reason: fmt.Sprintf("skipped because dependency '%s' was skipped", dep.Name)}, nil
		}
		if res.SkipPropagate && (res.Status == summary.StatusFailedIgnore || res.Status == summary.StatusFailedAbort) {
			return gateDecision{Skip: true, Cascade: true, Reason: fmt.Sprintf("skipped because dependency '%s' failed", dep.Name)}, nil
		}
	}

	snapshot := store.Snapshot()

	if node.Spec.Branch != "" {
		expr, ok := branches[node.Spec.Branch]
		if !ok {
			return gateDecision{}, novapipeerrors.NewTemplateError(node.Name, fmt.Errorf("unknown branch %q", node.Spec.Branch))
		}
		truthy, err := template.EvalBool(expr, snapshot)
		if err != nil {
			return gateDecision{}, novapipeerrors.NewTemplateError(node.Name, err)
		}
		if !truthy {
			return gateDecision{Skip: true, Reason: fmt.Sprintf("skipped because branch '%s' evaluated to false", node.Spec.Branch)}, nil
		}
	}

	if node.Spec.RunIf != "" {
		truthy, err := template.EvalBool(node.Spec.RunIf, snapshot)
		if err != nil {
			return gateDecision{}, novapipeerrors.NewTemplateError(node.Name, err)
		}
		if !truthy {
			return gateDecision{Skip: true, Reason: "skipped because run_if evaluated to false"}, nil
		}
	}

	if node.Spec.RunUnless != "" {
		truthy, err := template.EvalBool(node.Spec.RunUnless, snapshot)
		if err != nil {
			return gateDecision{}, novapipeerrors.NewTemplateError(node.Name, err)
		}
		if truthy {
			return gateDecision{Skip: true, Reason: "skipped because run_unless evaluated to true"}, nil
		}
	}

	return gateDecision{}, nil
}

// taskDeps bundles the shared collaborators a task execution needs.
type taskDeps struct {
	store        *pipelinectx.Store
	limiter      *ratelimit.Limiter
	log          *logger.Logger
	globalIgnore bool
}

// executeTask runs the full per-task lifecycle (condition gating having
// already been decided by the caller): render params, run the attempt loop
// with timeout/retry/rate-limit/env overlay, classify the outcome, and bind
// the result into the context. Returns the terminal taskResult plus the
// TaskMetrics to record.
func executeTask(ctx context.Context, node *Node, deps taskDeps) (taskResult, summary.TaskMetrics) {
	spec := node.Spec
	start := time.Now()

	fn, err := registry.Lookup(spec.Task)
	if err != nil {
		return finishFailure(node, deps, start, 0, err)
	}

	snapshot := deps.store.Snapshot()
	renderedParams, err := renderParams(spec, snapshot)
	if err != nil {
		return finishFailure(node, deps, start, 0, novapipeerrors.NewTemplateError(node.Name, err))
	}

	renderedEnv, err := renderEnv(spec, snapshot)
	if err != nil {
		return finishFailure(node, deps, start, 0, novapipeerrors.NewTemplateError(node.Name, err))
	}

	maxAttempts := spec.MaxAttempts()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if spec.RateLimit > 0 {
			if err := deps.limiter.Acquire(ctx, spec.EffectiveRateLimitKey(), spec.RateLimit); err != nil {
				return finishFailure(node, deps, start, attempt, err)
			}
		}

		result, attemptErr := runAttempt(ctx, spec, fn, renderedParams, renderedEnv)
		if attemptErr == nil {
			duration := time.Since(start).Seconds()
			deps.log.Info(fmt.Sprintf("task %s succeeded (attempt %d/%d)", node.Name, attempt, maxAttempts))
			bindResult(node.Name, result, deps.store, deps.log)
			return taskResult{Status: summary.StatusSuccess}, summary.TaskMetrics{
				Name:         node.Name,
				Attempts:     attempt,
				Status:       summary.StatusSuccess,
				DurationSecs: duration,
				Error:        nil,
			}
		}

		lastErr = novapipeerrors.NewTaskError(node.Name, attempt, attemptErr)
		if attempt < maxAttempts {
			deps.log.Warn(fmt.Sprintf("task %s failed on attempt %d/%d: %v; retrying in %.3fs", node.Name, attempt, maxAttempts, lastErr, spec.RetryDelay))
			sleepRetryDelay(ctx, spec.RetryDelay)
			continue
		}
	}

	return finishFailure(node, deps, start, maxAttempts, lastErr)
}

// finishFailure classifies a task's final failure as failed_ignored or
// failed_abort, logs it, and binds context[name] = nil.
func finishFailure(node *Node, deps taskDeps, start time.Time, attempts int, err error) (taskResult, summary.TaskMetrics) {
	duration := time.Since(start).Seconds()
	status := summary.StatusFailedAbort
	if node.Spec.IgnoreFailure || deps.globalIgnore {
		status = summary.StatusFailedIgnore
		deps.log.Warn(fmt.Sprintf("task %s failed permanently (ignore_failure=true): %v", node.Name, err))
	} else {
		deps.log.Error(err, fmt.Sprintf("task %s failed permanently", node.Name))
	}
	deps.store.Bind(node.Name, nil)

	return taskResult{Status: status, SkipPropagate: node.Spec.SkipDownstreamOnFailure},
		summary.TaskMetrics{
			Name:         node.Name,
			Attempts:     attempts,
			Status:       status,
			DurationSecs: duration,
			Error:        summary.ErrString(err),
		}
}

// renderParams walks the task's raw params tree against the context
// snapshot captured before the attempt loop begins.
func renderParams(spec pipeline.TaskSpec, snapshot map[string]any) (map[string]any, error) {
	if len(spec.Params) == 0 {
		return map[string]any{}, nil
	}
	rendered, err := template.RenderTree(spec.Params, snapshot)
	if err != nil {
		return nil, err
	}
	return rendered.(map[string]any), nil
}

// renderEnv renders the task's env overlay value templates against the
// context snapshot.
func renderEnv(spec pipeline.TaskSpec, snapshot map[string]any) (map[string]string, error) {
	if len(spec.Env) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(spec.Env))
	for k, v := range spec.Env {
		rendered, err := template.Render(v, snapshot)
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}

func sleepRetryDelay(ctx context.Context, seconds float64) {
	if seconds <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func bindResult(name string, value any, store *pipelinectx.Store, log *logger.Logger) {
	if mapping, ok := value.(map[string]any); ok {
		overwritten := store.Merge(mapping)
		for _, key := range overwritten {
			log.Warn(fmt.Sprintf("context key %q overwritten by task %q", key, name))
		}
		return
	}
	if store.Bind(name, value) {
		log.Warn(fmt.Sprintf("context key %q overwritten by task %q", name, name))
	}
}

// applyEnvOverlay sets the given environment variables, returning a restore
// function that reinstates the prior values (or unsets them if they were
// previously absent).
func applyEnvOverlay(env map[string]string) func() {
	type prior struct {
		value   string
		existed bool
	}
	saved := make(map[string]prior, len(env))
	for k, v := range env {
		value, existed := os.LookupEnv(k)
		saved[k] = prior{value: value, existed: existed}
		os.Setenv(k, v)
	}
	return func() {
		for k, p := range saved {
			if p.existed {
				os.Setenv(k, p.value)
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

// envMu is the per-attempt critical section for attempts that set an env
// overlay, since the process environment is shared by every goroutine.
var envMu sync.Mutex

// runAttempt performs exactly one invocation of the task's callable, bounded
// by the task's timeout if set, with the env overlay applied only for the
// duration of this attempt.
func runAttempt(ctx context.Context, spec pipeline.TaskSpec, fn registry.TaskFunc, params map[string]any, env map[string]string) (any, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(spec.Timeout*float64(time.Second)))
		defer cancel()
	}

	if len(env) > 0 {
		envMu.Lock()
		defer envMu.Unlock()
	}
	restore := applyEnvOverlay(env)
	defer restore()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := fn(attemptCtx, params)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-attemptCtx.Done():
		return nil, novapipeerrors.NewTimeoutError(spec.Name, spec.Timeout)
	}
}

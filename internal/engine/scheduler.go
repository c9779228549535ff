package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/muqtarM/novapipe/internal/logger"
	"github.com/muqtarM/novapipe/internal/pipeline"
	"github.com/muqtarM/novapipe/internal/pipelinectx"
	"github.com/muqtarM/novapipe/internal/ratelimit"
	"github.com/muqtarM/novapipe/internal/summary"
	novapipeerrors "github.com/muqtarM/novapipe/pkg/errors"
)

// RunOptions controls one pipeline run.
type RunOptions struct {
	// IgnoreFailures demotes every failed_abort to failed_ignored so the
	// pipeline always runs to completion.
	IgnoreFailures bool
	// Seed pre-populates the context, e.g. from CLI --var assignments.
	Seed map[string]any
}

// Run executes every layer of graph in order, barrier-synchronized between
// layers, and returns the accumulated run summary. A non-nil error means the
// pipeline aborted (subject to RunOptions.IgnoreFailures).
func Run(ctx context.Context, graph *Graph, p *pipeline.Pipeline, log *logger.Logger, opts RunOptions) (*summary.Summary, error) {
	store := pipelinectx.New(opts.Seed)
	limiter := ratelimit.New()
	sum := summary.New()

	deps := taskDeps{store: store, limiter: limiter, log: log, globalIgnore: opts.IgnoreFailures}
	results := make(map[string]taskResult, len(graph.Nodes))

	var ignoredNames []string
	var abortErr error

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, level := range graph.Levels {
		var wg sync.WaitGroup
		var mu sync.Mutex
		levelResults := make(map[string]taskResult, len(level))
		levelMetrics := make([]summary.TaskMetrics, 0, len(level))

		record := func(name string, res taskResult, m summary.TaskMetrics) {
			mu.Lock()
			levelResults[name] = res
			levelMetrics = append(levelMetrics, m)
			mu.Unlock()
		}

		for _, name := range level {
			node := graph.Nodes[name]

			gate, err := evaluateGate(node, results, p.Branches, store)
			if err != nil {
				status := summary.StatusFailedAbort
				if node.Spec.IgnoreFailure || opts.IgnoreFailures {
					status = summary.StatusFailedIgnore
				}
				store.Bind(name, nil)
				log.Error(err, fmt.Sprintf("task %s gating failed", name))
				record(name, taskResult{Status: status, SkipPropagate: node.Spec.SkipDownstreamOnFailure}, summary.TaskMetrics{
					Name: name, Attempts: 0, Status: status, Error: summary.ErrString(err),
				})
				continue
			}

			if gate.Skip {
				log.Info(fmt.Sprintf("task %s %s", name, gate.Reason))
				store.Bind(name, nil)
				propagate := node.Spec.SkipDownstreamOnFailure || gate.Cascade
				record(name, taskResult{Status: summary.StatusSkipped, SkipPropagate: propagate}, summary.TaskMetrics{
					Name: name, Attempts: 0, Status: summary.StatusSkipped, Error: nil,
				})
				continue
			}

			wg.Add(1)
			go func(node *Node) {
				defer wg.Done()
				res, metrics := executeTask(runCtx, node, deps)
				record(node.Name, res, metrics)
			}(node)
		}

		wg.Wait()

		for name, res := range levelResults {
			results[name] = res
		}
		for _, m := range levelMetrics {
			sum.Record(m)
			if m.Status == summary.StatusFailedIgnore {
				ignoredNames = append(ignoredNames, m.Name)
			}
		}

		var abortedTask string
		for name, res := range levelResults {
			if res.Status == summary.StatusFailedAbort {
				abortedTask = name
				break
			}
		}

		if abortedTask != "" {
			abortErr = novapipeerrors.NewPipelineAbortError(abortedTask, fmt.Errorf("task terminated in failed_abort"))
			break
		}
	}

	if len(ignoredNames) > 0 {
		log.Warn(fmt.Sprintf("tasks failed but were ignored: %s", strings.Join(ignoredNames, ", ")))
	}

	if abortErr == nil {
		log.Info("Pipeline completed successfully")
	}

	return sum, abortErr
}

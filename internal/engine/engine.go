// Package engine implements NovaPipe's execution core: graph construction,
// the per-task lifecycle state machine, and the layered concurrent
// scheduler.
package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/muqtarM/novapipe/internal/logger"
	"github.com/muqtarM/novapipe/internal/pipeline"
	"github.com/muqtarM/novapipe/internal/summary"
)

// Engine runs exactly one pipeline. Its graph is captured at construction,
// where every task's registry key is also checked; plugins must be registered
// before NewEngine is called. The registry itself is not snapshotted: each
// task's callable is looked up in the global registry when the task runs.
type Engine struct {
	RunID    string
	Pipeline *pipeline.Pipeline
	Graph    *Graph
	log      *logger.Logger
}

// NewEngine validates p and builds its execution graph.
func NewEngine(p *pipeline.Pipeline, log *logger.Logger) (*Engine, error) {
	graph, err := BuildGraph(p)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	return &Engine{
		RunID:    runID,
		Pipeline: p,
		Graph:    graph,
		log:      log.WithFields(map[string]any{"run_id": runID[:8]}),
	}, nil
}

// Run executes the pipeline and returns its run summary.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*summary.Summary, error) {
	return Run(ctx, e.Graph, e.Pipeline, e.log, opts)
}

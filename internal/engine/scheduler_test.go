package engine

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/muqtarM/novapipe/internal/logger"
	"github.com/muqtarM/novapipe/internal/pipeline"
	"github.com/muqtarM/novapipe/internal/registry"
	"github.com/muqtarM/novapipe/internal/summary"
)

func newSilentLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Options{Level: "error", HumanReadable: false, Writer: &bytes.Buffer{}})
	require.NoError(t, err)
	return log
}

func statusOf(t *testing.T, tasks []summary.TaskMetrics, name string) string {
	t.Helper()
	for _, m := range tasks {
		if m.Name == name {
			return m.Status
		}
	}
	t.Fatalf("no metrics recorded for task %q", name)
	return ""
}

func TestRunPropagatesTemplatedValuesAcrossLayers(t *testing.T) {
	registry.Reset()
	t.Cleanup(registry.Reset)

	registry.Register("produce", func(ctx context.Context, params map[string]any) (any, error) {
		return "produced-value", nil
	})
	var consumedValue any
	registry.Register("consume", func(ctx context.Context, params map[string]any) (any, error) {
		consumedValue = params["input"]
		return nil, nil
	})

	p := &pipeline.Pipeline{
		Tasks: []pipeline.TaskSpec{
			{Name: "producer", Task: "produce"},
			{Name: "consumer", Task: "consume", DependsOn: []string{"producer"},
				Params: map[string]any{"input": "{{ producer }}"}},
		},
	}

	graph, err := BuildGraph(p)
	require.NoError(t, err)

	sum, runErr := Run(context.Background(), graph, p, newSilentLogger(t), RunOptions{})
	require.NoError(t, runErr)
	require.Equal(t, "produced-value", consumedValue)
	require.Equal(t, summary.StatusSuccess, statusOf(t, sum.Tasks(), "consumer"))
}

func TestRunAbortsOnFailedAbortAndStopsLaterLevels(t *testing.T) {
	registry.Reset()
	t.Cleanup(registry.Reset)

	var ranThird bool
	registry.Register("boom", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errSentinel
	})
	registry.Register("survivor", func(ctx context.Context, params map[string]any) (any, error) {
		ranThird = true
		return nil, nil
	})

	p := &pipeline.Pipeline{
		Tasks: []pipeline.TaskSpec{
			{Name: "failing", Task: "boom"},
			{Name: "after", Task: "survivor", DependsOn: []string{"failing"}},
		},
	}

	graph, err := BuildGraph(p)
	require.NoError(t, err)

	_, runErr := Run(context.Background(), graph, p, newSilentLogger(t), RunOptions{})
	require.Error(t, runErr)
	require.False(t, ranThird)
}

func TestRunIgnoreFailuresDemotesAbortAndContinues(t *testing.T) {
	registry.Reset()
	t.Cleanup(registry.Reset)

	var ranAfter bool
	registry.Register("boom", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errSentinel
	})
	registry.Register("after_task", func(ctx context.Context, params map[string]any) (any, error) {
		ranAfter = true
		return nil, nil
	})

	p := &pipeline.Pipeline{
		Tasks: []pipeline.TaskSpec{
			{Name: "failing", Task: "boom"},
			{Name: "after", Task: "after_task", DependsOn: []string{"failing"}},
		},
	}

	graph, err := BuildGraph(p)
	require.NoError(t, err)

	sum, runErr := Run(context.Background(), graph, p, newSilentLogger(t), RunOptions{IgnoreFailures: true})
	require.NoError(t, runErr)
	require.True(t, ranAfter)
	require.Equal(t, summary.StatusFailedIgnore, statusOf(t, sum.Tasks(), "failing"))
}

func TestRunSkipsDownstreamWhenSkipDownstreamOnFailureSet(t *testing.T) {
	registry.Reset()
	t.Cleanup(registry.Reset)

	var downstreamRan bool
	registry.Register("boom", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errSentinel
	})
	registry.Register("downstream_task", func(ctx context.Context, params map[string]any) (any, error) {
		downstreamRan = true
		return nil, nil
	})

	p := &pipeline.Pipeline{
		Tasks: []pipeline.TaskSpec{
			{Name: "failing", Task: "boom", IgnoreFailure: true, SkipDownstreamOnFailure: true},
			{Name: "downstream", Task: "downstream_task", DependsOn: []string{"failing"}},
		},
	}

	graph, err := BuildGraph(p)
	require.NoError(t, err)

	sum, runErr := Run(context.Background(), graph, p, newSilentLogger(t), RunOptions{})
	require.NoError(t, runErr)
	require.False(t, downstreamRan)
	require.Equal(t, summary.StatusSkipped, statusOf(t, sum.Tasks(), "downstream"))
}

func TestRunSkipsTaskWhenBranchEvaluatesFalse(t *testing.T) {
	registry.Reset()
	t.Cleanup(registry.Reset)

	var ran bool
	registry.Register("conditional", func(ctx context.Context, params map[string]any) (any, error) {
		ran = true
		return nil, nil
	})

	p := &pipeline.Pipeline{
		Branches: map[string]string{"enabled": "false"},
		Tasks: []pipeline.TaskSpec{
			{Name: "maybe_run", Task: "conditional", Branch: "enabled"},
		},
	}

	graph, err := BuildGraph(p)
	require.NoError(t, err)

	sum, runErr := Run(context.Background(), graph, p, newSilentLogger(t), RunOptions{})
	require.NoError(t, runErr)
	require.False(t, ran)
	require.Equal(t, summary.StatusSkipped, statusOf(t, sum.Tasks(), "maybe_run"))
}

func TestRunBindsMappingResultsAsMultipleContextKeys(t *testing.T) {
	registry.Reset()
	t.Cleanup(registry.Reset)

	registry.Register("multi_output", func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"row_count": int64(3), "output_path": "/tmp/out.csv"}, nil
	})
	var seenRowCount, seenPath any
	registry.Register("consume_multi", func(ctx context.Context, params map[string]any) (any, error) {
		seenRowCount = params["rows"]
		seenPath = params["path"]
		return nil, nil
	})

	p := &pipeline.Pipeline{
		Tasks: []pipeline.TaskSpec{
			{Name: "analyze", Task: "multi_output"},
			{Name: "consumer", Task: "consume_multi", DependsOn: []string{"analyze"},
				Params: map[string]any{"rows": "{{ row_count }}", "path": "{{ output_path }}"}},
		},
	}

	graph, err := BuildGraph(p)
	require.NoError(t, err)

	sum, runErr := Run(context.Background(), graph, p, newSilentLogger(t), RunOptions{})
	require.NoError(t, runErr)
	require.Equal(t, int64(3), seenRowCount)
	require.Equal(t, "/tmp/out.csv", seenPath)
	require.Equal(t, summary.StatusSuccess, statusOf(t, sum.Tasks(), "consumer"))
}

// A plain branch-caused skip is a local decision, not an upstream
// propagation: per spec.md S5, a dependent of a branch-skipped task that
// does not itself declare skip_downstream_on_failure must still run.
func TestRunDoesNotCascadeSkipFromPlainBranchSkip(t *testing.T) {
	registry.Reset()
	t.Cleanup(registry.Reset)

	var ran bool
	registry.Register("conditional", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, nil
	})
	registry.Register("dependent_task", func(ctx context.Context, params map[string]any) (any, error) {
		ran = true
		return nil, nil
	})

	p := &pipeline.Pipeline{
		Branches: map[string]string{"enabled": "false"},
		Tasks: []pipeline.TaskSpec{
			{Name: "gate", Task: "conditional", Branch: "enabled"},
			{Name: "dependent", Task: "dependent_task", DependsOn: []string{"gate"}},
		},
	}

	graph, err := BuildGraph(p)
	require.NoError(t, err)

	sum, runErr := Run(context.Background(), graph, p, newSilentLogger(t), RunOptions{})
	require.NoError(t, runErr)
	require.True(t, ran)
	require.Equal(t, summary.StatusSuccess, statusOf(t, sum.Tasks(), "dependent"))
}

// S5: a task depending on both a successful task and a branch-skipped task
// must still succeed - the branch skip of one dependency must not cascade
// onto a sibling dependent that also depends on a successful task.
func TestRunSucceedsWhenOnlyOneOfMultipleDependenciesIsSkipped(t *testing.T) {
	registry.Reset()
	t.Cleanup(registry.Reset)

	var alwaysRan bool
	registry.Register("dev_task", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, nil
	})
	registry.Register("prod_task", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, nil
	})
	registry.Register("always_task", func(ctx context.Context, params map[string]any) (any, error) {
		alwaysRan = true
		return nil, nil
	})

	p := &pipeline.Pipeline{
		Branches: map[string]string{
			"dev":  "{{ env == 'dev' }}",
			"prod": "{{ env == 'prod' }}",
		},
		Tasks: []pipeline.TaskSpec{
			{Name: "task_dev", Task: "dev_task", Branch: "dev"},
			{Name: "task_prod", Task: "prod_task", Branch: "prod"},
			{Name: "always", Task: "always_task", DependsOn: []string{"task_dev", "task_prod"}},
		},
	}

	graph, err := BuildGraph(p)
	require.NoError(t, err)

	sum, runErr := Run(context.Background(), graph, p, newSilentLogger(t), RunOptions{
		Seed: map[string]any{"env": "dev"},
	})
	require.NoError(t, runErr)
	require.True(t, alwaysRan)

	tasks := sum.Tasks()
	require.Equal(t, summary.StatusSuccess, statusOf(t, tasks, "task_dev"))
	require.Equal(t, summary.StatusSkipped, statusOf(t, tasks, "task_prod"))
	require.Equal(t, summary.StatusSuccess, statusOf(t, tasks, "always"))
}

// S7: skip_downstream_on_failure must cascade transitively through an
// unbroken chain of skipped descendants, even though only the originating
// task declares the flag.
func TestRunCascadesSkipTransitivelyThroughDescendants(t *testing.T) {
	registry.Reset()
	t.Cleanup(registry.Reset)

	registry.Register("always_fail", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errSentinel
	})
	registry.Register("identity", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, nil
	})

	p := &pipeline.Pipeline{
		Tasks: []pipeline.TaskSpec{
			{Name: "fail_task", Task: "always_fail", IgnoreFailure: true, SkipDownstreamOnFailure: true},
			{Name: "child", Task: "identity", DependsOn: []string{"fail_task"}},
			{Name: "grandchild", Task: "identity", DependsOn: []string{"child"}},
		},
	}

	graph, err := BuildGraph(p)
	require.NoError(t, err)

	sum, runErr := Run(context.Background(), graph, p, newSilentLogger(t), RunOptions{})
	require.NoError(t, runErr)

	tasks := sum.Tasks()
	require.Equal(t, summary.StatusFailedIgnore, statusOf(t, tasks, "fail_task"))
	require.Equal(t, summary.StatusSkipped, statusOf(t, tasks, "child"))
	require.Equal(t, summary.StatusSkipped, statusOf(t, tasks, "grandchild"))
}

func TestRunSeedsInitialContextFromOptions(t *testing.T) {
	registry.Reset()
	t.Cleanup(registry.Reset)

	var seen any
	registry.Register("reader", func(ctx context.Context, params map[string]any) (any, error) {
		seen = params["env"]
		return nil, nil
	})

	p := &pipeline.Pipeline{
		Tasks: []pipeline.TaskSpec{
			{Name: "reader_task", Task: "reader", Params: map[string]any{"env": "{{ environment }}"}},
		},
	}

	graph, err := BuildGraph(p)
	require.NoError(t, err)

	_, runErr := Run(context.Background(), graph, p, newSilentLogger(t), RunOptions{
		Seed: map[string]any{"environment": "staging"},
	})
	require.NoError(t, runErr)
	require.Equal(t, "staging", seen)
}

package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/muqtarM/novapipe/internal/pipeline"
	"github.com/muqtarM/novapipe/internal/registry"
	novapipeerrors "github.com/muqtarM/novapipe/pkg/errors"
)

// Node is one vertex of the pipeline DAG.
type Node struct {
	Name       string
	Spec       pipeline.TaskSpec
	DependsOn  []*Node
	Dependents []*Node
}

// Graph holds the DAG's nodes and its topological layering.
type Graph struct {
	Nodes  map[string]*Node
	Levels [][]string
}

func newGraph() *Graph {
	return &Graph{Nodes: make(map[string]*Node)}
}

func (g *Graph) addNode(spec pipeline.TaskSpec) error {
	if _, exists := g.Nodes[spec.Name]; exists {
		return novapipeerrors.NewValidationError("tasks", fmt.Sprintf("duplicate task name %q", spec.Name), nil)
	}
	g.Nodes[spec.Name] = &Node{Name: spec.Name, Spec: spec}
	return nil
}

func (g *Graph) addEdge(from, to string) {
	source := g.Nodes[from]
	target := g.Nodes[to]
	source.Dependents = append(source.Dependents, target)
	target.DependsOn = append(target.DependsOn, source)
}

// topologicalSort computes Graph.Levels via Kahn's algorithm, with each
// level's members sorted so layer dispatch order is deterministic.
func (g *Graph) topologicalSort() error {
	indegree := make(map[string]int, len(g.Nodes))
	for id := range g.Nodes {
		indegree[id] = 0
	}
	for _, node := range g.Nodes {
		for _, dependent := range node.Dependents {
			indegree[dependent.Name]++
		}
	}

	var queue []string
	for id, degree := range indegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	processed := 0
	var levels [][]string

	for len(queue) > 0 {
		level := append([]string(nil), queue...)
		levels = append(levels, level)

		var next []string
		for _, id := range level {
			processed++
			for _, dependent := range g.Nodes[id].Dependents {
				indegree[dependent.Name]--
				if indegree[dependent.Name] == 0 {
					next = append(next, dependent.Name)
				}
			}
		}
		sort.Strings(next)
		queue = next
	}

	if processed != len(g.Nodes) {
		return novapipeerrors.NewValidationError("tasks", "cycle detected among task dependencies", nil)
	}

	g.Levels = levels
	return nil
}

// BuildGraph validates a parsed Pipeline and constructs its execution DAG.
// Validation order: duplicate task names, unknown registry keys, unknown
// dependency names, cycle detection.
func BuildGraph(p *pipeline.Pipeline) (*Graph, error) {
	if p == nil {
		return nil, novapipeerrors.NewValidationError("pipeline", "pipeline is nil", nil)
	}

	g := newGraph()

	for _, spec := range p.Tasks {
		if err := g.addNode(spec); err != nil {
			return nil, err
		}
	}

	for _, spec := range p.Tasks {
		if _, err := registry.Lookup(spec.Task); err != nil {
			return nil, novapipeerrors.NewValidationError("tasks", fmt.Sprintf("task %q references unknown registry key %q", spec.Name, spec.Task), nil)
		}
	}

	for _, spec := range p.Tasks {
		for _, dep := range spec.DependsOn {
			if _, ok := g.Nodes[dep]; !ok {
				return nil, novapipeerrors.NewValidationError("tasks", fmt.Sprintf("task %q depends on unknown task %q", spec.Name, dep), nil)
			}
			g.addEdge(dep, spec.Name)
		}
	}

	if err := g.topologicalSort(); err != nil {
		return nil, err
	}

	return g, nil
}

// ToDOT renders the graph as a Graphviz DOT document, matching the
// node/edge/opening format the original runner's to_dot() produced.
func (g *Graph) ToDOT() string {
	var b strings.Builder
	b.WriteString("digraph NovaPipe {\n")
	b.WriteString("  rankdir=LR;\n")

	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		node := g.Nodes[name]
		fmt.Fprintf(&b, "  %q [label=\"%s\\n(%s)\"];\n", name, name, node.Spec.Task)
	}

	for _, name := range names {
		node := g.Nodes[name]
		deps := make([]string, len(node.DependsOn))
		for i, dep := range node.DependsOn {
			deps[i] = dep.Name
		}
		sort.Strings(deps)
		for _, dep := range deps {
			fmt.Fprintf(&b, "  %q -> %q;\n", dep, name)
		}
	}

	b.WriteString("}\n")
	return b.String()
}

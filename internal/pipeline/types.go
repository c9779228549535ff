// Package pipeline holds the declarative pipeline document model: parsing
// from YAML and schema-level validation. Graph construction and execution
// semantics live in internal/engine.
package pipeline

// TaskSpec describes one node of the pipeline DAG.
type TaskSpec struct {
	Name                    string            `yaml:"name" validate:"required,task_name"`
	Task                    string            `yaml:"task" validate:"required"`
	Params                  map[string]any    `yaml:"params,omitempty"`
	DependsOn               []string          `yaml:"depends_on,omitempty"`
	Retries                 int               `yaml:"retries,omitempty" validate:"gte=0"`
	RetryDelay              float64           `yaml:"retry_delay,omitempty" validate:"gte=0"`
	Timeout                 float64           `yaml:"timeout,omitempty" validate:"omitempty,gt=0"`
	IgnoreFailure           bool              `yaml:"ignore_failure,omitempty"`
	SkipDownstreamOnFailure bool              `yaml:"skip_downstream_on_failure,omitempty"`
	RunIf                   string            `yaml:"run_if,omitempty"`
	RunUnless               string            `yaml:"run_unless,omitempty"`
	Branch                  string            `yaml:"branch,omitempty"`
	Env                     map[string]string `yaml:"env,omitempty"`
	RateLimit               float64           `yaml:"rate_limit,omitempty" validate:"omitempty,gt=0"`
	RateLimitKey            string            `yaml:"rate_limit_key,omitempty"`
}

// MaxAttempts returns 1 + Retries, the number of attempts this task may make.
func (t TaskSpec) MaxAttempts() int {
	return 1 + t.Retries
}

// EffectiveRateLimitKey returns RateLimitKey if set, otherwise the task's own
// name, matching spec §4.3's "rate_limit_key (or task name if absent)" rule.
func (t TaskSpec) EffectiveRateLimitKey() string {
	if t.RateLimitKey != "" {
		return t.RateLimitKey
	}
	return t.Name
}

// Pipeline is an ordered list of TaskSpecs plus an optional branch map.
type Pipeline struct {
	Name        string            `yaml:"name,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Branches    map[string]string `yaml:"branches,omitempty"`
	Tasks       []TaskSpec        `yaml:"tasks" validate:"required,min=1,dive"`
}

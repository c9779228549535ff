package pipeline

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"

	novapipeerrors "github.com/muqtarM/novapipe/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	taskNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("task_name", func(fl validator.FieldLevel) bool {
			return taskNamePattern.MatchString(fl.Field().String())
		})
		validateInst = v
	})
	return validateInst
}

// ValidateSchema performs struct-tag schema validation on the pipeline
// document: required fields, non-negative retry counts, positive timeouts,
// well-formed names, and a non-empty task list.
func ValidateSchema(p *Pipeline) error {
	if p == nil {
		return novapipeerrors.NewValidationError("pipeline", "pipeline is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(p); err != nil {
		return convertValidationError(err)
	}

	for _, key := range p.Branches {
		if key == "" {
			return novapipeerrors.NewValidationError("branches", "branch expression must not be empty", nil)
		}
	}

	return nil
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}
	if ves, ok := err.(validator.ValidationErrors); ok && len(ves) > 0 {
		fe := ves[0]
		field := fe.Namespace()
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, fe.Tag())
		return novapipeerrors.NewValidationError(field, msg, err)
	}
	return novapipeerrors.NewValidationError("pipeline", err.Error(), err)
}

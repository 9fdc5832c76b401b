package scoring

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
)

// Package-level validator instance for struct tag validation.
var validate = validator.New()

// ValidateTemplate checks a scoring template: struct tags, unique numbers
// within each list, and at least one definition for dressage.
func ValidateTemplate(t *model.ScoringTemplate) error {
	const op = "scoring.validate_template"
	if t == nil {
		return model.Invalid(op, "template", "required", "template", "nil")
	}
	if err := validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return model.Invalid(op, fe.Namespace(), fe.Tag(), fe.Param(), fmt.Sprint(fe.Value()))
		}
		return model.Invalid(op, "template", "valid", "", err.Error())
	}
	if t.Discipline == model.Dressage && len(t.Exercises)+len(t.CollectiveMarks) == 0 {
		return model.Invalid(op, "exercises", "min", "1", "0")
	}
	if err := uniqueNumbers(op, "exercises", t.Exercises); err != nil {
		return err
	}
	return uniqueNumbers(op, "collective_marks", t.CollectiveMarks)
}

func uniqueNumbers(op, field string, defs []model.MarkDefinition) error {
	seen := make(map[int]struct{}, len(defs))
	for _, d := range defs {
		if _, dup := seen[d.Number]; dup {
			return model.Invalid(op, field, "unique", "unique number", strconv.Itoa(d.Number))
		}
		seen[d.Number] = struct{}{}
	}
	return nil
}

package plan

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type rawDocument struct {
	KRA         string          `yaml:"kra"`
	Year        int             `yaml:"year"`
	Initiatives []rawInitiative `yaml:"initiatives"`
}

type rawInitiative struct {
	ID          string      `yaml:"initiative_id"`
	Description string      `yaml:"description"`
	TargetType  string      `yaml:"target_type"`
	Targets     []rawTarget `yaml:"targets"`
}

type rawTarget struct {
	Quarter int      `yaml:"quarter"`
	Value   *float64 `yaml:"value"`
}

// ValidationError captures a single field-specific validation issue.
type ValidationError struct {
	File    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
}

// ValidationErrors aggregates multiple validation problems.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

// ParseAndValidateDocument unmarshals and validates a YAML target plan
// document, returning the targets it defines with KRA ids canonicalized.
func ParseAndValidateDocument(data []byte, source string) ([]Target, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ValidationErrors{{
			File:    source,
			Field:   "yaml",
			Message: err.Error(),
		}}
	}
	return validateRawDocument(raw, source)
}

func validateRawDocument(raw rawDocument, source string) ([]Target, error) {
	var errs ValidationErrors

	kraID := NormalizeKRA(raw.KRA)
	if !kraPattern.MatchString(kraID) {
		errs = append(errs, ValidationError{
			File:    source,
			Field:   "kra",
			Message: fmt.Sprintf("%q is not a KRA identifier", raw.KRA),
		})
	}
	if raw.Year <= 0 {
		errs = append(errs, ValidationError{
			File:    source,
			Field:   "year",
			Message: "must be a positive year",
		})
	}
	if len(raw.Initiatives) == 0 {
		errs = append(errs, ValidationError{
			File:    source,
			Field:   "initiatives",
			Message: "must contain at least one initiative",
		})
	}

	var targets []Target

	for idx, ini := range raw.Initiatives {
		path := fmt.Sprintf("initiatives[%d]", idx)

		if strings.TrimSpace(ini.ID) == "" {
			errs = append(errs, ValidationError{
				File:    source,
				Field:   path + ".initiative_id",
				Message: "is required",
			})
		}

		targetType, typeErr := ParseTargetType(ini.TargetType)
		if typeErr != nil {
			errs = append(errs, ValidationError{
				File:    source,
				Field:   path + ".target_type",
				Message: typeErr.Error(),
			})
		}

		if len(ini.Targets) == 0 {
			errs = append(errs, ValidationError{
				File:    source,
				Field:   path + ".targets",
				Message: "must define at least one quarterly target",
			})
		}

		quarters := make(map[int]struct{})
		for tIdx, qt := range ini.Targets {
			tPath := fmt.Sprintf("%s.targets[%d]", path, tIdx)
			if qt.Quarter < 1 || qt.Quarter > 4 {
				errs = append(errs, ValidationError{
					File:    source,
					Field:   tPath + ".quarter",
					Message: fmt.Sprintf("quarter %d out of range 1..4", qt.Quarter),
				})
				continue
			}
			if qt.Value == nil {
				errs = append(errs, ValidationError{
					File:    source,
					Field:   tPath + ".value",
					Message: "is required",
				})
				continue
			}
			if _, dup := quarters[qt.Quarter]; dup {
				errs = append(errs, ValidationError{
					File:    source,
					Field:   tPath + ".quarter",
					Message: fmt.Sprintf("duplicate quarter %d for initiative %q", qt.Quarter, ini.ID),
				})
				continue
			}
			quarters[qt.Quarter] = struct{}{}

			targets = append(targets, Target{
				Key: PeriodKey{
					KRAID:        kraID,
					InitiativeID: strings.TrimSpace(ini.ID),
					Year:         raw.Year,
					Quarter:      qt.Quarter,
				},
				Value:       *qt.Value,
				Type:        targetType,
				Description: strings.TrimSpace(ini.Description),
				Source:      source,
			})
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return targets, nil
}

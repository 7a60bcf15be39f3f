// Package validate checks a single candidate record before it is written.
// Cross-record invariants (name uniqueness, group references) belong to the
// repository.
package validate

import (
	"fmt"
	"strings"

	"distribution-admin/internal/config"
	"distribution-admin/internal/record"
)

// Error reports a missing or invalid field.
type Error struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// ValidatePackage checks raw package input. It must run before
// record.NormalizePackage, which would otherwise default an unknown
// deliveryType away.
func ValidatePackage(raw map[string]any) error {
	if !hasText(raw["packageName"]) {
		return &Error{Field: "packageName", Rule: "required", Message: "packageName is required."}
	}
	if dt, supplied := suppliedString(raw["deliveryType"]); supplied {
		if !record.DeliveryType(dt).Valid() {
			return &Error{
				Field: "deliveryType",
				Rule:  "enum",
				Message: fmt.Sprintf("deliveryType must be %q or %q.",
					record.DeliveryOneEmail, record.DeliveryIndividualEmails),
			}
		}
	}
	return nil
}

// ValidateDistribution checks raw distribution input.
func ValidateDistribution(raw map[string]any) error {
	if !hasText(raw["distributionName"]) {
		return &Error{Field: "distributionName", Rule: "required", Message: "distributionName is required."}
	}
	if v, ok := raw["isPublic"]; ok && v != nil {
		s, isString := v.(string)
		if !isString || (s != record.VisibilityEnabled && s != record.VisibilityDisabled) {
			return &Error{
				Field:   "isPublic",
				Rule:    "enum",
				Message: fmt.Sprintf("isPublic must be %q or %q.", record.VisibilityEnabled, record.VisibilityDisabled),
			}
		}
	}
	return nil
}

// Validator combines the built-in checks with the configured expression rules.
type Validator struct {
	packageRules      []*Rule
	distributionRules []*Rule
}

// New compiles the configured rules. A rule that does not compile is a
// configuration error.
func New(cfg config.RulesConfig) (*Validator, error) {
	pr, err := compileRules("packages", cfg.Packages)
	if err != nil {
		return nil, err
	}
	dr, err := compileRules("distributions", cfg.Distributions)
	if err != nil {
		return nil, err
	}
	return &Validator{packageRules: pr, distributionRules: dr}, nil
}

func (v *Validator) ValidatePackage(raw map[string]any) error {
	return ValidatePackage(raw)
}

func (v *Validator) ValidateDistribution(raw map[string]any) error {
	return ValidateDistribution(raw)
}

// CheckPackage evaluates the package rules against a normalized record.
func (v *Validator) CheckPackage(p record.Package) error {
	if v == nil {
		return nil
	}
	return evaluate(v.packageRules, packageEnv(p))
}

// CheckDistribution evaluates the distribution rules against a normalized record.
func (v *Validator) CheckDistribution(d record.Distribution) error {
	if v == nil {
		return nil
	}
	return evaluate(v.distributionRules, distributionEnv(d))
}

func hasText(v any) bool {
	s, ok := record.AsString(v)
	return ok && strings.TrimSpace(s) != ""
}

// suppliedString treats nil and "" as not supplied. Non-string values are
// supplied and rendered so the enum check rejects them.
func suppliedString(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s, ok := record.AsString(v)
	if !ok {
		return fmt.Sprint(v), true
	}
	return s, s != ""
}

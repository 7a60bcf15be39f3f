package validate

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"distribution-admin/internal/config"
	"distribution-admin/internal/record"
)

// Rule is a compiled expression rule. The rule is violated when its
// expression evaluates to true.
type Rule struct {
	Expression string
	Message    string
	program    *vm.Program
}

// CompileExpression compiles a boolean rule expression.
func CompileExpression(expression string) (*vm.Program, error) {
	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	return prog, nil
}

func compileRules(entity string, defs []config.RuleConfig) ([]*Rule, error) {
	rules := make([]*Rule, 0, len(defs))
	for i, def := range defs {
		prog, err := CompileExpression(def.Expression)
		if err != nil {
			return nil, fmt.Errorf("rules.%s[%d]: %w", entity, i, err)
		}
		msg := def.Message
		if msg == "" {
			msg = "Expression rule violated"
		}
		rules = append(rules, &Rule{Expression: def.Expression, Message: msg, program: prog})
	}
	return rules, nil
}

func evaluate(rules []*Rule, rec map[string]any) error {
	env := map[string]any{"record": rec}
	for _, r := range rules {
		result, err := expr.Run(r.program, env)
		if err != nil {
			return &Error{Rule: "expression", Message: fmt.Sprintf("rule evaluation error: %v", err)}
		}
		if violated, ok := result.(bool); ok && violated {
			return &Error{Rule: "expression", Message: r.Message}
		}
	}
	return nil
}

func packageEnv(p record.Package) map[string]any {
	return map[string]any{
		"id":                p.ID,
		"packageName":       p.PackageName,
		"distributionGroup": p.DistributionGroup,
		"deliveryType":      string(p.DeliveryType),
		"emailTitle":        p.EmailTitle,
		"emailMessage":      p.EmailMessage,
		"filePath":          p.FilePath,
		"outputFilename":    p.OutputFilename,
		"accessGroup":       p.AccessGroup,
		"packageEnabled":    p.PackageEnabled,
		"location":          p.Location,
	}
}

func distributionEnv(d record.Distribution) map[string]any {
	users := make([]any, len(d.Users))
	for i, u := range d.Users {
		users[i] = map[string]any{
			"user":           u.User,
			"alternateEmail": u.AlternateEmail,
			"enabled":        u.Enabled,
		}
	}
	return map[string]any{
		"id":               d.ID,
		"distributionName": d.DistributionName,
		"isPublic":         d.IsPublic,
		"users":            users,
	}
}

// Package applicability implements the sandboxed expression evaluator of
// spec §4.7 on top of google/cel-go (the teacher's own policy-expression
// engine — pkg/kernel/celdp, pkg/governance/policy_evaluator_cel.go). CEL
// is a fixed-grammar parser with an explicit, closed variable declaration
// list: it is not a host-language eval facility, it *is* "a fixed grammar
// parser + AST walker with a whitelisted binding environment" per spec
// §9's design note.
package applicability

import (
	"fmt"
	"strings"

	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/google/cel-go/cel"
)

// env is the single whitelisted CEL environment every applicability and
// phase-in rule is compiled and evaluated against. Any top-level identifier
// other than company fails CEL's own compile step; company itself is a
// map, so its attribute names are not checked at compile time.
var env *cel.Env

func init() {
	var err error
	env, err = cel.NewEnv(
		cel.Variable("company", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		panic(fmt.Sprintf("applicability: failed to build CEL environment: %v", err))
	}
}

// Context is the whitelisted company-profile bag of fields an expression
// may reference as company.<field> (spec §4.7, supplemented with
// materiality per SPEC_FULL §3).
type Context struct {
	Employees          int
	Turnover           float64
	ListedStatus       bool
	ReportingYear      int
	ReportingYearStart string
	ReportingYearEnd   string
	Jurisdictions      []string
	Materiality        map[string]bool // topic -> is_material
}

func (c Context) toCELInput() map[string]interface{} {
	jurisdictions := make([]interface{}, len(c.Jurisdictions))
	for i, j := range c.Jurisdictions {
		jurisdictions[i] = j
	}
	materiality := make(map[string]interface{}, len(c.Materiality))
	for k, v := range c.Materiality {
		materiality[k] = v
	}

	return map[string]interface{}{
		"company": map[string]interface{}{
			"employees":            c.Employees,
			"turnover":             c.Turnover,
			"listed_status":        c.ListedStatus,
			"reporting_year":       c.ReportingYear,
			"reporting_year_start": c.ReportingYearStart,
			"reporting_year_end":   c.ReportingYearEnd,
			"jurisdictions":        jurisdictions,
			"materiality":          materiality,
		},
	}
}

// NewContextFromCompany builds an evaluator Context from a domain.Company
// plus optional run-level materiality overrides.
func NewContextFromCompany(c domain.Company, materiality []domain.RunMateriality) Context {
	m := make(map[string]bool, len(materiality))
	for _, entry := range materiality {
		m[entry.Topic] = entry.IsMaterial
	}
	return Context{
		Employees:          c.Employees,
		Turnover:           c.Turnover,
		ListedStatus:       c.ListedStatus,
		ReportingYear:      c.ReportingYear,
		ReportingYearStart: c.ReportingYearStart,
		ReportingYearEnd:   c.ReportingYearEnd,
		Jurisdictions:      c.Jurisdictions,
		Materiality:        m,
	}
}

// ValidateRule compiles expr against the whitelisted environment without
// evaluating it, for use by pkg/bundle's load-time validation (spec §4.5).
// It rejects rules that reference an undeclared top-level name or do not
// produce a bool. Attribute names under company (company.<field>) are not
// checked here; an unknown one is reported as UNKNOWN_SYMBOL by Evaluate.
func ValidateRule(expr string) error {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return domain.NewError(domain.KindValidation, string(domain.ReasonUnknownSymbol), issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return domain.Errorf(domain.KindValidation, "applicability: rule must evaluate to bool, got %s", ast.OutputType())
	}
	return nil
}

// Evaluate compiles and runs expr against ctx. Any unknown symbol or
// attribute, or compile error, is reported as UNKNOWN_SYMBOL and the rule
// is treated as non-applicable, never as a runtime panic. Other evaluation
// failures are reported as EVAL_ERROR.
func Evaluate(expr string, ctx Context) (applicable bool, reason string, err error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return false, string(domain.ReasonUnknownSymbol), domain.NewError(domain.KindValidation, string(domain.ReasonUnknownSymbol), issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return false, string(domain.ReasonUnknownSymbol), domain.NewError(domain.KindValidation, string(domain.ReasonUnknownSymbol), err)
	}

	out, _, err := prg.Eval(ctx.toCELInput())
	if err != nil {
		// company is declared as a map, so an attribute outside the
		// whitelist compiles and only surfaces here as a missing key.
		if strings.Contains(err.Error(), "no such key") {
			return false, string(domain.ReasonUnknownSymbol), domain.NewError(domain.KindValidation, string(domain.ReasonUnknownSymbol), err)
		}
		return false, "EVAL_ERROR", domain.NewError(domain.KindValidation, "EVAL_ERROR", err)
	}

	val, ok := out.Value().(bool)
	if !ok {
		return false, "NON_BOOLEAN_RESULT", domain.Errorf(domain.KindValidation, "applicability: rule did not evaluate to bool")
	}

	return val, "", nil
}

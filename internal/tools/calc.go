package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
)

// RegisterCalculate adds the arithmetic expression tool.
func RegisterCalculate(reg *Registry) {
	reg.Register(Tool{
		Name:        "calculate",
		Description: "Evaluate an arithmetic expression. Supports + - * / % and parentheses.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "The expression to evaluate, e.g. \"2+2*3\".",
				},
			},
			"required": []string{"expression"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			v, err := evalExpr(stringArg(args, "expression"))
			if err != nil {
				return "", err
			}
			return formatNumber(v), nil
		},
	})
}

// evalExpr evaluates expr with standard operator precedence. Division
// and modulus are float operations, so a zero divisor surfaces as Inf
// or NaN rather than an evaluation error; both are rejected here.
func evalExpr(expr string) (float64, error) {
	if strings.TrimSpace(expr) == "" {
		return 0, fmt.Errorf("empty expression")
	}
	ev, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return 0, fmt.Errorf("bad expression: %w", err)
	}
	out, err := ev.Evaluate(nil)
	if err != nil {
		return 0, fmt.Errorf("bad expression: %w", err)
	}
	v, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("expression did not produce a number")
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("division by zero")
	}
	return v, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

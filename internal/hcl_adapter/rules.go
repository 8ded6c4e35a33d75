package hcl_adapter

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/variantforge/internal/config"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// functions is the function table available to naming and override
// expressions.
func functions() map[string]function.Function {
	return map[string]function.Function{
		"upper":    stdlib.UpperFunc,
		"lower":    stdlib.LowerFunc,
		"format":   stdlib.FormatFunc,
		"join":     stdlib.JoinFunc,
		"concat":   stdlib.ConcatFunc,
		"coalesce": stdlib.CoalesceFunc,
		"substr":   stdlib.SubstrFunc,
		"replace":  stdlib.ReplaceFunc,
	}
}

// namingRule evaluates a module's naming block for one axis combination.
type namingRule struct {
	module string
	suffix hcl.Expression
	// macros is nil when the block omits the attribute.
	macros hcl.Expression
}

var _ config.NamingRule = (*namingRule)(nil)

// Evaluate implements config.NamingRule.
func (r *namingRule) Evaluate(axisValues map[string]string) (string, []string, error) {
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"axis": stringMapValue(axisValues)},
		Functions: functions(),
	}

	suffixVal, diags := r.suffix.Value(evalCtx)
	if diags.HasErrors() {
		return "", nil, fmt.Errorf("module '%s': evaluating naming suffix: %w", r.module, diags)
	}
	suffix, err := toString(suffixVal)
	if err != nil {
		return "", nil, fmt.Errorf("module '%s': naming suffix: %w", r.module, err)
	}

	if r.macros == nil {
		return suffix, nil, nil
	}
	macrosVal, diags := r.macros.Value(evalCtx)
	if diags.HasErrors() {
		return "", nil, fmt.Errorf("module '%s': evaluating naming macros: %w", r.module, diags)
	}
	macros, err := toStringList(macrosVal)
	if err != nil {
		return "", nil, fmt.Errorf("module '%s': naming macros: %w", r.module, err)
	}
	return suffix, macros, nil
}

// overrideRule evaluates the `to` expression of an include_override block.
type overrideRule struct {
	module string
	from   string
	to     hcl.Expression
}

var _ config.OverrideRule = (*overrideRule)(nil)

// Resolve implements config.OverrideRule. A null result opts the variant out.
func (r *overrideRule) Resolve(v config.VariantInfo) (string, bool, error) {
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"variant": cty.ObjectVal(map[string]cty.Value{
				"suffix": cty.StringVal(v.Suffix),
				"key":    cty.StringVal(v.Key),
				"axis":   stringMapValue(v.AxisValues),
			}),
		},
		Functions: functions(),
	}

	val, diags := r.to.Value(evalCtx)
	if diags.HasErrors() {
		return "", false, fmt.Errorf("module '%s': include override '%s': %w", r.module, r.from, diags)
	}
	if val.IsKnown() && val.IsNull() {
		return "", false, nil
	}
	to, err := toString(val)
	if err != nil {
		return "", false, fmt.Errorf("module '%s': include override '%s': %w", r.module, r.from, err)
	}
	return to, true, nil
}

package hcl_adapter

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// stringMapValue builds a cty object whose attributes are the given strings.
func stringMapValue(m map[string]string) cty.Value {
	if len(m) == 0 {
		return cty.EmptyObjectVal
	}
	attrs := make(map[string]cty.Value, len(m))
	for k, v := range m {
		attrs[k] = cty.StringVal(v)
	}
	return cty.ObjectVal(attrs)
}

// toString converts an evaluated expression result into a Go string.
func toString(val cty.Value) (string, error) {
	if !val.IsWhollyKnown() {
		return "", fmt.Errorf("value is not known")
	}
	if val.IsNull() {
		return "", fmt.Errorf("value must not be null")
	}
	converted, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("expected a string: %w", err)
	}
	var out string
	if err := gocty.FromCtyValue(converted, &out); err != nil {
		return "", err
	}
	return out, nil
}

// toStringList converts an evaluated expression result into a []string. A
// null value yields nil.
func toStringList(val cty.Value) ([]string, error) {
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	if val.IsNull() {
		return nil, nil
	}
	converted, err := convert.Convert(val, cty.List(cty.String))
	if err != nil {
		return nil, fmt.Errorf("expected a list of strings: %w", err)
	}
	if converted.LengthInt() == 0 {
		return nil, nil
	}
	var out []string
	if err := gocty.FromCtyValue(converted, &out); err != nil {
		return nil, err
	}
	return out, nil
}

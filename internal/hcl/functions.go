package hcl

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// envFunc reads an environment variable, with an optional fallback.
var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	VarParam: &function.Parameter{Name: "default", Type: cty.String},
	Type:     function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if v, ok := os.LookupEnv(args[0].AsString()); ok {
			return cty.StringVal(v), nil
		}
		if len(args) > 1 {
			return args[1], nil
		}
		return cty.StringVal(""), nil
	},
})

// coalesceFunc returns the first argument that is neither null nor empty.
var coalesceFunc = function.New(&function.Spec{
	VarParam: &function.Parameter{Name: "vals", Type: cty.String, AllowNull: true},
	Type:     function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		for _, v := range args {
			if !v.IsNull() && v.AsString() != "" {
				return v, nil
			}
		}
		return cty.StringVal(""), nil
	},
})

// evalContext is the context configuration expressions are evaluated in.
// `config_dir` is the directory of the file being loaded.
func evalContext(path string) *hcl.EvalContext {
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		dir = filepath.Dir(path)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"config_dir": cty.StringVal(dir),
		},
		Functions: map[string]function.Function{
			"env":      envFunc,
			"coalesce": coalesceFunc,
			"lower":    stdlib.LowerFunc,
			"upper":    stdlib.UpperFunc,
			"format":   stdlib.FormatFunc,
		},
	}
}

package decodecmder

import (
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/papercomputeco/chunkstream/pkg/openai"
)

// chunkFilter selects chunks with a boolean expression evaluated against the
// chunk's JSON form, e.g. `choices[0].finish_reason == "stop"`.
type chunkFilter struct {
	program *vm.Program
}

func newChunkFilter(src string) (*chunkFilter, error) {
	if src == "" {
		return nil, nil
	}

	program, err := expr.Compile(src, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compiling filter: %w", err)
	}
	return &chunkFilter{program: program}, nil
}

// Match reports whether chunk passes the filter. A nil filter matches
// everything.
func (f *chunkFilter) Match(chunk openai.ChatCompletionChunk) (bool, error) {
	if f == nil {
		return true, nil
	}

	env, err := toMap(chunk)
	if err != nil {
		return false, err
	}

	out, err := expr.Run(f.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluating filter: %w", err)
	}

	matched, _ := out.(bool)
	return matched, nil
}

// toMap converts v to its generic JSON form so expressions and YAML output
// see the wire field names.
func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	env := map[string]any{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return env, nil
}

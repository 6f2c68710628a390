package registry

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum-optimism/infra/op-stepper/types"
)

// DataRef returns the test data key a step binds to
func DataRef(step types.StepSpec, md Metadata) string {
	if step.Using != "" {
		return step.Using
	}
	return md.DataKey
}

// BindParameters pulls the data a step refers to out of the case's test data and
// shapes it for the handler.
func BindParameters(h Handler, md Metadata, step types.StepSpec, data types.TestData) (Args, error) {
	args := Args{Kind: h.Kind()}
	if h.Kind() == ParamNone {
		return args, nil
	}

	ref := DataRef(step, md)
	if ref == "" {
		return Args{}, fmt.Errorf("%w: step %s declares no data reference", ErrParameterNotFound, step.QualifiedName())
	}
	raw, ok := data[ref]
	if !ok {
		return Args{}, fmt.Errorf("%w: %q for step %s", ErrParameterNotFound, ref, step.QualifiedName())
	}

	mismatch := func(want string) error {
		return fmt.Errorf("%w: %q for step %s is %T, want %s", ErrTypeMismatch, ref, step.QualifiedName(), raw, want)
	}

	switch h.Kind() {
	case ParamSingle:
		s, ok := scalarString(raw)
		if !ok {
			return Args{}, mismatch("a scalar")
		}
		args.Single = s

	case ParamMulti:
		switch v := raw.(type) {
		case []string:
			args.Multi = append([]string(nil), v...)
		case []any:
			args.Multi = make([]string, 0, len(v))
			for _, item := range v {
				s, ok := scalarString(item)
				if !ok {
					return Args{}, mismatch("a list of scalars")
				}
				args.Multi = append(args.Multi, s)
			}
		default:
			return Args{}, mismatch("a list")
		}

	case ParamMap:
		switch v := raw.(type) {
		case map[string]string:
			args.Map = make(map[string]string, len(v))
			for k, val := range v {
				args.Map[k] = val
			}
		case map[string]any:
			args.Map = make(map[string]string, len(v))
			for k, item := range v {
				s, ok := scalarString(item)
				if !ok {
					return Args{}, mismatch("a map of scalars")
				}
				args.Map[k] = s
			}
		default:
			return Args{}, mismatch("a map")
		}

	default:
		return Args{}, fmt.Errorf("%w: unknown parameter kind %s", ErrTypeMismatch, h.Kind())
	}

	return args, nil
}

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case uint64:
		return strconv.FormatUint(s, 10), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case json.Number:
		return s.String(), true
	default:
		return "", false
	}
}

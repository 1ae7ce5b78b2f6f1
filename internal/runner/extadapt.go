package runner

import (
	"inkvm/internal/globals"
	"inkvm/internal/value"
	"inkvm/internal/vm"
)

// adaptExternal converts a host callback written against plain Go values
// into the value.Value-based signature the executioner calls, so hosts
// binding external functions don't need to import internal/value.
func adaptExternal(fn func(args []interface{}) (interface{}, error), lookaheadSafe bool, glob *globals.Store) vm.ExternalFunc {
	return vm.ExternalFunc{
		LookaheadSafe: lookaheadSafe,
		Fn: func(args []value.Value) (value.Value, error) {
			hostArgs := make([]interface{}, len(args))
			for i, a := range args {
				hostArgs[i] = toHostValue(a, glob)
			}
			result, err := fn(hostArgs)
			if err != nil {
				return value.None, err
			}
			return fromHostValue(result, glob)
		},
	}
}

func toHostValue(v value.Value, glob *globals.Store) interface{} {
	switch v.Kind {
	case value.KindBool:
		return v.Bool
	case value.KindInt32:
		return int(v.Int)
	case value.KindUint32:
		return uint(v.Uint)
	case value.KindFloat32:
		return float64(v.Float)
	case value.KindString:
		s, _ := value.Stringify(v, glob.Strings, glob.Lists)
		return s
	case value.KindList:
		return glob.Lists.String(v.List)
	default:
		return nil
	}
}

func fromHostValue(v interface{}, glob *globals.Store) (value.Value, error) {
	switch t := v.(type) {
	case nil:
		return value.None, nil
	case bool:
		return value.Bool(t), nil
	case int:
		return value.Int(int32(t)), nil
	case int32:
		return value.Int(t), nil
	case uint32:
		return value.Uint(t), nil
	case float32:
		return value.Float(t), nil
	case float64:
		return value.Float(float32(t)), nil
	case string:
		h, err := glob.Strings.Create(t)
		if err != nil {
			return value.None, err
		}
		return value.AllocatedString(h), nil
	default:
		return value.None, nil
	}
}

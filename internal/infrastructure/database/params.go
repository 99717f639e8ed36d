package database

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
)

// normalizeParams converts caller parameters into values the engine binds.
//
// Accepted kinds: nil, any Go integer or float, string, []byte, []float32 and
// []float64 (bound as little-endian blobs), and *big.Int within int64 range.
func normalizeParams(params []any) ([]any, error) {
	if len(params) == 0 {
		return nil, nil
	}

	args := make([]any, len(params))
	for i, p := range params {
		v, err := normalizeParam(p)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i+1, err)
		}
		args[i] = v
	}
	return args, nil
}

func normalizeParam(p any) (any, error) { //nolint:gocyclo // flat type switch over bindable kinds
	switch v := p.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case []byte:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedParam, v)
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedParam, v)
		}
		return int64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case *big.Int:
		if v == nil {
			return nil, nil
		}
		if !v.IsInt64() {
			return nil, fmt.Errorf("%w: %s overflows int64", ErrUnsupportedParam, v.String())
		}
		return v.Int64(), nil
	case []float32:
		buf := make([]byte, 4*len(v))
		for i, f := range v {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
		}
		return buf, nil
	case []float64:
		buf := make([]byte, 8*len(v))
		for i, f := range v {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedParam, p)
	}
}

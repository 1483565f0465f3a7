package store

import (
	"fmt"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
)

// encodeValue converts an ir.Value to a SQL parameter.
func encodeValue(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	case ir.Null, nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%T cannot be stored in a column", v)
	}
}

// decodeColumn converts a scanned SQLite value to an ir.Value. kind comes
// from the plan layout; bool columns are stored as integers and need it to
// decode. An empty kind decodes by the driver's dynamic type.
func decodeColumn(raw any, kind model.ScalarKind) (ir.Value, error) {
	switch val := raw.(type) {
	case nil:
		return ir.Null{}, nil
	case int64:
		if kind == model.KindBool {
			return ir.Bool(val != 0), nil
		}
		return ir.Int(val), nil
	case bool:
		return ir.Bool(val), nil
	case string:
		return ir.String(val), nil
	case []byte:
		return ir.String(val), nil
	default:
		return nil, fmt.Errorf("unsupported column value %T", raw)
	}
}

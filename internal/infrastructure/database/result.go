package database

import (
	"math"
	"math/big"
)

// QueryResult is the normalized outcome of Execute.
//
// Reader statements fill Rows and leave both counters nil. Writer statements
// leave Rows empty and set RowsAffected and InsertID when the engine reported
// them.
type QueryResult struct {
	Rows         []Row    `json:"rows"`
	RowsAffected *big.Int `json:"numAffectedRows,omitempty"`
	InsertID     *big.Int `json:"insertId,omitempty"`
}

// emptyResult is returned when there is nothing to execute.
func emptyResult() *QueryResult {
	return &QueryResult{Rows: []Row{}}
}

// writerResult builds the result for a writer statement from raw engine values.
func writerResult(r RunResult) *QueryResult {
	res := emptyResult()
	if n, ok := toBigInt(r.Changes); ok {
		res.RowsAffected = n
	}
	if id, ok := toBigInt(r.LastInsertRowID); ok {
		res.InsertID = id
	}
	return res
}

// toBigInt coerces an engine-reported number into a big integer.
// It reports false for nil, NaN, infinities and non-numeric values.
func toBigInt(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case nil:
		return nil, false
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return new(big.Int).Set(n), true
	case big.Int:
		return new(big.Int).Set(&n), true
	case int:
		return big.NewInt(int64(n)), true
	case int32:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, false
		}
		i, _ := big.NewFloat(math.Trunc(n)).Int(nil)
		return i, true
	default:
		return nil, false
	}
}

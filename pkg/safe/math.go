package safe

import (
	"math"
)

// SafeAdd performs int64 addition and panics on overflow/underflow.
func SafeAdd(a, b int64) int64 {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		panic("CORE_SAFE_ADD_OVERFLOW")
	}
	return a + b
}

// SafeSub performs int64 subtraction and panics on overflow/underflow.
func SafeSub(a, b int64) int64 {
	if (b > 0 && a < math.MinInt64+b) || (b < 0 && a > math.MaxInt64+b) {
		panic("CORE_SAFE_SUB_OVERFLOW")
	}
	return a - b
}

// SafeSum folds SafeAdd over a slice, panicking on the first overflow
// instead of silently wrapping. Used by the metrics reservoir's mean,
// which must never misreport a total through a wrapped sum.
func SafeSum(values []int64) int64 {
	var total int64
	for _, v := range values {
		total = SafeAdd(total, v)
	}
	return total
}

package processor

import (
	"math"
	"strconv"
	"strings"
)

// FormatFloat 按 "20.0"、"2.5"、"1e+16" 的习惯输出浮点数：
// 整数值保留 ".0"，绝对值不在 [1e-4, 1e16) 内时使用指数形式
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		s := strconv.FormatFloat(v, 'e', -1, 64)
		// 指数至少两位: 1e-05
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := exp[1:]
		if len(digits) < 2 {
			digits = "0" + digits
		}
		return mant + "e" + sign + digits
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

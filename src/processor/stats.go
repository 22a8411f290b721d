package processor

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// coerce 把整列转换为浮点数，任何一个单元格失败即返回 *ConversionError
// NaN 是空值，不参与统计；超出范围的数按 ±Inf 处理
func coerce(column string, cells []string) ([]float64, error) {
	values := make([]float64, 0, len(cells))
	for i, cell := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil, &ConversionError{Column: column, Row: i + 1, Value: cell, Err: err}
		}
		if math.IsNaN(v) {
			continue
		}
		values = append(values, v)
	}
	return values, nil
}

// countNonNull 统计非空单元格；空字符串和gota的NaN标记视为空值
func countNonNull(cells []string) int {
	n := 0
	for _, cell := range cells {
		if cell == "" || cell == "NaN" {
			continue
		}
		n++
	}
	return n
}

// compute 在已转换的数值上计算统计量
// 方差和标准差使用 N-1 分母；空输入返回 NaN
func compute(op Operation, values []float64) float64 {
	if len(values) == 0 {
		if op == Sum {
			return 0
		}
		return math.NaN()
	}

	s := series.Floats(values)
	switch op {
	case Minimum:
		return s.Min()
	case Maximum:
		return s.Max()
	case Average:
		return s.Mean()
	case Sum:
		return floats.Sum(values)
	case Median:
		return s.Median()
	case StdDev:
		if len(values) < 2 {
			return math.NaN()
		}
		return s.StdDev()
	case Variance:
		if len(values) < 2 {
			return math.NaN()
		}
		return stat.Variance(values, nil)
	default:
		return math.NaN()
	}
}

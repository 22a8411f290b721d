package processor

import (
	"fmt"
	"strings"

	"AgentDashboard/src/datasource"
)

// Operation 支持的统计操作
type Operation int

const (
	Unsupported Operation = iota
	Minimum
	Maximum
	Average
	Sum
	Count
	Median
	StdDev
	Variance
)

// Family 一组同义关键词对应一个统计操作
type Family struct {
	Keywords []string
	Op       Operation
}

// Families 按顺序匹配，先匹配先赢
var Families = []Family{
	{Keywords: []string{"minimum", "lowest"}, Op: Minimum},
	{Keywords: []string{"maximum", "highest"}, Op: Maximum},
	{Keywords: []string{"average", "mean"}, Op: Average},
	{Keywords: []string{"sum", "total"}, Op: Sum},
	{Keywords: []string{"count", "number of"}, Op: Count},
	{Keywords: []string{"median"}, Op: Median},
	{Keywords: []string{"standard deviation", "std dev"}, Op: StdDev},
	{Keywords: []string{"variance"}, Op: Variance},
}

// UnsupportedMessage 没有匹配到任何关键词时返回的引导语
const UnsupportedMessage = "Query not supported. Please rephrase your query to include " +
	"'minimum', 'maximum', 'average', 'sum', 'count', 'median', 'standard deviation', or 'variance'."

func (op Operation) String() string {
	switch op {
	case Minimum:
		return "minimum"
	case Maximum:
		return "maximum"
	case Average:
		return "average"
	case Sum:
		return "sum"
	case Count:
		return "count"
	case Median:
		return "median"
	case StdDev:
		return "standard deviation"
	case Variance:
		return "variance"
	default:
		return "unsupported"
	}
}

// Match 把提问映射到统计操作；大小写不敏感的子串匹配
func Match(prompt string) (Operation, bool) {
	prompt = strings.ToLower(prompt)
	for _, fam := range Families {
		for _, kw := range fam.Keywords {
			if strings.Contains(prompt, kw) {
				return fam.Op, true
			}
		}
	}
	return Unsupported, false
}

// StatResult 一次查询的结果：成功时带数值，失败时带错误
type StatResult struct {
	Op     Operation
	Column string
	Value  float64
	Err    error
}

// OK 查询是否成功
func (r StatResult) OK() bool {
	return r.Err == nil
}

// String 面向用户的结果文本
func (r StatResult) String() string {
	switch {
	case r.Op == Unsupported:
		return UnsupportedMessage
	case r.Err != nil:
		return "Error: " + r.Err.Error()
	}

	v := FormatFloat(r.Value)
	switch r.Op {
	case Count:
		return fmt.Sprintf("The count of values in column '%s' is %d.", r.Column, int64(r.Value))
	case Sum, StdDev, Variance:
		return fmt.Sprintf("The %s of values in column '%s' is %s.", r.Op, r.Column, v)
	default:
		return fmt.Sprintf("The %s value in column '%s' is %s.", r.Op, r.Column, v)
	}
}

// Evaluate 根据提问计算指定列的统计值
// 纯函数：只读取 Table，不保留任何状态
func Evaluate(t *datasource.Table, column, prompt string) StatResult {
	op, ok := Match(prompt)
	if !ok {
		return StatResult{Op: Unsupported, Column: column, Err: ErrUnsupportedQuery}
	}

	res := StatResult{Op: op, Column: column}
	if t == nil || !t.HasColumn(column) {
		res.Err = &ColumnLookupError{Column: column}
		return res
	}

	cells, err := t.Column(column)
	if err != nil {
		res.Err = &ColumnLookupError{Column: column}
		return res
	}

	if op == Count {
		res.Value = float64(countNonNull(cells))
		return res
	}

	values, err := coerce(column, cells)
	if err != nil {
		res.Err = err
		return res
	}
	res.Value = compute(op, values)
	return res
}

// Package datasource 把CSV、表格区域和XLSX统一成只读的 Table
package datasource

import (
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Table 只读的二维表，每列都是字符串序列
// 由加载函数构造，构造后不再修改
type Table struct {
	df dataframe.DataFrame
}

// FromRecords 两种加载方式最终汇聚到这里：第一行为表头，其余为数据行
// 短行用空字符串补齐，长于表头的行视为解析错误
func FromRecords(records [][]string) (*Table, error) {
	if len(records) <= 1 {
		return nil, ErrNoData
	}

	width := len(records[0])
	if width == 0 {
		return nil, ErrNoData
	}

	rows := make([][]string, 0, len(records))
	rows = append(rows, records[0])
	for i, row := range records[1:] {
		switch {
		case len(row) > width:
			return nil, &ParseError{
				Row: i + 1,
				Err: fmt.Errorf("%d fields, header has %d", len(row), width),
			}
		case len(row) < width:
			padded := make([]string, width)
			copy(padded, row)
			row = padded
		}
		rows = append(rows, row)
	}

	// 关闭类型推断，所有列按字符串保存，数值转换留给查询时处理
	df := dataframe.LoadRecords(rows,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil),
	)
	if df.Err != nil {
		return nil, &ParseError{Err: df.Err}
	}
	return &Table{df: df}, nil
}

// Names 返回列名(顺序与来源一致)
func (t *Table) Names() []string {
	return t.df.Names()
}

// Nrow 数据行数
func (t *Table) Nrow() int {
	return t.df.Nrow()
}

// HasColumn 判断是否存在某列
func (t *Table) HasColumn(name string) bool {
	for _, n := range t.df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Column 返回某列所有单元格的副本
func (t *Table) Column(name string) ([]string, error) {
	if !t.HasColumn(name) {
		return nil, fmt.Errorf("column %q not found", name)
	}
	return t.df.Col(name).Records(), nil
}

// Head 返回前n行的预览，第一行为表头
func (t *Table) Head(n int) [][]string {
	if n > t.df.Nrow() {
		n = t.df.Nrow()
	}
	records := t.df.Records()
	return records[:n+1]
}

// Records 返回包含表头的全部数据
func (t *Table) Records() [][]string {
	return t.df.Records()
}

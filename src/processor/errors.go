package processor

import (
	"errors"
	"fmt"
)

// ErrUnsupportedQuery 提问中没有任何可识别的关键词
var ErrUnsupportedQuery = errors.New("query not supported")

// ColumnLookupError 选择的列不在表中
type ColumnLookupError struct {
	Column string
}

func (e *ColumnLookupError) Error() string {
	return fmt.Sprintf("column '%s' not found", e.Column)
}

// ConversionError 单元格无法转换为浮点数
type ConversionError struct {
	Column string
	Row    int
	Value  string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("could not convert string to float: '%s' (column '%s', row %d): %v",
		e.Value, e.Column, e.Row, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

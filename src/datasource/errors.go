package datasource

import (
	"errors"
	"fmt"
)

// ErrNoData 数据源返回了零行数据，与连接失败区分开
var ErrNoData = errors.New("no data found")

// ParseError 输入不是合法的分隔文本
type ParseError struct {
	Row int // 出错的数据行(从1开始)，0表示整体解析失败
	Err error
}

func (e *ParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("parse error on row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SourceError 取数步骤本身失败(网络、认证、区域写错)
type SourceError struct {
	Op  string
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

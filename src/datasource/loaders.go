package datasource

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadCSV 解析逗号分隔的字节流，第一行为表头
// 不是合法分隔文本时返回 *ParseError，零数据行时返回 ErrNoData
func LoadCSV(data []byte) (*Table, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	// 行宽由 FromRecords 统一校验
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return FromRecords(records)
}

// LoadRange 把已经取回的表格区域(二维字符串)转换成 Table
// 区域为空或只有表头时返回 ErrNoData
func LoadRange(values [][]string) (*Table, error) {
	return FromRecords(values)
}

// LoadXLSX 从XLSX字节读取指定工作表，sheet为空时读取第一个工作表
func LoadXLSX(data []byte, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("打开xlsx失败: %w", err)}
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, &ParseError{Err: fmt.Errorf("excel文件中没有工作表")}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("读取工作表 %s 失败: %w", sheet, err)}
	}
	return FromRecords(rows)
}

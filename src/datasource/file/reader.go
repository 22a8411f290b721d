// reader.go
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tealeg/xlsx"

	"AgentDashboard/src/datasource"
	"AgentDashboard/src/utils"
)

// 可加载的扩展名
var supportedExts = []string{".csv", ".xlsx"}

// Supported 判断文件扩展名是否可以加载
func Supported(path string) bool {
	return utils.Contains(supportedExts, strings.ToLower(filepath.Ext(path)))
}

// TableName 目录中使用的表名：去掉扩展名的文件名
func TableName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadFile 按扩展名读取本地CSV或XLSX文件
func ReadFile(path, sheetName string) (*datasource.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取文件 %s 失败: %w", path, err)
		}
		return datasource.LoadCSV(data)
	case ".xlsx":
		return ReadXLSX(path, sheetName)
	default:
		return nil, fmt.Errorf("不支持的文件类型: %s", path)
	}
}

// ReadXLSX 使用tealeg/xlsx打开Excel文件并转换成Table
func ReadXLSX(filePath, sheetName string) (*datasource.Table, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("xlsx open file false: %w", err)
	}
	return sheetToTable(xlFile, sheetName)
}

// ReadXLSXBinary 从内存中的XLSX字节读取(邮件附件)
func ReadXLSXBinary(data []byte, sheetName string) (*datasource.Table, error) {
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, fmt.Errorf("xlsx open binary false: %w", err)
	}
	return sheetToTable(xlFile, sheetName)
}

func sheetToTable(xlFile *xlsx.File, sheetName string) (*datasource.Table, error) {
	if len(xlFile.Sheets) == 0 {
		return nil, fmt.Errorf("excel文件中没有工作表")
	}

	// sheetName为空或不存在时使用第一个工作表
	sheet, ok := xlFile.Sheet[sheetName]
	if !ok || sheetName == "" {
		sheet = xlFile.Sheets[0]
	}
	return datasource.FromRecords(sheetRecords(sheet))
}

// sheetRecords 将xlsx.Sheet转换为二维文本，第一行是标题行
func sheetRecords(sheet *xlsx.Sheet) [][]string {
	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			records = append(records, nil)
			continue
		}
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		records = append(records, cells)
	}
	return records
}

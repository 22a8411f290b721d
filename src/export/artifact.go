// Package export 生成可下载的结果文件
package export

import (
	"bytes"
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"

	"AgentDashboard/src/utils"
)

const (
	// Header 结果文件唯一的列名
	Header = "Extracted Info"

	CSVFileName  = "extracted_info.csv"
	CSVMediaType = "text/csv"

	XLSXFileName  = "extracted_info.xlsx"
	XLSXMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	sheetName = "Sheet1"
)

// Artifact 一个可下载的字节块
type Artifact struct {
	FileName  string
	MediaType string
	Data      []byte
}

// Frame 一行一列的结果DataFrame
func Frame(text string) dataframe.DataFrame {
	return dataframe.New(series.New([]string{text}, series.String, Header))
}

// CSV 生成单行单列的 extracted_info.csv
func CSV(text string) (Artifact, error) {
	var buf bytes.Buffer
	if err := Frame(text).WriteCSV(&buf); err != nil {
		return Artifact{}, fmt.Errorf("写入CSV失败: %w", err)
	}
	return Artifact{FileName: CSVFileName, MediaType: CSVMediaType, Data: buf.Bytes()}, nil
}

// XLSX 生成同样布局的工作簿
func XLSX(text string) (Artifact, error) {
	f := excelize.NewFile()
	defer f.Close()

	df := Frame(text)
	if err := utils.WriteFrame(f, sheetName, df); err != nil {
		return Artifact{}, fmt.Errorf("写入工作表失败: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return Artifact{}, fmt.Errorf("保存Excel失败: %w", err)
	}
	return Artifact{FileName: XLSXFileName, MediaType: XLSXMediaType, Data: buf.Bytes()}, nil
}

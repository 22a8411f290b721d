// Package sheets 通过 Google Sheets API 拉取表格区域
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"AgentDashboard/src/datasource"
)

// ErrCredentials 服务账号凭据缺失或格式错误
var ErrCredentials = errors.New("google sheets credentials are not set up correctly")

// Fetcher 表格区域取数接口，认证由实现方负责
type Fetcher interface {
	// FetchRange 返回 rangeName(如 "Sheet1!A1:D10")内的二维单元格文本
	FetchRange(ctx context.Context, spreadsheetID, rangeName string) ([][]string, error)
}

// Client 基于服务账号的只读客户端
type Client struct {
	svc *gsheets.Service
}

// NewClient 使用服务账号JSON创建客户端
func NewClient(ctx context.Context, credentialsJSON []byte) (*Client, error) {
	if len(credentialsJSON) == 0 {
		return nil, ErrCredentials
	}
	svc, err := gsheets.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(gsheets.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentials, err)
	}
	return &Client{svc: svc}, nil
}

// NewClientFromFile 从凭据文件创建客户端
func NewClientFromFile(ctx context.Context, path string) (*Client, error) {
	if path == "" {
		return nil, ErrCredentials
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentials, err)
	}
	return NewClient(ctx, data)
}

// FetchRange 实现 Fetcher，单次阻塞调用，不做重试
func (c *Client) FetchRange(ctx context.Context, spreadsheetID, rangeName string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, rangeName).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return stringify(resp.Values), nil
}

// stringify API返回的是 interface{}，统一转为文本
func stringify(values [][]interface{}) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = make([]string, len(row))
		for j, cell := range row {
			if cell == nil {
				continue
			}
			out[i][j] = fmt.Sprint(cell)
		}
	}
	return out
}

// LoadSheet 取数并转换成 Table
// 零行返回 datasource.ErrNoData，取数失败包装成 *datasource.SourceError
func LoadSheet(ctx context.Context, f Fetcher, spreadsheetID, rangeName string) (*datasource.Table, error) {
	values, err := f.FetchRange(ctx, spreadsheetID, rangeName)
	if err != nil {
		return nil, &datasource.SourceError{Op: "fetch range " + rangeName, Err: err}
	}
	return datasource.LoadRange(values)
}

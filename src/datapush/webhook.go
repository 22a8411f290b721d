package datapush

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Payload 推送给webhook的JSON内容
type Payload struct {
	ExtractedInfo string    `json:"Extracted Info"`
	Column        string    `json:"column"`
	Operation     string    `json:"operation"`
	OK            bool      `json:"ok"`
	Source        string    `json:"source,omitempty"`
	Time          time.Time `json:"time"`
}

// WebhookResponse 对端约定的响应结构，errcode非0视为失败
type WebhookResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Pusher 把查询结果推送到配置的webhook
type Pusher struct {
	URL           string
	RetryTimes    int
	RetryInterval time.Duration
	Client        *http.Client
}

// NewPusher 创建推送器
func NewPusher(url string, retryTimes int, retryInterval time.Duration) *Pusher {
	if retryTimes < 1 {
		retryTimes = 1
	}
	return &Pusher{
		URL:           url,
		RetryTimes:    retryTimes,
		RetryInterval: retryInterval,
		Client:        &http.Client{Timeout: 10 * time.Second},
	}
}

// Push 发送结果，失败按配置重试
func (p *Pusher) Push(ctx context.Context, payload Payload) error {
	if p.URL == "" {
		return fmt.Errorf("webhook地址未配置")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求体失败: %v", err)
	}

	return retry(ctx, func() error {
		return p.post(ctx, body)
	}, p.RetryTimes, p.RetryInterval)
}

func (p *Pusher) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建请求失败: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %v", err)
	}

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook返回状态码 %d", resp.StatusCode)
	}

	// 空响应或非JSON响应按成功处理
	var result WebhookResponse
	if len(respBody) > 0 && json.Unmarshal(respBody, &result) == nil && result.ErrCode != 0 {
		return fmt.Errorf("推送失败: %s", result.ErrMsg)
	}
	return nil
}

// 重试函数
func retry(ctx context.Context, fn func() error, times int, interval time.Duration) error {
	var err error
	for i := 0; i < times; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < times-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return fmt.Errorf("重试 %d 次后失败: %v", times, err)
}

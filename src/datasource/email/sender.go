package email

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"

	"AgentDashboard/src/export"
)

// SMTPConfig 发信账号
type SMTPConfig struct {
	Server   string // 例如 "smtp.qq.com:465"，不带端口时默认465
	Username string
	Password string
}

// sendFunc 便于测试替换
type sendFunc func(e *email.Email, addr string, auth smtp.Auth, cfg *tls.Config) error

func sendWithTLS(e *email.Email, addr string, auth smtp.Auth, cfg *tls.Config) error {
	return e.SendWithTLS(addr, auth, cfg)
}

// Sender 把查询结果作为附件发送给用户
type Sender struct {
	cfg  SMTPConfig
	send sendFunc
}

// NewSender 创建发信器
func NewSender(cfg SMTPConfig) *Sender {
	return &Sender{cfg: cfg, send: sendWithTLS}
}

// SendResult 正文为结果文本，附件为 extracted_info.csv
func (s *Sender) SendResult(to []string, text string, art export.Artifact) error {
	if s.cfg.Server == "" || s.cfg.Username == "" {
		return fmt.Errorf("发件邮箱未配置")
	}
	if len(to) == 0 {
		return fmt.Errorf("收件人为空")
	}

	e := email.NewEmail()
	e.From = fmt.Sprintf("Agent Dashboard <%s>", s.cfg.Username)
	e.To = to
	e.Subject = "Extracted Information"
	e.Text = []byte(text + "\n")

	if _, err := e.Attach(bytes.NewReader(art.Data), art.FileName, art.MediaType); err != nil {
		return fmt.Errorf("附件添加失败: %w", err)
	}

	// 确保服务器地址包含端口
	smtpAddr := s.cfg.Server
	if !strings.Contains(smtpAddr, ":") {
		smtpAddr += ":465" // 默认 SSL 端口
	}
	host := strings.Split(smtpAddr, ":")[0]

	err := s.send(e, smtpAddr,
		smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, host),
		&tls.Config{ServerName: host},
	)
	if err != nil {
		return fmt.Errorf("邮件发送失败: %w (Server: %s)", err, smtpAddr)
	}
	return nil
}

// client.go
package email

import (
	// 标准库导入
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync"
	"time"

	// 第三方库导入
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	// 项目内部导入
	"AgentDashboard/src/storage"
)

/******************** 常量定义 ********************/
const (
	MaxFetchMessages   = 100            // 单次最大获取邮件数量，防止内存溢出
	FetchBufferSize    = 10             // 邮件获取通道缓冲区大小
	RecentMailDuration = 24 * time.Hour // 判定为"新邮件"的时间范围
)

/******************** 接口定义 ********************/

// MailService 邮件服务核心接口
type MailService interface {
	// Connect 建立与邮件服务器的连接
	Connect() error

	// Disconnect 安全断开与邮件服务器的连接
	Disconnect()

	// FetchUnreadEmails 获取未读邮件列表
	FetchUnreadEmails() ([]*Email, error)
}

/******************** 数据结构 ********************/

// Email 邮件基础数据结构
type Email struct {
	UID         uint32        // 邮件唯一标识符(IMAP UID)
	Date        time.Time     // 邮件发送时间
	From        string        // 发件人信息(已解码)
	Subject     string        // 邮件主题(已解码)
	Attachments []*Attachment // 邮件附件列表
}

// Attachment 邮件附件数据结构
type Attachment struct {
	Filename string // 附件文件名(已解码)
	Content  []byte // 附件二进制内容
}

/******************** 邮件客户端实现 ********************/

// dialFunc 建立到IMAP服务器的连接，生产环境为TLS
type dialFunc func(addr string) (*client.Client, error)

func dialTLS(addr string) (*client.Client, error) {
	return client.DialTLS(addr, nil)
}

// EmailClient 基于go-imap的收件箱轮询客户端，方法之间用mu串行
type EmailClient struct {
	server   string
	username string
	password string
	dial     dialFunc
	logger   *storage.Logger

	mu sync.Mutex
	c  *client.Client // 为空表示未连接
}

// NewEmailClient 创建客户端，server 形如 "imap.qq.com:993"
func NewEmailClient(server, username, password string, logger *storage.Logger) *EmailClient {
	return &EmailClient{
		server:   server,
		username: username,
		password: password,
		dial:     dialTLS,
		logger:   logger,
	}
}

// Connect 登录服务器；已有连接仍然可用时直接复用
func (s *EmailClient) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil {
		if _, err := s.c.Capability(); err == nil {
			return nil
		}
		s.c.Logout()
		s.c = nil
	}

	c, err := s.dial(s.server)
	if err != nil {
		return fmt.Errorf("连接服务器 %s 失败: %w", s.server, err)
	}
	if err := c.Login(s.username, s.password); err != nil {
		c.Logout()
		return fmt.Errorf("登录失败: %w", err)
	}
	s.c = c
	return nil
}

// Disconnect 登出并丢弃连接，可重复调用
func (s *EmailClient) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil {
		s.c.Logout()
		s.c = nil
	}
}

// FetchUnreadEmails 取INBOX中最近一天内的未读邮件，最多 MaxFetchMessages 封
func (s *EmailClient) FetchUnreadEmails() ([]*Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c == nil {
		return nil, fmt.Errorf("未连接到邮件服务器")
	}
	if _, err := s.c.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("选择邮箱失败: %w", err)
	}

	ids, err := s.searchUnread(time.Now().Add(-RecentMailDuration))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxFetchMessages {
		ids = ids[:MaxFetchMessages]
	}
	return s.fetchMessages(ids)
}

func (s *EmailClient) searchUnread(since time.Time) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = since

	ids, err := s.c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("搜索邮件失败: %w", err)
	}
	return ids, nil
}

// fetchMessages 拉取整封邮件并解析，单封解析失败只记录日志
func (s *EmailClient) fetchMessages(ids []uint32) ([]*Email, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, FetchBufferSize)
	done := make(chan error, 1)
	go func() {
		done <- s.c.Fetch(seqset, items, messages)
	}()

	var emails []*Email
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			s.logger.Warning("邮件正文为空", "uid", msg.Uid)
			continue
		}
		parsed, err := ParseMessage(msg.Uid, body)
		if err != nil {
			s.logger.Warning("解析邮件失败", "uid", msg.Uid, "err", err)
			continue
		}
		emails = append(emails, parsed)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("获取邮件内容失败: %w", err)
	}
	return emails, nil
}

/******************** 邮件解析相关 ********************/

// ParseMessage 解析一封RFC 5322邮件，收集全部附件
func ParseMessage(uid uint32, r io.Reader) (*Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("创建邮件阅读器失败: %w", err)
	}

	header := mr.Header
	date, _ := header.Date() // 日期解析错误不影响后续处理

	email := &Email{
		UID:     uid,
		Date:    date,
		From:    decodeHeader(header.Get("From")),
		Subject: decodeHeader(header.Get("Subject")),
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取邮件分段失败: %w", err)
		}

		h, ok := p.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		att, err := parseAttachment(h, p.Body)
		if err != nil {
			continue // 跳过无效附件
		}
		email.Attachments = append(email.Attachments, att)
	}
	return email, nil
}

// parseAttachment 解析单个附件
func parseAttachment(h *mail.AttachmentHeader, body io.Reader) (*Attachment, error) {
	filename, err := h.Filename()
	if err != nil || filename == "" {
		return nil, fmt.Errorf("无效的附件名")
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return nil, fmt.Errorf("读取附件内容失败: %w", err)
	}

	return &Attachment{
		Filename: decodeHeader(filename),
		Content:  buf.Bytes(),
	}, nil
}

/******************** 工具函数 ********************/

var headerDecoder = mime.WordDecoder{CharsetReader: charsetReader}

// decodeHeader 解码 =?charset?B?...?= 形式的头部，失败时原样返回
func decodeHeader(header string) string {
	if decoded, err := headerDecoder.DecodeHeader(header); err == nil {
		return decoded
	}
	return header
}

// charsetReader GBK系列转UTF-8，其他字符集交给调用方
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "gbk", "gb2312", "gb18030":
		return transform.NewReader(input, simplifiedchinese.GBK.NewDecoder()), nil
	default:
		return input, nil // 其他编码原样返回
	}
}

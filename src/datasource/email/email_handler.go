// email_handler.go
package email

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"AgentDashboard/src/datasource"
	"AgentDashboard/src/datasource/file"
	"AgentDashboard/src/storage"
)

// Publisher 接收附件解析出来的表(session.Catalog 实现了该接口)
type Publisher interface {
	Publish(name, source string, t *datasource.Table)
}

// ====================== 邮件处理器实现 ======================

// AttachmentHandler 把目标邮件中的CSV/XLSX附件加载为表并发布
type AttachmentHandler struct {
	TargetSubject string // 目标邮件主题关键词
	SheetName     string // XLSX附件读取的工作表
	publisher     Publisher
	processedUIDs map[uint32]bool // 已处理邮件UID记录
	mu            sync.RWMutex    // 保护processedUIDs的读写锁
}

// NewAttachmentHandler 创建附件处理器
func NewAttachmentHandler(subject, sheetName string, publisher Publisher) *AttachmentHandler {
	return &AttachmentHandler{
		TargetSubject: subject,
		SheetName:     sheetName,
		publisher:     publisher,
		processedUIDs: make(map[uint32]bool),
	}
}

// IsProcessed 检查邮件是否已处理过（线程安全）
func (h *AttachmentHandler) IsProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

// markAsProcessed 标记邮件为已处理（线程安全）
func (h *AttachmentHandler) markAsProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// Handle 处理单个邮件，返回发布的表名
func (h *AttachmentHandler) Handle(email *Email) ([]string, error) {
	if h.IsProcessed(email.UID) {
		return nil, nil
	}

	if !strings.Contains(email.Subject, h.TargetSubject) {
		return nil, nil
	}

	var (
		published []string
		errs      []string
	)
	for _, att := range email.Attachments {
		if !file.Supported(att.Filename) {
			continue
		}
		tbl, err := h.load(att)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", att.Filename, err))
			continue
		}
		name := file.TableName(att.Filename)
		h.publisher.Publish(name, fmt.Sprintf("email:%d/%s", email.UID, att.Filename), tbl)
		published = append(published, name)
	}

	// 有成功加载的附件才标记为已处理
	if len(published) > 0 {
		h.markAsProcessed(email.UID)
	}
	if len(errs) > 0 {
		return published, fmt.Errorf("附件加载失败: %s", strings.Join(errs, "; "))
	}
	return published, nil
}

func (h *AttachmentHandler) load(att *Attachment) (*datasource.Table, error) {
	switch strings.ToLower(filepath.Ext(att.Filename)) {
	case ".csv":
		return datasource.LoadCSV(att.Content)
	default:
		return file.ReadXLSXBinary(att.Content, h.SheetName)
	}
}

/******************** 业务逻辑函数 ********************/

// CheckAndProcessEmails 邮件处理主流程
// 参数:
//   - mailService: 邮件服务实例
//   - handler: 附件处理器
//   - logger: 日志记录器
//
// 返回: 本次发布的表名
func CheckAndProcessEmails(mailService MailService, handler *AttachmentHandler, logger *storage.Logger) ([]string, error) {
	startTime := time.Now()
	logger.Info("开始检查邮箱...")

	if err := mailService.Connect(); err != nil {
		return nil, fmt.Errorf("连接失败: %w", err)
	}
	defer mailService.Disconnect() // 确保连接关闭

	emails, err := mailService.FetchUnreadEmails()
	if err != nil {
		return nil, fmt.Errorf("获取邮件失败: %w", err)
	}

	targets := filterTargetEmails(emails, handler.TargetSubject)
	if len(targets) == 0 {
		logger.Info("没有目标邮件")
		return nil, nil
	}

	var published []string
	for _, e := range targets {
		names, err := handler.Handle(e)
		if err != nil {
			logger.Error("处理邮件失败", "uid", e.UID, "error", err)
		}
		published = append(published, names...)
	}

	logger.Info("邮件处理完成", "tables", len(published), "elapsed", time.Since(startTime))
	return published, nil
}

// filterTargetEmails 过滤主题包含关键词的邮件，按日期升序排列
// 同名附件以较新的邮件为准
func filterTargetEmails(emails []*Email, keyword string) []*Email {
	var targets []*Email
	for _, email := range emails {
		if strings.Contains(email.Subject, keyword) {
			targets = append(targets, email)
		}
	}

	sort.Slice(targets, func(i, j int) bool {
		return targets[i].Date.Before(targets[j].Date)
	})
	return targets
}

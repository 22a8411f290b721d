// Package web 仪表盘HTTP服务：上传、连接表格、提问、下载结果
package web

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"time"

	"AgentDashboard/src/datapush"
	"AgentDashboard/src/datasource/sheets"
	"AgentDashboard/src/export"
	"AgentDashboard/src/session"
	"AgentDashboard/src/storage"
)

const (
	MaxFileSize   = 10 << 20 // 10MB
	PreviewRows   = 5
	sessionCookie = "session_id"
)

// ResultSender 结果邮件发送(email.Sender 实现)
type ResultSender interface {
	SendResult(to []string, text string, art export.Artifact) error
}

// ResultPusher 结果webhook推送(datapush.Pusher 实现)
type ResultPusher interface {
	Push(ctx context.Context, payload datapush.Payload) error
}

// Options 服务依赖；Fetcher/Sender/Pusher 为空时对应功能返回提示信息
type Options struct {
	Store        *session.Store
	Catalog      *session.Catalog
	Fetcher      sheets.Fetcher
	Sender       ResultSender
	Pusher       ResultPusher
	Logger       *storage.Logger
	SheetName    string        // 上传XLSX时读取的工作表
	FetchTimeout time.Duration // 单次表格取数超时
}

// Server 仪表盘服务
type Server struct {
	opts Options
	mux  *http.ServeMux
}

// NewServer 创建服务并注册路由
func NewServer(opts Options) *Server {
	if opts.Store == nil {
		opts.Store = session.NewStore()
	}
	if opts.Catalog == nil {
		opts.Catalog = session.NewCatalog()
	}
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = 30 * time.Second
	}

	s := &Server{opts: opts, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /{$}", s.indexHandler)
	s.mux.HandleFunc("POST /upload", s.uploadHandler)
	s.mux.HandleFunc("POST /sheets/load", s.sheetsHandler)
	s.mux.HandleFunc("GET /catalog", s.catalogHandler)
	s.mux.HandleFunc("POST /catalog/attach", s.attachHandler)
	s.mux.HandleFunc("POST /extract", s.extractHandler)
	s.mux.HandleFunc("GET /extract/download", s.downloadHandler)
	s.mux.HandleFunc("POST /extract/email", s.emailHandler)
	s.mux.HandleFunc("POST /extract/push", s.pushHandler)
	s.mux.HandleFunc("GET /logs", s.logsHandler)
	return s
}

// Handler 返回根handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe 启动服务，ctx结束时优雅关闭
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          s.errorLog(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// errorLog net/http内部错误(握手失败、panic恢复)写入仪表盘日志
func (s *Server) errorLog() *log.Logger {
	if s.opts.Logger == nil {
		return nil
	}
	return slog.NewLogLogger(s.opts.Logger.Slog().Handler(), slog.LevelError)
}

// sessionID 读取会话cookie，没有则新建
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := session.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

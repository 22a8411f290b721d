package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	slogseq "github.com/sokkalf/slog-seq"
)

// LogLevel 定义日志级别类型
type LogLevel int

// 日志级别常量定义
const (
	DEBUG   LogLevel = iota // 调试信息
	INFO                    // 普通信息
	WARNING                 // 警告信息
	ERROR                   // 错误信息
	FATAL                   // 致命错误
)

// levelFatal slog没有FATAL级别，取一个高于Error的值
const levelFatal = slog.Level(12)

// Logger 日志记录器结构体
// 底层使用slog：文本格式写入日志文件并广播给订阅者，可选同时发送到Seq
type Logger struct {
	path   string
	sink   *fileSink
	hub    *broadcaster
	logger *slog.Logger
	close  func()
}

// Options 创建Logger时的可选项
type Options struct {
	SeqURL string     // Seq服务地址，为空则只写文件
	Level  slog.Level // 最低记录级别
}

// NewLogger 创建新的日志记录器
// 参数:
//
//	filename: 日志文件路径
//	opts: 可选配置
//
// 返回值:
//
//	*Logger: 日志记录器实例
//	error: 创建过程中的错误
func NewLogger(filename string, opts Options) (*Logger, error) {
	file, err := openLogFile(filename)
	if err != nil {
		return nil, err
	}

	sink := &fileSink{file: file}
	hub := &broadcaster{}
	handlerOpts := &slog.HandlerOptions{
		Level:       opts.Level,
		ReplaceAttr: replaceLevel,
	}
	handlers := []slog.Handler{slog.NewTextHandler(io.MultiWriter(sink, hub), handlerOpts)}
	closeFn := func() {}

	if opts.SeqURL != "" {
		_, seqHandler := slogseq.NewLogger(
			opts.SeqURL,
			slogseq.WithBatchSize(10),
			slogseq.WithFlushInterval(500*time.Millisecond),
			slogseq.WithHandlerOptions(handlerOpts),
		)
		if seqHandler != nil {
			handlers = append(handlers, seqHandler)
			closeFn = func() { seqHandler.Close() }
		}
	}

	return &Logger{
		path:   filename,
		sink:   sink,
		hub:    hub,
		logger: slog.New(&multiHandler{handlers: handlers}),
		close:  closeFn,
	}, nil
}

// NewWriterLogger 把日志写到任意writer，命令行与测试使用
func NewWriterLogger(w io.Writer) *Logger {
	hub := &broadcaster{}
	h := slog.NewTextHandler(io.MultiWriter(w, hub), &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: replaceLevel,
	})
	return &Logger{
		hub:    hub,
		logger: slog.New(h),
		close:  func() {},
	}
}

func openLogFile(filename string) (*os.File, error) {
	// 打开或创建日志文件，权限设置为0644
	return os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// Close 关闭日志文件并刷新Seq缓冲
func (l *Logger) Close() error {
	l.close()
	if l.sink == nil {
		return nil
	}
	return l.sink.swap(nil)
}

// Reopen 重新打开一个文件(收到SIGHUP时调用)
// 参数：
// filename：新文件的路径
// 返回值：
// error：重建文件时的错误
func (l *Logger) Reopen(filename string) error {
	if l.sink == nil {
		return nil
	}
	file, err := openLogFile(filename)
	if err != nil {
		return err
	}
	l.path = filename
	return l.sink.swap(file)
}

// Log 记录日志方法
// 参数:
//
//	level: 日志级别
//	message: 日志消息内容
//	args: 结构化字段(key, value 成对)
func (l *Logger) Log(level LogLevel, message string, args ...any) {
	l.logger.Log(context.Background(), level.slogLevel(), message, args...)
}

// Slog 返回底层的 *slog.Logger，供需要标准接口的组件使用
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// CheckRotate 日志文件超过 maxSize 时进行轮转
// maxSize 支持 "10 * 1024 * 1024" 这种乘法表达式
func (l *Logger) CheckRotate(maxSize string) error {
	if l.sink == nil {
		return nil
	}
	size, err := l.sink.size()
	if err != nil {
		return err
	}
	if size > eval(maxSize) {
		return l.rotateLog()
	}
	return nil
}

func (l *Logger) rotateLog() error {
	ext := filepath.Ext(l.path)
	base := strings.TrimSuffix(l.path, ext)
	rotated := fmt.Sprintf("%s.%s%s", base, time.Now().Format("20060102150405"), ext)

	if err := l.sink.swap(nil); err != nil {
		return err
	}
	if err := os.Rename(l.path, rotated); err != nil {
		return fmt.Errorf("日志轮转重命名失败: %w", err)
	}
	file, err := openLogFile(l.path)
	if err != nil {
		return err
	}
	return l.sink.swap(file)
}

// Subscribe 订阅日志消息
// 返回值:
//
//	<-chan string: 只读通道，用于接收日志消息
//	func(): 取消订阅
func (l *Logger) Subscribe() (<-chan string, func()) {
	return l.hub.subscribe()
}

// String 实现LogLevel的String方法
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARNING:
		return "WARNING"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARNING:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	case FATAL:
		return levelFatal
	default:
		return slog.LevelInfo
	}
}

// replaceLevel 让自定义的FATAL级别输出为 "FATAL" 而不是 "ERROR+4"
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == levelFatal {
			a.Value = slog.StringValue("FATAL")
		}
	}
	return a
}

func eval(expr string) int64 {
	parts := strings.Split(expr, "*")
	var result int64 = 1
	for _, part := range parts {
		num, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return 0
		}
		result *= num
	}
	return result
}

// 以下是快捷日志方法
func (l *Logger) Debug(msg string, args ...any)   { l.Log(DEBUG, msg, args...) }   // 记录调试信息
func (l *Logger) Info(msg string, args ...any)    { l.Log(INFO, msg, args...) }    // 记录普通信息
func (l *Logger) Warning(msg string, args ...any) { l.Log(WARNING, msg, args...) } // 记录警告信息
func (l *Logger) Error(msg string, args ...any)   { l.Log(ERROR, msg, args...) }   // 记录错误信息
func (l *Logger) Fatal(msg string, args ...any)   { l.Log(FATAL, msg, args...) }   // 记录致命错误

// fileSink 可替换底层文件的writer
type fileSink struct {
	mu   sync.Mutex
	file *os.File
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return len(p), nil
	}
	return s.file.Write(p)
}

func (s *fileSink) swap(file *os.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.file != nil {
		err = s.file.Close()
	}
	s.file = file
	return err
}

func (s *fileSink) size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return 0, nil
	}
	info, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// broadcaster 把每条日志推送给所有订阅者
type broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan string]struct{}
}

func (b *broadcaster) Write(p []byte) (int, error) {
	entry := string(p)
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- entry: // 尝试发送日志条目
		default: // 如果通道已满则跳过
		}
	}
	return len(p), nil
}

func (b *broadcaster) subscribe() (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers == nil {
		b.subscribers = make(map[chan string]struct{})
	}
	// 创建带缓冲的通道(容量100)
	ch := make(chan string, 100)
	b.subscribers[ch] = struct{}{}
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, ch)
	}
}

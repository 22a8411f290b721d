// monitor.go
package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileMonitor 监控投放目录中新写入的CSV/XLSX文件
type FileMonitor struct {
	watchDir string
	watcher  *fsnotify.Watcher
	lastMod  map[string]time.Time
	mu       sync.Mutex
}

// NewFileMonitor 创建监控器，目录不存在时自动创建
func NewFileMonitor(dir string) (*FileMonitor, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &FileMonitor{
		watchDir: dir,
		watcher:  watcher,
		lastMod:  make(map[string]time.Time),
	}, nil
}

// ensureDir 确保目录存在
func ensureDir(dirPath string) error {
	if info, err := os.Stat(dirPath); err == nil {
		if info.IsDir() {
			return nil
		}
		return &os.PathError{Op: "monitor", Path: dirPath, Err: os.ErrExist}
	}
	return os.MkdirAll(dirPath, 0755)
}

// Existing 返回目录中已有的可加载文件，启动时先加载一遍
func (m *FileMonitor) Existing() ([]string, error) {
	entries, err := os.ReadDir(m.watchDir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(m.watchDir, e.Name())
		if Supported(path) {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// Watch 阻塞直到ctx结束；文件被创建或写入且修改时间更新时调用handler
func (m *FileMonitor) Watch(ctx context.Context, handler func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !Supported(event.Name) {
				continue
			}
			if m.changed(event.Name) {
				handler(event.Name)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// changed 同一文件的多次写事件只处理修改时间更新的那一次
func (m *FileMonitor) changed(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.lastMod[path]; ok && !info.ModTime().After(last) {
		return false
	}
	m.lastMod[path] = info.ModTime()
	return true
}

// Close 停止监控
func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}

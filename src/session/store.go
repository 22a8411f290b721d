// Package session 保存每个会话当前加载的表和最近一次查询结果
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"AgentDashboard/src/datasource"
	"AgentDashboard/src/processor"
)

// State 单个会话的状态
type State struct {
	Table      *datasource.Table
	Source     string // 表的来源描述，例如 "upload:sales.csv"
	LoadedAt   time.Time
	LastResult *processor.StatResult
}

// Store 会话状态存储，读写锁保证并发安全
// 各会话互相隔离，新的加载会替换该会话原来的表
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

// NewStore 创建空存储
func NewStore() *Store {
	return &Store{sessions: make(map[string]*State)}
}

// NewID 生成随机会话ID(UUIDv4)
func NewID() string {
	return uuid.NewString()
}

// Get 获取会话状态的副本
func (s *Store) Get(id string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// SetTable 替换会话的表，并清空上一次结果
func (s *Store) SetTable(id string, t *datasource.Table, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &State{Table: t, Source: source, LoadedAt: time.Now()}
}

// SetResult 记录会话最近一次查询结果
func (s *Store) SetResult(id string, r processor.StatResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		st = &State{}
		s.sessions[id] = st
	}
	st.LastResult = &r
}

// Delete 丢弃会话
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len 当前会话数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Entry 目录中的一张共享表
type Entry struct {
	Name      string
	Table     *datasource.Table
	Source    string
	UpdatedAt time.Time
}

// Catalog 由后台任务(目录监控、邮件、定时拉取)发布的只读表
// Table 不可变，会话可以直接引用同一实例
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCatalog 创建空目录
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Entry)}
}

// Publish 发布或替换一张表
func (c *Catalog) Publish(name, source string, t *datasource.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = Entry{Name: name, Table: t, Source: source, UpdatedAt: time.Now()}
}

// Lookup 按名称查找
func (c *Catalog) Lookup(name string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	return e, ok
}

// Names 按名称排序返回所有条目名
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for n := range c.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

// Config 结构体定义了应用程序的配置结构
type Config struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"` // 仪表盘监听地址
	DataDir    string `json:"data_dir" yaml:"data_dir"`       // 监控的数据投放目录
	SheetName  string `json:"sheet_name" yaml:"sheet_name"`   // XLSX默认读取的工作表
	LogName    string `json:"log_name" yaml:"log_name"`
	LogMaxSize string `json:"log_max_size" yaml:"log_max_size"` // 例如 "10 * 1024 * 1024"
	SeqURL     string `json:"seq_url" yaml:"seq_url"`           // 为空时不启用Seq

	Google struct {
		CredentialsFile string         `json:"credentials_file" yaml:"credentials_file"` // 服务账号JSON
		Timeout         Duration       `json:"timeout" yaml:"timeout"`                   // 单次取数超时
		Refresh         []SheetRefresh `json:"refresh" yaml:"refresh"`                   // 定时刷新到目录的表格
	} `json:"google" yaml:"google"`

	Email struct {
		Server        string   `json:"server" yaml:"server"`                 // 邮件服务器地址
		Username      string   `json:"username" yaml:"username"`             // 邮箱用户名
		Password      string   `json:"password" yaml:"password"`             // 邮箱密码
		TargetSubject string   `json:"target_subject" yaml:"target_subject"` // 需要匹配的邮件主题
		CheckInterval Duration `json:"check_interval" yaml:"check_interval"` // 检查新邮件的间隔时间
	} `json:"email" yaml:"email"`

	SendEmail struct {
		Server   string `json:"server" yaml:"server"`
		Username string `json:"username" yaml:"username"`
		Password string `json:"password" yaml:"password"`
	} `json:"send_email" yaml:"send_email"`

	Webhook struct {
		URL           string   `json:"url" yaml:"url"`
		RetryTimes    int      `json:"retry_times" yaml:"retry_times"`
		RetryInterval Duration `json:"retry_interval" yaml:"retry_interval"`
	} `json:"webhook" yaml:"webhook"`
}

// SheetRefresh 描述一个定时拉取的Google表格区域
type SheetRefresh struct {
	Name          string   `json:"name" yaml:"name"`
	SpreadsheetID string   `json:"spreadsheet_id" yaml:"spreadsheet_id"`
	Range         string   `json:"range" yaml:"range"`
	Interval      Duration `json:"interval" yaml:"interval"`
}

var (
	once     sync.Once
	instance *Config
)

// LoadConfig 只加载一次配置文件，后续调用返回同一实例
func LoadConfig(jsonFolder, jsonFile string) (*Config, error) {
	var err error
	once.Do(func() {
		instance, err = loadConfig(filepath.Join(jsonFolder, jsonFile))
	})
	return instance, err
}

func loadConfig(configFile string) (*Config, error) {
	data, err := readFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(data, filepath.Ext(configFile))
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

// Parse 按扩展名解析配置内容(.yaml/.yml 走YAML，其余按JSON)并补齐默认值
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("解析YAML配置失败: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("解析JSON配置失败: %w", err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default 返回只含默认值的配置，命令行一次性查询时使用
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.LogName == "" {
		c.LogName = "app.log"
	}
	if c.LogMaxSize == "" {
		c.LogMaxSize = "10 * 1024 * 1024"
	}
	if c.Google.Timeout == 0 {
		c.Google.Timeout = Duration(30 * time.Second)
	}
	if c.Email.CheckInterval == 0 {
		c.Email.CheckInterval = Duration(5 * time.Minute)
	}
	if c.Webhook.RetryTimes == 0 {
		c.Webhook.RetryTimes = 3
	}
	if c.Webhook.RetryInterval == 0 {
		c.Webhook.RetryInterval = Duration(2 * time.Second)
	}
	for i := range c.Google.Refresh {
		if c.Google.Refresh[i].Interval == 0 {
			c.Google.Refresh[i].Interval = Duration(15 * time.Minute)
		}
	}
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON/YAML中 "5m" 这样的字符串写法
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.set(s)
}

// MarshalJSON 实现json.Marshaler接口
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML 实现yaml.Unmarshaler接口
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Std 转回标准库类型
func (d Duration) Std() time.Duration { return time.Duration(d) }

// CronSpec 生成 robfig/cron 的 "@every" 表达式
func (d Duration) CronSpec() string {
	return fmt.Sprintf("@every %s", time.Duration(d).String())
}

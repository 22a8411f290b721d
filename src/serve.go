package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron"
	"github.com/spf13/cobra"

	"AgentDashboard/src/config"
	"AgentDashboard/src/datapush"
	"AgentDashboard/src/datasource/email"
	"AgentDashboard/src/datasource/file"
	"AgentDashboard/src/datasource/sheets"
	"AgentDashboard/src/session"
	"AgentDashboard/src/storage"
	"AgentDashboard/src/web"
)

// 日志大小检查间隔
const rotateSpec = "@every 1m"

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard with its background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(filepath.Dir(configPath), filepath.Base(configPath))
			if err != nil {
				return err
			}

			// 初始化日志系统
			logger, err := storage.NewLogger(cfg.LogName, storage.Options{SeqURL: cfg.SeqURL})
			if err != nil {
				return fmt.Errorf("初始化日志失败: %w", err)
			}
			defer logger.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go handleSignals(ctx, cancel, logger, cfg.LogName)

			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config/config.json", "config file (.json or .yaml)")
	return cmd
}

// serve 组装各组件并阻塞到ctx结束
func serve(ctx context.Context, cfg *config.Config, logger *storage.Logger) error {
	store := session.NewStore()
	catalog := session.NewCatalog()

	opts := web.Options{
		Store:        store,
		Catalog:      catalog,
		Logger:       logger,
		SheetName:    cfg.SheetName,
		FetchTimeout: cfg.Google.Timeout.Std(),
	}

	if cfg.Google.CredentialsFile != "" {
		client, err := sheets.NewClientFromFile(ctx, cfg.Google.CredentialsFile)
		if err != nil {
			logger.Error("Google Sheets credentials are not set up correctly.", "err", err)
		} else {
			opts.Fetcher = client
		}
	}
	if cfg.SendEmail.Server != "" {
		opts.Sender = email.NewSender(email.SMTPConfig{
			Server:   cfg.SendEmail.Server,
			Username: cfg.SendEmail.Username,
			Password: cfg.SendEmail.Password,
		})
	}
	if cfg.Webhook.URL != "" {
		opts.Pusher = datapush.NewPusher(cfg.Webhook.URL, cfg.Webhook.RetryTimes, cfg.Webhook.RetryInterval.Std())
	}

	monitor, err := file.NewFileMonitor(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("创建目录监控失败: %w", err)
	}
	defer monitor.Close()
	startFolderWatch(ctx, monitor, catalog, cfg.SheetName, logger)

	// 设置定时任务
	c := cron.New()
	if err := scheduleJobs(c, cfg, catalog, opts.Fetcher, logger); err != nil {
		logger.Error("创建定时任务失败", "err", err)
		return err
	}
	c.Start()
	defer c.Stop()

	logger.Info("仪表盘已启动，按Ctrl+C退出", "addr", cfg.ListenAddr, "data_dir", cfg.DataDir)
	return web.NewServer(opts).ListenAndServe(ctx, cfg.ListenAddr)
}

// startFolderWatch 先发布目录中已有的文件，再监控新文件
func startFolderWatch(ctx context.Context, monitor *file.FileMonitor, catalog *session.Catalog, sheetName string, logger *storage.Logger) {
	publish := func(path string) {
		t, err := file.ReadFile(path, sheetName)
		if err != nil {
			logger.Error("读取投放文件失败", "file", path, "err", err)
			return
		}
		catalog.Publish(file.TableName(path), "folder:"+filepath.Base(path), t)
		logger.Info("已发布投放文件", "file", path, "rows", t.Nrow())
	}

	existing, err := monitor.Existing()
	if err != nil {
		logger.Error("列出投放目录失败", "err", err)
	}
	for _, path := range existing {
		publish(path)
	}

	go func() {
		if err := monitor.Watch(ctx, publish); err != nil {
			logger.Error("目录监控异常退出", "err", err)
		}
	}()
}

// scheduleJobs 注册邮件轮询、表格刷新和日志轮转任务
func scheduleJobs(c *cron.Cron, cfg *config.Config, catalog *session.Catalog, fetcher sheets.Fetcher, logger *storage.Logger) error {
	if cfg.Email.Server != "" {
		mailClient := email.NewEmailClient(cfg.Email.Server, cfg.Email.Username, cfg.Email.Password, logger)
		handler := email.NewAttachmentHandler(cfg.Email.TargetSubject, cfg.SheetName, catalog)

		spec := cfg.Email.CheckInterval.CronSpec()
		err := c.AddFunc(spec, func() {
			names, err := email.CheckAndProcessEmails(mailClient, handler, logger)
			if err != nil {
				logger.Error("检查处理邮件失败", "err", err)
				return
			}
			if len(names) > 0 {
				logger.Info("邮件附件已发布", "tables", names)
			}
		})
		if err != nil {
			return fmt.Errorf("邮件任务 %s: %w", spec, err)
		}
		logger.Info("邮件监控已启动", "interval", spec)
	}

	for _, r := range cfg.Google.Refresh {
		if fetcher == nil {
			logger.Warning("未配置Google凭据，跳过定时刷新", "name", r.Name)
			continue
		}
		timeout := cfg.Google.Timeout.Std()
		err := c.AddFunc(r.Interval.CronSpec(), func() {
			refreshSheet(fetcher, catalog, r, timeout, logger)
		})
		if err != nil {
			return fmt.Errorf("刷新任务 %s: %w", r.Name, err)
		}
	}

	if cfg.LogMaxSize != "" {
		err := c.AddFunc(rotateSpec, func() {
			if err := logger.CheckRotate(cfg.LogMaxSize); err != nil {
				logger.Error("日志轮转失败", "err", err)
			}
		})
		if err != nil {
			return fmt.Errorf("日志轮转任务: %w", err)
		}
	}
	return nil
}

// refreshSheet 拉取一次表格区域并替换目录中的同名表
func refreshSheet(fetcher sheets.Fetcher, catalog *session.Catalog, r config.SheetRefresh, timeout time.Duration, logger *storage.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	t, err := sheets.LoadSheet(ctx, fetcher, r.SpreadsheetID, r.Range)
	if err != nil {
		logger.Error("刷新表格失败", "name", r.Name, "err", err)
		return
	}
	catalog.Publish(r.Name, fmt.Sprintf("sheets:%s!%s", r.SpreadsheetID, r.Range), t)
	logger.Info("表格已刷新", "name", r.Name, "rows", t.Nrow())
}

// handleSignals SIGHUP重新打开日志文件，SIGINT/SIGTERM退出
func handleSignals(ctx context.Context, cancel context.CancelFunc, logger *storage.Logger, logName string) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				if err := logger.Reopen(logName); err != nil {
					logger.Error("重新打开日志失败", "err", err)
				} else {
					logger.Info("日志文件已重新打开")
				}
				continue
			}
			logger.Info("Received signal: " + sig.String() + ", shutting down...")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

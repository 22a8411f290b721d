package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"AgentDashboard/src/datasource/file"
	"AgentDashboard/src/export"
	"AgentDashboard/src/processor"
	"AgentDashboard/src/utils"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCommand 根命令：serve 启动仪表盘，query 在命令行对本地文件提问
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agentdashboard",
		Short:         "Ask simple statistical questions about a CSV, XLSX or Google Sheets table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newQueryCommand())
	return cmd
}

func newQueryCommand() *cobra.Command {
	var (
		path   string
		sheet  string
		column string
		prompt string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Evaluate one question against a local CSV or XLSX file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !file.Supported(path) {
				return fmt.Errorf("不支持的文件类型: %s", path)
			}
			t, err := file.ReadFile(path, sheet)
			if err != nil {
				return fmt.Errorf("加载 %s 失败: %w", path, err)
			}

			res := processor.Evaluate(t, column, prompt)
			fmt.Fprintln(cmd.OutOrStdout(), res.String())

			if out == "" {
				return nil
			}
			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("创建目录失败: %w", err)
				}
			}
			if strings.EqualFold(filepath.Ext(out), ".xlsx") {
				return utils.SaveToExcel(export.Frame(res.String()), out)
			}
			art, err := export.CSV(res.String())
			if err != nil {
				return err
			}
			return os.WriteFile(out, art.Data, 0644)
		},
	}

	cmd.Flags().StringVarP(&path, "file", "f", "", "CSV or XLSX file to load")
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet to read from an XLSX file (default: first)")
	cmd.Flags().StringVarP(&column, "column", "c", "", "column to evaluate")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "question, e.g. \"what is the average\"")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the result to this .csv or .xlsx file")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("column")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

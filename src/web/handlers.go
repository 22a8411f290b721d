// handlers.go
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"AgentDashboard/src/datapush"
	"AgentDashboard/src/datasource"
	"AgentDashboard/src/datasource/file"
	"AgentDashboard/src/datasource/sheets"
	"AgentDashboard/src/export"
	"AgentDashboard/src/processor"
)

const (
	msgMissingSheetParams = "Please provide both Google Sheets ID and range."
	msgSheetNoData        = "No data found. Please check the Google Sheets ID and range."
	msgSheetConnect       = "Error connecting to Google Sheets: "
	msgNoCredentials      = "Google Sheets credentials are not set up correctly."
	msgNoTable            = "Please upload a file or load a Google Sheet first."
	msgNoResult           = "No extracted information yet."
)

// Preview 加载成功后返回的数据预览
type Preview struct {
	Source   string     `json:"source"`
	Columns  []string   `json:"columns"`
	Rows     [][]string `json:"rows"`
	RowCount int        `json:"row_count"`
}

func newPreview(source string, t *datasource.Table) Preview {
	head := t.Head(PreviewRows)
	return Preview{
		Source:   source,
		Columns:  head[0],
		Rows:     head[1:],
		RowCount: t.Nrow(),
	}
}

func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)

	if err := r.ParseMultipartForm(MaxFileSize); err != nil {
		writeError(w, http.StatusBadRequest, "File too large")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return
	}
	defer f.Close()

	if !file.Supported(header.Filename) {
		writeError(w, http.StatusBadRequest, "Invalid file type")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	var t *datasource.Table
	if strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		t, err = datasource.LoadCSV(data)
	} else {
		t, err = datasource.LoadXLSX(data, s.opts.SheetName)
	}
	if err != nil {
		s.logError("加载上传文件失败", err, "file", header.Filename)
		if errors.Is(err, datasource.ErrNoData) {
			writeError(w, http.StatusUnprocessableEntity, "No data found in the uploaded file.")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("File error: %v", err))
		return
	}

	source := "upload:" + header.Filename
	s.opts.Store.SetTable(id, t, source)
	s.logInfo("已加载上传文件", "file", header.Filename, "rows", t.Nrow())
	writeJSON(w, http.StatusOK, newPreview(source, t))
}

func (s *Server) sheetsHandler(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)

	spreadsheetID := strings.TrimSpace(r.FormValue("spreadsheet_id"))
	rangeName := strings.TrimSpace(r.FormValue("range"))
	if spreadsheetID == "" || rangeName == "" {
		writeError(w, http.StatusBadRequest, msgMissingSheetParams)
		return
	}
	if s.opts.Fetcher == nil {
		writeError(w, http.StatusServiceUnavailable, msgNoCredentials)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.FetchTimeout)
	defer cancel()

	t, err := sheets.LoadSheet(ctx, s.opts.Fetcher, spreadsheetID, rangeName)
	if err != nil {
		s.logError("加载表格区域失败", err, "spreadsheet", spreadsheetID, "range", rangeName)

		var srcErr *datasource.SourceError
		switch {
		case errors.Is(err, datasource.ErrNoData):
			writeError(w, http.StatusNotFound, msgSheetNoData)
		case errors.As(err, &srcErr):
			writeError(w, http.StatusBadGateway, msgSheetConnect+srcErr.Err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	source := fmt.Sprintf("sheets:%s!%s", spreadsheetID, rangeName)
	s.opts.Store.SetTable(id, t, source)
	s.logInfo("已加载表格区域", "spreadsheet", spreadsheetID, "range", rangeName, "rows", t.Nrow())
	writeJSON(w, http.StatusOK, newPreview(source, t))
}

func (s *Server) catalogHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"tables": s.opts.Catalog.Names()})
}

func (s *Server) attachHandler(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)

	name := r.FormValue("name")
	entry, ok := s.opts.Catalog.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("table '%s' not found", name))
		return
	}

	s.opts.Store.SetTable(id, entry.Table, entry.Source)
	writeJSON(w, http.StatusOK, newPreview(entry.Source, entry.Table))
}

func (s *Server) extractHandler(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)

	st, ok := s.opts.Store.Get(id)
	if !ok || st.Table == nil {
		writeError(w, http.StatusBadRequest, msgNoTable)
		return
	}

	column := r.FormValue("column")
	prompt := r.FormValue("prompt")
	res := processor.Evaluate(st.Table, column, prompt)
	s.opts.Store.SetResult(id, res)

	if res.OK() {
		s.logInfo("查询完成", "column", column, "op", res.Op.String(), "source", st.Source)
	} else {
		s.logWarning("查询失败", "column", column, "prompt", prompt, "err", res.Err)
	}
	writeJSON(w, http.StatusOK, map[string]string{export.Header: res.String()})
}

// lastResult 会话最近一次的查询结果
func (s *Server) lastResult(w http.ResponseWriter, r *http.Request) (processor.StatResult, string, bool) {
	id := sessionID(w, r)
	st, ok := s.opts.Store.Get(id)
	if !ok || st.LastResult == nil {
		writeError(w, http.StatusNotFound, msgNoResult)
		return processor.StatResult{}, "", false
	}
	return *st.LastResult, st.Source, true
}

func (s *Server) downloadHandler(w http.ResponseWriter, r *http.Request) {
	res, _, ok := s.lastResult(w, r)
	if !ok {
		return
	}

	var (
		art export.Artifact
		err error
	)
	switch format := r.URL.Query().Get("format"); format {
	case "", "csv":
		art, err = export.CSV(res.String())
	case "xlsx":
		art, err = export.XLSX(res.String())
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format '%s'", format))
		return
	}
	if err != nil {
		s.logError("生成下载文件失败", err)
		writeError(w, http.StatusInternalServerError, "Failed to build download")
		return
	}

	w.Header().Set("Content-Type", art.MediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Data)
}

func (s *Server) emailHandler(w http.ResponseWriter, r *http.Request) {
	res, _, ok := s.lastResult(w, r)
	if !ok {
		return
	}
	if s.opts.Sender == nil {
		writeError(w, http.StatusServiceUnavailable, "Email sending is not configured.")
		return
	}

	var to []string
	for _, addr := range strings.Split(r.FormValue("to"), ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		writeError(w, http.StatusBadRequest, "Please provide at least one recipient.")
		return
	}

	art, err := export.CSV(res.String())
	if err != nil {
		s.logError("生成附件失败", err)
		writeError(w, http.StatusInternalServerError, "Failed to build attachment")
		return
	}
	if err := s.opts.Sender.SendResult(to, res.String(), art); err != nil {
		s.logError("发送结果邮件失败", err, "to", strings.Join(to, ","))
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Error sending email: %v", err))
		return
	}

	s.logInfo("结果邮件已发送", "to", strings.Join(to, ","))
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) pushHandler(w http.ResponseWriter, r *http.Request) {
	res, source, ok := s.lastResult(w, r)
	if !ok {
		return
	}
	if s.opts.Pusher == nil {
		writeError(w, http.StatusServiceUnavailable, "Webhook push is not configured.")
		return
	}

	payload := datapush.Payload{
		ExtractedInfo: res.String(),
		Column:        res.Column,
		Operation:     res.Op.String(),
		OK:            res.OK(),
		Source:        source,
		Time:          time.Now(),
	}
	if err := s.opts.Pusher.Push(r.Context(), payload); err != nil {
		s.logError("推送结果失败", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Error pushing result: %v", err))
		return
	}

	s.logInfo("结果已推送", "column", res.Column)
	writeJSON(w, http.StatusOK, map[string]string{"status": "pushed"})
}

// logsHandler 实时日志流，客户端断开时退出
func (s *Server) logsHandler(w http.ResponseWriter, r *http.Request) {
	if s.opts.Logger == nil {
		writeError(w, http.StatusServiceUnavailable, "Logging is not configured.")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Transfer-Encoding", "chunked")

	logChan, unsubscribe := s.opts.Logger.Subscribe()
	defer unsubscribe()

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	for {
		select {
		case msg, ok := <-logChan:
			if !ok {
				return
			}
			if _, err := fmt.Fprint(w, msg); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) logInfo(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Info(msg, args...)
	}
}

func (s *Server) logWarning(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warning(msg, args...)
	}
}

func (s *Server) logError(msg string, err error, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Error(msg, append([]any{"err", err}, args...)...)
	}
}

package web

import (
	"html/template"
	"net/http"
)

// 首页：上传文件、连接表格、提问
var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>AI Agent Dashboard</title></head>
<body>
<h1>AI Agent Dashboard</h1>

<h2>Upload CSV or XLSX</h2>
<form action="/upload" method="post" enctype="multipart/form-data">
  <input type="file" name="file" accept=".csv,.xlsx">
  <button type="submit">Upload</button>
</form>

<h2>Connect Google Sheets</h2>
<form action="/sheets/load" method="post">
  <input type="text" name="spreadsheet_id" placeholder="Google Sheets ID">
  <input type="text" name="range" placeholder="Sheet1!A1:D100">
  <button type="submit">Load</button>
</form>

{{if .Tables}}
<h2>Shared tables</h2>
<form action="/catalog/attach" method="post">
  <select name="name">{{range .Tables}}<option>{{.}}</option>{{end}}</select>
  <button type="submit">Use</button>
</form>
{{end}}

{{if .Columns}}
<h2>Data preview ({{.Source}}, {{.RowCount}} rows)</h2>
<table border="1">
  <tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
  {{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}
</table>

<h2>Ask a question</h2>
<form action="/extract" method="post">
  <select name="column">{{range .Columns}}<option>{{.}}</option>{{end}}</select>
  <input type="text" name="prompt" placeholder="Find the average of {column}">
  <button type="submit">Extract Information</button>
</form>
{{end}}

{{if .Result}}
<h2>Extracted Information</h2>
<p>{{.Result}}</p>
<a href="/extract/download?format=csv">Download CSV</a>
<a href="/extract/download?format=xlsx">Download XLSX</a>
{{end}}
</body>
</html>
`))

// indexData 首页渲染数据
type indexData struct {
	Tables   []string
	Source   string
	Columns  []string
	Rows     [][]string
	RowCount int
	Result   string
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)

	data := indexData{Tables: s.opts.Catalog.Names()}
	if st, ok := s.opts.Store.Get(id); ok {
		if st.Table != nil {
			head := st.Table.Head(PreviewRows)
			data.Source = st.Source
			data.Columns = head[0]
			data.Rows = head[1:]
			data.RowCount = st.Table.Nrow()
		}
		if st.LastResult != nil {
			data.Result = st.LastResult.String()
		}
	}

	w.Header().Set("Cache-Control", "no-cache")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logError("渲染首页失败", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

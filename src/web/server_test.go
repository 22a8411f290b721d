package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"AgentDashboard/src/datapush"
	"AgentDashboard/src/datasource"
	"AgentDashboard/src/export"
	"AgentDashboard/src/session"
	"AgentDashboard/src/storage"
)

const ageCSV = "Name,Age\nann,10\nbob,20\ncid,30\n"

type fakeFetcher struct {
	values [][]string
	err    error
}

func (f *fakeFetcher) FetchRange(ctx context.Context, spreadsheetID, rangeName string) ([][]string, error) {
	return f.values, f.err
}

type fakeSender struct {
	to   []string
	text string
	art  export.Artifact
}

func (f *fakeSender) SendResult(to []string, text string, art export.Artifact) error {
	f.to, f.text, f.art = to, text, art
	return nil
}

type fakePusher struct {
	got datapush.Payload
	err error
}

func (f *fakePusher) Push(ctx context.Context, p datapush.Payload) error {
	f.got = p
	return f.err
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *http.Client) {
	t.Helper()
	srv := httptest.NewServer(NewServer(opts).Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return srv, &http.Client{Jar: jar}
}

func upload(t *testing.T, c *http.Client, base, name string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := c.Post(base+"/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func postForm(t *testing.T, c *http.Client, u string, v url.Values) *http.Response {
	t.Helper()
	resp, err := c.PostForm(u, v)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	out := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestUploadCSVAndExtract(t *testing.T) {
	srv, c := newTestServer(t, Options{})

	resp := upload(t, c, srv.URL, "people.csv", []byte(ageCSV))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var preview Preview
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&preview))
	resp.Body.Close()
	assert.Equal(t, []string{"Name", "Age"}, preview.Columns)
	assert.Equal(t, 3, preview.RowCount)
	assert.Len(t, preview.Rows, 3)
	assert.Equal(t, "upload:people.csv", preview.Source)

	resp = postForm(t, c, srv.URL+"/extract", url.Values{"column": {"Age"}, "prompt": {"What is the average age?"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	assert.Equal(t, "The average value in column 'Age' is 20.0.", out["Extracted Info"])
}

func TestPreviewLimitedToFiveRows(t *testing.T) {
	srv, c := newTestServer(t, Options{})

	csv := "x\n1\n2\n3\n4\n5\n6\n7\n"
	resp := upload(t, c, srv.URL, "x.csv", []byte(csv))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var preview Preview
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&preview))
	resp.Body.Close()
	assert.Len(t, preview.Rows, PreviewRows)
	assert.Equal(t, 7, preview.RowCount)
}

func TestUploadXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Name", "Score"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"ann", "4"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"bob", "6"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	srv, c := newTestServer(t, Options{SheetName: "Sheet1"})
	resp := upload(t, c, srv.URL, "scores.xlsx", buf.Bytes())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postForm(t, c, srv.URL+"/extract", url.Values{"column": {"Score"}, "prompt": {"total"}})
	out := decode(t, resp)
	assert.Equal(t, "The sum of values in column 'Score' is 10.0.", out["Extracted Info"])
}

func TestUploadRejects(t *testing.T) {
	srv, c := newTestServer(t, Options{})

	resp := upload(t, c, srv.URL, "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = upload(t, c, srv.URL, "empty.csv", []byte("a,b\n"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	resp = upload(t, c, srv.URL, "bad.csv", []byte("a\n\"unterminated\n"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestExtractWithoutTable(t *testing.T) {
	srv, c := newTestServer(t, Options{})

	resp := postForm(t, c, srv.URL+"/extract", url.Values{"column": {"Age"}, "prompt": {"mean"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decode(t, resp)
	assert.Equal(t, msgNoTable, out["error"])
}

func TestExtractErrorsAreMessages(t *testing.T) {
	srv, c := newTestServer(t, Options{})
	resp := upload(t, c, srv.URL, "people.csv", []byte(ageCSV))
	resp.Body.Close()

	resp = postForm(t, c, srv.URL+"/extract", url.Values{"column": {"Height"}, "prompt": {"maximum"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Error: column 'Height' not found", decode(t, resp)["Extracted Info"])

	resp = postForm(t, c, srv.URL+"/extract", url.Values{"column": {"Age"}, "prompt": {"plot it"}})
	assert.Contains(t, decode(t, resp)["Extracted Info"], "Query not supported")
}

func TestSheetsLoad(t *testing.T) {
	tests := []struct {
		name    string
		form    url.Values
		fetcher *fakeFetcher
		status  int
		errMsg  string
	}{
		{
			name:    "missing range",
			form:    url.Values{"spreadsheet_id": {"abc"}},
			fetcher: &fakeFetcher{},
			status:  http.StatusBadRequest,
			errMsg:  msgMissingSheetParams,
		},
		{
			name:    "no data",
			form:    url.Values{"spreadsheet_id": {"abc"}, "range": {"Sheet1!A1:B2"}},
			fetcher: &fakeFetcher{values: nil},
			status:  http.StatusNotFound,
			errMsg:  msgSheetNoData,
		},
		{
			name:    "fetch failure",
			form:    url.Values{"spreadsheet_id": {"abc"}, "range": {"Sheet1!A1:B2"}},
			fetcher: &fakeFetcher{err: errors.New("permission denied")},
			status:  http.StatusBadGateway,
			errMsg:  "Error connecting to Google Sheets: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, c := newTestServer(t, Options{Fetcher: tt.fetcher})
			resp := postForm(t, c, srv.URL+"/sheets/load", tt.form)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.errMsg, decode(t, resp)["error"])
		})
	}
}

func TestSheetsLoadSuccess(t *testing.T) {
	fetcher := &fakeFetcher{values: [][]string{{"Region", "Sales"}, {"N", "5"}, {"S"}}}
	srv, c := newTestServer(t, Options{Fetcher: fetcher})

	resp := postForm(t, c, srv.URL+"/sheets/load", url.Values{"spreadsheet_id": {"abc"}, "range": {"A1:B3"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postForm(t, c, srv.URL+"/extract", url.Values{"column": {"Sales"}, "prompt": {"count"}})
	assert.Equal(t, "The count of values in column 'Sales' is 1.", decode(t, resp)["Extracted Info"])
}

func TestSheetsWithoutCredentials(t *testing.T) {
	srv, c := newTestServer(t, Options{})
	resp := postForm(t, c, srv.URL+"/sheets/load", url.Values{"spreadsheet_id": {"abc"}, "range": {"A1:B3"}})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, msgNoCredentials, decode(t, resp)["error"])
}

func TestSessionsAreIsolated(t *testing.T) {
	store := session.NewStore()
	srv := httptest.NewServer(NewServer(Options{Store: store}).Handler())
	defer srv.Close()

	jarA, _ := cookiejar.New(nil)
	jarB, _ := cookiejar.New(nil)
	a := &http.Client{Jar: jarA}
	b := &http.Client{Jar: jarB}

	upload(t, a, srv.URL, "people.csv", []byte(ageCSV)).Body.Close()
	upload(t, b, srv.URL, "other.csv", []byte("Age\n1\n")).Body.Close()
	assert.Equal(t, 2, store.Len())

	resp := postForm(t, a, srv.URL+"/extract", url.Values{"column": {"Age"}, "prompt": {"maximum"}})
	assert.Equal(t, "The maximum value in column 'Age' is 30.0.", decode(t, resp)["Extracted Info"])

	resp = postForm(t, b, srv.URL+"/extract", url.Values{"column": {"Age"}, "prompt": {"maximum"}})
	assert.Equal(t, "The maximum value in column 'Age' is 1.0.", decode(t, resp)["Extracted Info"])
}

func TestCatalogAttach(t *testing.T) {
	catalog := session.NewCatalog()
	tbl, err := datasource.LoadCSV([]byte(ageCSV))
	require.NoError(t, err)
	catalog.Publish("people", "folder:people.csv", tbl)

	srv, c := newTestServer(t, Options{Catalog: catalog})

	resp, err := c.Get(srv.URL + "/catalog")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"people"}, decode(t, resp)["tables"])

	resp = postForm(t, c, srv.URL+"/catalog/attach", url.Values{"name": {"missing"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = postForm(t, c, srv.URL+"/catalog/attach", url.Values{"name": {"people"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postForm(t, c, srv.URL+"/extract", url.Values{"column": {"Age"}, "prompt": {"median"}})
	assert.Equal(t, "The median value in column 'Age' is 20.0.", decode(t, resp)["Extracted Info"])
}

func TestDownload(t *testing.T) {
	srv, c := newTestServer(t, Options{})

	resp, err := c.Get(srv.URL + "/extract/download")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	upload(t, c, srv.URL, "people.csv", []byte(ageCSV)).Body.Close()
	postForm(t, c, srv.URL+"/extract", url.Values{"column": {"Age"}, "prompt": {"minimum"}}).Body.Close()

	resp, err = c.Get(srv.URL + "/extract/download?format=csv")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, export.CSVMediaType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), export.CSVFileName)
	tbl, err := datasource.LoadCSV(body)
	require.NoError(t, err)
	col, err := tbl.Column(export.Header)
	require.NoError(t, err)
	assert.Equal(t, []string{"The minimum value in column 'Age' is 10.0."}, col)

	resp, err = c.Get(srv.URL + "/extract/download?format=xlsx")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, export.XLSXMediaType, resp.Header.Get("Content-Type"))
	tbl, err = datasource.LoadXLSX(body, "Sheet1")
	require.NoError(t, err)
	col, err = tbl.Column(export.Header)
	require.NoError(t, err)
	assert.Equal(t, []string{"The minimum value in column 'Age' is 10.0."}, col)

	resp, err = c.Get(srv.URL + "/extract/download?format=pdf")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestEmailAndPush(t *testing.T) {
	sender := &fakeSender{}
	pusher := &fakePusher{}
	srv, c := newTestServer(t, Options{Sender: sender, Pusher: pusher})

	upload(t, c, srv.URL, "people.csv", []byte(ageCSV)).Body.Close()
	postForm(t, c, srv.URL+"/extract", url.Values{"column": {"Age"}, "prompt": {"sum"}}).Body.Close()

	resp := postForm(t, c, srv.URL+"/extract/email", url.Values{"to": {""}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postForm(t, c, srv.URL+"/extract/email", url.Values{"to": {"a@example.com, b@example.com"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, sender.to)
	assert.Equal(t, "The sum of values in column 'Age' is 60.0.", sender.text)
	assert.Equal(t, export.CSVFileName, sender.art.FileName)

	resp = postForm(t, c, srv.URL+"/extract/push", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, "Age", pusher.got.Column)
	assert.Equal(t, "sum", pusher.got.Operation)
	assert.True(t, pusher.got.OK)
	assert.Equal(t, "upload:people.csv", pusher.got.Source)

	pusher.err = errors.New("boom")
	resp = postForm(t, c, srv.URL+"/extract/push", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()
}

func TestIndexShowsPreview(t *testing.T) {
	srv, c := newTestServer(t, Options{})
	upload(t, c, srv.URL, "people.csv", []byte(ageCSV)).Body.Close()

	resp, err := c.Get(srv.URL + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "<th>Age</th>")
	assert.Contains(t, string(body), "upload:people.csv")
}

func TestLogsStream(t *testing.T) {
	logger := storage.NewWriterLogger(io.Discard)
	srv, c := newTestServer(t, Options{Logger: logger})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/logs", nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	logger.Info("hello dashboard")

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.Contains(line, "hello dashboard"), line)
}

func TestServerErrorLogUsesLogger(t *testing.T) {
	var buf bytes.Buffer
	s := NewServer(Options{Logger: storage.NewWriterLogger(&buf)})

	s.errorLog().Print("http: TLS handshake error")
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "TLS handshake error")

	assert.Nil(t, NewServer(Options{}).errorLog())
}

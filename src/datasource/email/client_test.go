package email

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 内存IMAP服务，默认账号 username/password
func startIMAP(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := server.New(memory.New())
	s.AllowInsecureAuth = true
	go s.Serve(l)
	t.Cleanup(func() { s.Close() })
	return l.Addr().String()
}

func plainDial(addr string) (*client.Client, error) {
	return client.Dial(addr)
}

func appendMessage(t *testing.T, addr, raw string) {
	t.Helper()
	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Logout()
	require.NoError(t, c.Login("username", "password"))
	require.NoError(t, c.Append("INBOX", nil, time.Now(), bytes.NewBufferString(raw)))
}

func reportMessage() string {
	return strings.Join([]string{
		"From: ops@example.com",
		"Subject: daily report",
		"Date: " + time.Now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain",
		"",
		"see attached",
		"--b1",
		"Content-Type: text/csv",
		`Content-Disposition: attachment; filename="stock.csv"`,
		"",
		"Item,Qty",
		"a,1",
		"--b1--",
		"",
	}, "\r\n")
}

func TestEmailClientFetchUnread(t *testing.T) {
	addr := startIMAP(t)
	appendMessage(t, addr, reportMessage())

	c := NewEmailClient(addr, "username", "password", testLogger())
	c.dial = plainDial

	require.NoError(t, c.Connect())
	defer c.Disconnect()
	// 已连接时复用
	require.NoError(t, c.Connect())

	emails, err := c.FetchUnreadEmails()
	require.NoError(t, err)

	var report *Email
	for _, e := range emails {
		if e.Subject == "daily report" {
			report = e
		}
	}
	require.NotNil(t, report)
	assert.NotZero(t, report.UID)
	assert.Equal(t, "ops@example.com", report.From)
	require.Len(t, report.Attachments, 1)
	assert.Equal(t, "stock.csv", report.Attachments[0].Filename)

	pub := &fakePublisher{}
	names, err := NewAttachmentHandler("report", "", pub).Handle(report)
	require.NoError(t, err)
	assert.Equal(t, []string{"stock"}, names)
}

func TestEmailClientLoginFailure(t *testing.T) {
	addr := startIMAP(t)

	c := NewEmailClient(addr, "username", "wrong", testLogger())
	c.dial = plainDial
	assert.ErrorContains(t, c.Connect(), "登录失败")
}

func TestEmailClientNotConnected(t *testing.T) {
	c := NewEmailClient("127.0.0.1:1", "u", "p", testLogger())
	_, err := c.FetchUnreadEmails()
	assert.Error(t, err)

	// 未连接时断开不会出错
	c.Disconnect()
}

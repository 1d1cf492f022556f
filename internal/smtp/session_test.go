package smtp

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/storage/memory"
)

type testEnv struct {
	server    *Server
	store     *memory.Store
	mailboxes *service.MailboxService
	messages  *service.MessageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	cfg := &config.Config{
		Mailbox: config.MailboxConfig{
			AllowedDomains: []string{"tempbox.dev"},
			DefaultTTL:     time.Hour,
			MaxPerIP:       100,
		},
	}
	log := zap.NewNop()

	mailboxes := service.NewMailboxService(store, cfg, log)
	messages := service.NewMessageService(store)
	deliverer := NewDeliverer(mailboxes, messages, nil, nil, log)

	server := NewServer(Config{
		Hostname:        "tempbox.dev",
		MaxMessageBytes: 1 << 20,
		MaxLineBytes:    1024,
		IdleTimeout:     5 * time.Second,
	}, deliverer, nil, nil, log)

	return &testEnv{
		server:    server,
		store:     store,
		mailboxes: mailboxes,
		messages:  messages,
	}
}

// smtpClient 测试用客户端，逐行收发并断言应答。
type smtpClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialSession(t *testing.T, env *testEnv) *smtpClient {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	sess := newSession(env.server, serverConn)
	go sess.serve()

	t.Cleanup(func() {
		clientConn.Close()
	})

	return &smtpClient{
		t:    t,
		conn: clientConn,
		r:    bufio.NewReader(clientConn),
	}
}

func (c *smtpClient) send(line string) {
	c.t.Helper()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

func (c *smtpClient) expect(reply string) {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	assert.Equal(c.t, reply, strings.TrimRight(line, "\r\n"))
}

func createMailbox(t *testing.T, env *testEnv, prefix string) *domain.Mailbox {
	t.Helper()
	mailbox, err := env.mailboxes.Create(service.CreateMailboxInput{Prefix: prefix})
	require.NoError(t, err)
	return mailbox
}

func TestSessionHappyPath(t *testing.T) {
	env := newTestEnv(t)
	mailbox := createMailbox(t, env, "alice")

	c := dialSession(t, env)
	c.expect("220 tempbox.dev SMTP Service Ready")

	c.send("HELO client.example.com")
	c.expect("250 tempbox.dev Hello")

	c.send("MAIL FROM:<bob@example.com>")
	c.expect("250 OK")

	c.send("RCPT TO:<alice@tempbox.dev>")
	c.expect("250 OK")

	c.send("DATA")
	c.expect("354 Start mail input; end with <CRLF>.<CRLF>")

	c.send("Subject: Hi")
	c.send("")
	c.send("Hello world")
	c.send(".")
	c.expect("250 OK: Message accepted")

	// 投递在下一条命令被读取前完成，读到 221 即可安全断言
	c.send("QUIT")
	c.expect("221 Bye")

	messages, err := env.messages.List(mailbox.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "Hi", messages[0].Subject)
	assert.Equal(t, "Hello world", strings.TrimSpace(messages[0].Text))
	assert.Equal(t, "bob@example.com", messages[0].From)
	assert.Equal(t, "alice@tempbox.dev", messages[0].To)
}

func TestSessionUnknownRecipientStillAccepted(t *testing.T) {
	env := newTestEnv(t)
	mailbox := createMailbox(t, env, "alice")

	c := dialSession(t, env)
	c.expect("220 tempbox.dev SMTP Service Ready")

	c.send("HELO x")
	c.expect("250 tempbox.dev Hello")
	c.send("MAIL FROM:<bob@example.com>")
	c.expect("250 OK")
	c.send("RCPT TO:<ghost@tempbox.dev>")
	c.expect("250 OK")
	c.send("DATA")
	c.expect("354 Start mail input; end with <CRLF>.<CRLF>")
	c.send("Subject: into the void")
	c.send("")
	c.send("nobody home")
	c.send(".")
	c.expect("250 OK: Message accepted")
	c.send("QUIT")
	c.expect("221 Bye")

	messages, err := env.messages.List(mailbox.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestSessionExpiredLooksLikeUnknown(t *testing.T) {
	env := newTestEnv(t)
	mailbox := createMailbox(t, env, "alice")

	// 将邮箱改为已过期
	past := time.Now().UTC().Add(-time.Minute)
	mailbox.ExpiresAt = &past
	require.NoError(t, env.store.SaveMailbox(mailbox))

	c := dialSession(t, env)
	c.expect("220 tempbox.dev SMTP Service Ready")

	c.send("HELO x")
	c.expect("250 tempbox.dev Hello")
	c.send("MAIL FROM:<bob@example.com>")
	c.expect("250 OK")
	c.send("RCPT TO:<alice@tempbox.dev>")
	c.expect("250 OK")
	c.send("DATA")
	c.expect("354 Start mail input; end with <CRLF>.<CRLF>")
	c.send("Subject: too late")
	c.send("")
	c.send("sorry")
	c.send(".")
	// 过期邮箱与未知地址对外完全一致：照常应答
	c.expect("250 OK: Message accepted")
	c.send("QUIT")
	c.expect("221 Bye")

	messages, err := env.messages.List(mailbox.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestSessionCommandSequencing(t *testing.T) {
	env := newTestEnv(t)

	c := dialSession(t, env)
	c.expect("220 tempbox.dev SMTP Service Ready")

	// 问候前的 MAIL 被拒绝
	c.send("MAIL FROM:<bob@example.com>")
	c.expect("500 Command not recognized")

	c.send("HELO x")
	c.expect("250 tempbox.dev Hello")

	// 没有收件人时 DATA 被拒绝
	c.send("DATA")
	c.expect("500 Command not recognized")

	// 没有发件人时 RCPT 被拒绝
	c.send("RCPT TO:<alice@tempbox.dev>")
	c.expect("500 Command not recognized")

	c.send("QUIT")
	c.expect("221 Bye")
}

func TestSessionUnknownCommand(t *testing.T) {
	env := newTestEnv(t)

	c := dialSession(t, env)
	c.expect("220 tempbox.dev SMTP Service Ready")

	c.send("FOO bar")
	c.expect("500 Command not recognized")

	// 会话在错误后继续可用
	c.send("HELO x")
	c.expect("250 tempbox.dev Hello")
	c.send("QUIT")
	c.expect("221 Bye")
}

func TestSessionRsetClearsEnvelope(t *testing.T) {
	env := newTestEnv(t)

	c := dialSession(t, env)
	c.expect("220 tempbox.dev SMTP Service Ready")

	c.send("HELO x")
	c.expect("250 tempbox.dev Hello")
	c.send("MAIL FROM:<bob@example.com>")
	c.expect("250 OK")
	c.send("RCPT TO:<alice@tempbox.dev>")
	c.expect("250 OK")

	c.send("RSET")
	c.expect("250 OK")

	// 信封已清空，DATA 需要重新走 MAIL/RCPT
	c.send("DATA")
	c.expect("500 Command not recognized")

	c.send("QUIT")
	c.expect("221 Bye")
}

func TestSessionIsolation(t *testing.T) {
	env := newTestEnv(t)

	first := dialSession(t, env)
	first.expect("220 tempbox.dev SMTP Service Ready")
	first.send("HELO x")
	first.expect("250 tempbox.dev Hello")
	first.send("MAIL FROM:<bob@example.com>")
	first.expect("250 OK")
	first.send("QUIT")
	first.expect("221 Bye")

	// 新连接从初始状态开始，上一个会话的信封不可见
	second := dialSession(t, env)
	second.expect("220 tempbox.dev SMTP Service Ready")
	second.send("RCPT TO:<alice@tempbox.dev>")
	second.expect("500 Command not recognized")
	second.send("QUIT")
	second.expect("221 Bye")
}

func TestSessionMultipleMessagesPerConnection(t *testing.T) {
	env := newTestEnv(t)
	mailbox := createMailbox(t, env, "alice")

	c := dialSession(t, env)
	c.expect("220 tempbox.dev SMTP Service Ready")
	c.send("HELO x")
	c.expect("250 tempbox.dev Hello")

	for _, subject := range []string{"first", "second"} {
		c.send("MAIL FROM:<bob@example.com>")
		c.expect("250 OK")
		c.send("RCPT TO:<alice@tempbox.dev>")
		c.expect("250 OK")
		c.send("DATA")
		c.expect("354 Start mail input; end with <CRLF>.<CRLF>")
		c.send("Subject: " + subject)
		c.send("")
		c.send("body of " + subject)
		c.send(".")
		c.expect("250 OK: Message accepted")
	}

	c.send("QUIT")
	c.expect("221 Bye")

	messages, err := env.messages.List(mailbox.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
}

func TestSessionMessageSizeLimit(t *testing.T) {
	env := newTestEnv(t)
	createMailbox(t, env, "alice")

	env.server.cfg.MaxMessageBytes = 64

	c := dialSession(t, env)
	c.expect("220 tempbox.dev SMTP Service Ready")
	c.send("HELO x")
	c.expect("250 tempbox.dev Hello")
	c.send("MAIL FROM:<bob@example.com>")
	c.expect("250 OK")
	c.send("RCPT TO:<alice@tempbox.dev>")
	c.expect("250 OK")
	c.send("DATA")
	c.expect("354 Start mail input; end with <CRLF>.<CRLF>")

	c.send(strings.Repeat("x", 50))
	c.send(strings.Repeat("y", 50))
	c.send(".")
	c.expect("550 Internal server error")

	// 超限后会话回到就绪状态
	c.send("QUIT")
	c.expect("221 Bye")
}

func TestExtractAddress(t *testing.T) {
	assert.Equal(t, "bob@example.com", extractAddress("<bob@example.com>"))
	assert.Equal(t, "bob@example.com", extractAddress(" <bob@example.com> "))
	// 没有尖括号时产出空地址，由解析网关丢弃
	assert.Equal(t, "", extractAddress("bob@example.com"))
	assert.Equal(t, "", extractAddress("<>"))
}

func TestSplitCommand(t *testing.T) {
	verb, arg := splitCommand("MAIL FROM:<a@b.c>")
	assert.Equal(t, "MAIL", verb)
	assert.Equal(t, "FROM:<a@b.c>", arg)

	verb, arg = splitCommand("quit")
	assert.Equal(t, "QUIT", verb)
	assert.Equal(t, "", arg)
}

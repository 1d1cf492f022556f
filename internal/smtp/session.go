// Package smtp 实现入站 SMTP 接收端：监听器、逐行会话状态机
// 与邮件投递管道的衔接。
package smtp

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"tempbox/backend/internal/mailparse"
)

// sessionState 会话状态。状态只决定哪些命令合法，
// 不携带任何业务数据。
type sessionState int

const (
	stateInit sessionState = iota
	stateReady
	stateHaveSender
	stateHaveRecipient
	stateReceivingData
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateReady:
		return "ready"
	case stateHaveSender:
		return "have_sender"
	case stateHaveRecipient:
		return "have_recipient"
	case stateReceivingData:
		return "receiving_data"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// session 单个 SMTP 连接的会话。一个连接一个 goroutine，
// 会话内部不做并发。
type session struct {
	srv    *Server
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	state      sessionState
	sender     string
	recipients []string

	data         bytes.Buffer
	dataOverflow bool

	remoteAddr string
}

func newSession(srv *Server, conn net.Conn) *session {
	return &session{
		srv:        srv,
		conn:       conn,
		reader:     bufio.NewReaderSize(conn, srv.cfg.MaxLineBytes),
		writer:     bufio.NewWriter(conn),
		state:      stateInit,
		remoteAddr: conn.RemoteAddr().String(),
	}
}

// serve 运行会话主循环直到 QUIT、出错或连接关闭。
func (s *session) serve() {
	defer s.conn.Close()

	if err := s.reply("220 %s SMTP Service Ready", s.srv.cfg.Hostname); err != nil {
		return
	}

	for s.state != stateClosed {
		if s.srv.cfg.IdleTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.srv.cfg.IdleTimeout))
		}

		line, tooLong, err := s.readLine()
		if err != nil {
			s.srv.log.Debug("smtp session read ended",
				zap.String("remote", s.remoteAddr),
				zap.Error(err))
			return
		}

		if s.state == stateReceivingData {
			s.handleDataLine(line, tooLong)
			continue
		}

		if tooLong {
			if s.reply("500 Command not recognized") != nil {
				return
			}
			continue
		}
		if s.handleCommand(line) != nil {
			return
		}
	}
}

// readLine 读取一行并去掉行尾 CRLF。行长超过缓冲区时消费
// 余下字节直到换行，并以 tooLong 标记返回。
func (s *session) readLine() (line string, tooLong bool, err error) {
	slice, err := s.reader.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		tooLong = true
		for err == bufio.ErrBufferFull {
			_, err = s.reader.ReadSlice('\n')
		}
		if err != nil {
			return "", true, err
		}
		return "", true, nil
	}
	if err != nil {
		return "", false, err
	}

	line = string(slice)
	line = strings.TrimRight(line, "\r\n")
	return line, false, nil
}

func (s *session) reply(format string, args ...interface{}) error {
	if _, err := fmt.Fprintf(s.writer, format+"\r\n", args...); err != nil {
		return err
	}
	return s.writer.Flush()
}

// handleCommand 解析并执行一条命令。命令处理中的 panic 被
// 捕获并折算为 550,会话保持原状态继续。
func (s *session) handleCommand(line string) (writeErr error) {
	defer func() {
		if r := recover(); r != nil {
			s.srv.log.Error("smtp command handler panicked",
				zap.String("remote", s.remoteAddr),
				zap.String("state", s.state.String()),
				zap.Any("panic", r))
			if s.srv.metrics != nil {
				s.srv.metrics.SMTPSessionFaults.Inc()
			}
			writeErr = s.reply("550 Internal server error")
		}
	}()

	verb, arg := splitCommand(line)
	if s.srv.metrics != nil {
		s.srv.metrics.SMTPCommandsTotal.WithLabelValues(verb).Inc()
	}

	switch verb {
	case "HELO", "EHLO":
		s.resetEnvelope()
		s.state = stateReady
		return s.reply("250 %s Hello", s.srv.cfg.Hostname)

	case "MAIL":
		if s.state != stateReady && s.state != stateHaveSender && s.state != stateHaveRecipient {
			return s.reply("500 Command not recognized")
		}
		if !strings.HasPrefix(strings.ToUpper(arg), "FROM:") {
			return s.reply("500 Command not recognized")
		}
		s.resetEnvelope()
		s.sender = extractAddress(arg[len("FROM:"):])
		s.state = stateHaveSender
		return s.reply("250 OK")

	case "RCPT":
		if s.state != stateHaveSender && s.state != stateHaveRecipient {
			return s.reply("500 Command not recognized")
		}
		if !strings.HasPrefix(strings.ToUpper(arg), "TO:") {
			return s.reply("500 Command not recognized")
		}
		s.recipients = append(s.recipients, extractAddress(arg[len("TO:"):]))
		s.state = stateHaveRecipient
		return s.reply("250 OK")

	case "DATA":
		if s.state != stateHaveRecipient {
			return s.reply("500 Command not recognized")
		}
		s.data.Reset()
		s.dataOverflow = false
		s.state = stateReceivingData
		return s.reply("354 Start mail input; end with <CRLF>.<CRLF>")

	case "RSET":
		s.resetEnvelope()
		s.state = stateReady
		return s.reply("250 OK")

	case "QUIT":
		writeErr = s.reply("221 Bye")
		s.state = stateClosed
		return writeErr

	default:
		return s.reply("500 Command not recognized")
	}
}

// handleDataLine 处理 DATA 阶段的一行。单独的 "." 结束正文，
// 其余行按 CRLF 原样累积。
func (s *session) handleDataLine(line string, tooLong bool) {
	if !tooLong && line == "." {
		s.finalizeData()
		return
	}

	if tooLong {
		s.dataOverflow = true
		return
	}
	if int64(s.data.Len()+len(line)+2) > s.srv.cfg.MaxMessageBytes {
		s.dataOverflow = true
		return
	}
	s.data.WriteString(line)
	s.data.WriteString("\r\n")
}

// finalizeData 结束 DATA 阶段：先应答客户端，再把补全信封头
// 的原始邮件交给投递管道。投递完成前不读取下一条命令，
// 保证同一连接内的邮件顺序落库。
func (s *session) finalizeData() {
	if s.dataOverflow {
		s.srv.log.Warn("smtp message exceeded size limit",
			zap.String("remote", s.remoteAddr),
			zap.Int64("limit", s.srv.cfg.MaxMessageBytes))
		s.reply("550 Internal server error")
		s.resetEnvelope()
		s.state = stateReady
		return
	}

	raw := s.buildRawMessage()
	env := mailparse.Envelope{
		Sender:     s.sender,
		Recipients: append([]string(nil), s.recipients...),
	}

	if s.reply("250 OK: Message accepted") != nil {
		s.state = stateClosed
		return
	}

	s.dispatchDelivery(raw, env)

	s.resetEnvelope()
	s.state = stateReady
}

// buildRawMessage 在正文前补全由信封合成的 From/To/Date 头。
// 客户端自带的同名头紧随其后，解析层以首个出现者为准。
func (s *session) buildRawMessage() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", s.sender)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(s.recipients, ", "))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.Write(s.data.Bytes())
	return b.Bytes()
}

// dispatchDelivery 将投递任务交给协程池执行并等待完成；
// 池不可用或已满时在当前 goroutine 内直接投递。
func (s *session) dispatchDelivery(raw []byte, env mailparse.Envelope) {
	if s.srv.pool == nil {
		s.srv.deliverer.Deliver(raw, env)
		return
	}

	done := make(chan struct{})
	submitted := s.srv.pool.TrySubmit(func() {
		defer close(done)
		s.srv.deliverer.Deliver(raw, env)
	})
	if !submitted {
		s.srv.deliverer.Deliver(raw, env)
		return
	}
	<-done
}

func (s *session) resetEnvelope() {
	s.sender = ""
	s.recipients = nil
	s.data.Reset()
	s.dataOverflow = false
}

// splitCommand 拆出命令动词与参数，动词统一为大写。
func splitCommand(line string) (verb, arg string) {
	line = strings.TrimSpace(line)
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return strings.ToUpper(line[:i]), strings.TrimSpace(line[i+1:])
	}
	return strings.ToUpper(line), ""
}

// extractAddress 取出 MAIL FROM / RCPT TO 参数中第一对尖括号内的地址。
// 没有尖括号时返回空地址，由下游的地址解析网关丢弃。
func extractAddress(arg string) string {
	arg = strings.TrimSpace(arg)
	start := strings.IndexByte(arg, '<')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(arg[start:], '>')
	if end <= 0 {
		return ""
	}
	return strings.TrimSpace(arg[start+1 : start+end])
}

// Package mailparse 将原始 RFC822 字节流解析为结构化的入站邮件候选记录。
// 解析过程是纯转换，不访问存储，便于直接用字节夹具做单元测试。
package mailparse

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"tempbox/backend/internal/domain"
)

// ErrUnroutable 表示找不到任何可用的收件人地址，邮件被静默丢弃。
var ErrUnroutable = errors.New("no routable recipient")

// localIDSuffix 为缺失 Message-Id 的邮件合成标识时使用的本地域名后缀。
const localIDSuffix = "tempbox.local"

// Envelope 携带 SMTP 会话层面的信封信息。
type Envelope struct {
	Sender     string
	Recipients []string
}

// Email 表示解析后的入站邮件候选记录。
type Email struct {
	MessageID   string
	From        string
	FromName    string
	To          string // 解析出的收件地址，已转小写
	Subject     string
	Text        string
	HTML        string
	Headers     domain.HeaderMap
	Attachments []domain.Attachment
	Size        int64
}

// Parse 解析原始邮件字节并结合信封信息生成候选记录。
//
// 收件人解析顺序: To 头的第一个地址 → Envelope-To → Delivered-To →
// 信封中第一个 RCPT TO 地址。全部为空时返回 ErrUnroutable。
func Parse(raw []byte, env Envelope) (*Email, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse mail: %w", err)
	}

	parsed := &Email{
		Headers:     make(domain.HeaderMap, len(msg.Header)),
		Attachments: make([]domain.Attachment, 0),
		Size:        int64(len(raw)),
	}
	for key, values := range msg.Header {
		if len(values) > 0 {
			parsed.Headers[strings.ToLower(key)] = values[0]
		}
	}

	parsed.From, parsed.FromName = parseSender(msg.Header.Get("From"))

	recipient := resolveRecipient(msg.Header, env)
	if recipient == "" {
		return nil, ErrUnroutable
	}
	parsed.To = recipient

	parsed.Subject = normalizeSubject(msg.Header.Get("Subject"))
	parsed.MessageID = resolveMessageID(msg.Header.Get("Message-Id"))

	if err := parseContent(msg, parsed); err != nil {
		return nil, err
	}

	// 尽力而为的泄漏头清理；随后补一次手工 quoted-printable 解码，
	// 兜住传输编码声明缺失的场景。
	parsed.Text = StripLeakedHeaders(parsed.Text)
	if looksQuotedPrintable(parsed.Text) {
		parsed.Text = DecodeQuotedPrintable(parsed.Text)
	}

	return parsed, nil
}

// parseSender 从 From 头中提取发件地址与显示名。
func parseSender(value string) (address, name string) {
	value = strings.TrimSpace(decodeHeader(value))
	if value == "" {
		return "", ""
	}
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return value, ""
	}
	return addr.Address, addr.Name
}

// resolveRecipient 按回退顺序确定收件地址，返回小写结果。
func resolveRecipient(header mail.Header, env Envelope) string {
	if list, err := header.AddressList("To"); err == nil && len(list) > 0 {
		if addr := strings.TrimSpace(list[0].Address); addr != "" {
			return strings.ToLower(addr)
		}
	}

	for _, key := range []string{"Envelope-To", "Delivered-To"} {
		if addr := extractBareAddress(header.Get(key)); addr != "" {
			return strings.ToLower(addr)
		}
	}

	for _, rcpt := range env.Recipients {
		if addr := strings.TrimSpace(rcpt); addr != "" {
			return strings.ToLower(addr)
		}
	}
	return ""
}

// extractBareAddress 从头字段值中取出裸地址，支持尖括号包裹的形式。
func extractBareAddress(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if start := strings.Index(value, "<"); start >= 0 {
		if end := strings.Index(value[start:], ">"); end > 0 {
			return strings.TrimSpace(value[start+1 : start+end])
		}
	}
	return value
}

// normalizeSubject 解码并修剪主题，缺失或空白时使用占位值。
func normalizeSubject(value string) string {
	subject := strings.TrimSpace(decodeHeader(value))
	if subject == "" {
		return "(No Subject)"
	}
	return subject
}

// resolveMessageID 返回头部的 Message-Id，缺失时合成一个本地标识。
func resolveMessageID(value string) string {
	if id := strings.TrimSpace(value); id != "" {
		return id
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("<%d.%s@%s>", time.Now().UnixNano(), token, localIDSuffix)
}

// parseContent 提取正文与附件元数据。
func parseContent(msg *mail.Message, parsed *Email) error {
	contentType := msg.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// 没有 Content-Type 或解析失败，按纯文本处理
		body, _ := io.ReadAll(msg.Body)
		parsed.Text = string(body)
		return nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("multipart message without boundary")
		}
		if err := parseMultipart(multipart.NewReader(msg.Body, boundary), parsed); err != nil {
			return fmt.Errorf("parse multipart: %w", err)
		}
		return nil
	}

	body, err := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"), params["charset"])
	if err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if strings.HasPrefix(mediaType, "text/html") {
		parsed.HTML = body
	} else {
		parsed.Text = body
	}
	return nil
}

// parseMultipart 递归解析多部分邮件。
func parseMultipart(mr *multipart.Reader, parsed *Email) error {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		contentType := part.Header.Get("Content-Type")
		mediaType, params, err := mime.ParseMediaType(contentType)
		if err != nil {
			mediaType = "text/plain"
		}

		disposition := part.Header.Get("Content-Disposition")
		if disposition != "" {
			dispType, dispParams, _ := mime.ParseMediaType(disposition)
			if dispType == "attachment" || dispType == "inline" {
				parsed.Attachments = append(parsed.Attachments, attachmentMeta(part, mediaType, params, dispParams))
				continue
			}
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if boundary := params["boundary"]; boundary != "" {
				if err := parseMultipart(multipart.NewReader(part, boundary), parsed); err != nil {
					return err
				}
			}
			continue
		}

		body, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"), params["charset"])
		if err != nil {
			continue
		}

		if strings.HasPrefix(mediaType, "text/html") {
			if parsed.HTML == "" {
				parsed.HTML = body
			}
		} else if strings.HasPrefix(mediaType, "text/plain") {
			if parsed.Text == "" {
				parsed.Text = body
			}
		}
	}

	return nil
}

// attachmentMeta 读取附件内容以测量大小，只保留元数据。
func attachmentMeta(part *multipart.Part, mediaType string, params, dispParams map[string]string) domain.Attachment {
	filename := dispParams["filename"]
	if filename == "" {
		filename = params["name"]
	}
	if filename == "" {
		filename = "unnamed"
	}
	filename = decodeHeader(filename)

	content, err := io.ReadAll(part)
	if err != nil {
		content = nil
	}
	if strings.EqualFold(part.Header.Get("Content-Transfer-Encoding"), "base64") {
		if decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(content))); err == nil {
			content = decoded
		}
	}

	contentID := strings.Trim(strings.TrimSpace(part.Header.Get("Content-Id")), "<>")

	return domain.Attachment{
		Filename:    filename,
		ContentType: mediaType,
		Size:        int64(len(content)),
		ContentID:   contentID,
		HasContent:  len(content) > 0,
	}
}

// decodeBody 根据传输编码与字符集解码邮件体。
func decodeBody(reader io.Reader, transferEncoding, charset string) (string, error) {
	transferEncoding = strings.ToLower(strings.TrimSpace(transferEncoding))

	var decoded io.Reader
	switch transferEncoding {
	case "base64":
		decoded = base64.NewDecoder(base64.StdEncoding, reader)
	case "quoted-printable":
		decoded = quotedprintable.NewReader(reader)
	default:
		// 7bit/8bit/binary 或未知编码，直接读取
		decoded = reader
	}

	body, err := io.ReadAll(decoded)
	if err != nil {
		return "", err
	}

	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset != "" && charset != "utf-8" && charset != "us-ascii" {
		if enc := charsetEncoding(charset); enc != nil {
			if converted, _, err := transform.Bytes(enc.NewDecoder(), body); err == nil {
				body = converted
			}
		}
	}

	return string(body), nil
}

// charsetEncoding 根据字符集名称返回解码器
func charsetEncoding(charset string) encoding.Encoding {
	switch charset {
	case "gb2312", "gbk", "gb18030":
		return simplifiedchinese.GBK
	case "big5":
		return traditionalchinese.Big5
	case "iso-2022-jp":
		return japanese.ISO2022JP
	case "shift_jis":
		return japanese.ShiftJIS
	case "euc-jp":
		return japanese.EUCJP
	case "euc-kr", "ks_c_5601-1987":
		return korean.EUCKR
	default:
		return nil
	}
}

// decodeHeader 解码 RFC2047 编码的头字段。
func decodeHeader(value string) string {
	if value == "" {
		return value
	}
	decoder := new(mime.WordDecoder)
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

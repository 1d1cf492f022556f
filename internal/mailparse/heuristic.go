package mailparse

import (
	"regexp"
	"strings"
)

var qpEscapePattern = regexp.MustCompile(`=[0-9A-Fa-f]{2}`)

// StripLeakedHeaders 尝试剔除泄漏到正文中的邮件传输头。
//
// 部分上游会把完整的服务器头块（Received、DKIM-Signature 等）连同正文
// 一起塞进 text/plain 部分。当正文同时出现 "Received: by" 行和
// "DKIM-Signature:" 行时，按优先级扫描第一个可信的正文起点：
//
//  1. MIME 边界行（"--" 开头且前面已有内容）
//  2. 空行后紧跟的非头部行（非空且不含冒号）
//  3. "Content-Type: text/plain" 或 "Content-Transfer-Encoding:" 行，
//     命中后固定跳过其后 3 行
//
// 这是尽力而为的启发式，遇到对抗性或异常排版可能误判；
// 正常走 MIME 解析的邮件不会触发。
func StripLeakedHeaders(body string) string {
	if body == "" {
		return body
	}

	lines := strings.Split(body, "\n")

	hasReceived := false
	hasDKIM := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		if strings.HasPrefix(trimmed, "Received: by") {
			hasReceived = true
		}
		if strings.HasPrefix(trimmed, "DKIM-Signature:") {
			hasDKIM = true
		}
		if hasReceived && hasDKIM {
			break
		}
	}
	if !hasReceived || !hasDKIM {
		return body
	}

	if start := findBodyStart(lines); start > 0 && start < len(lines) {
		return strings.TrimSpace(strings.Join(lines[start:], "\n"))
	}
	return body
}

// findBodyStart 返回正文起始行下标，找不到时返回 -1。
func findBodyStart(lines []string) int {
	// 优先级 1: MIME 边界行
	for i, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		if i > 0 && strings.HasPrefix(trimmed, "--") && len(trimmed) > 2 {
			return i
		}
	}

	// 优先级 2: 空行后紧跟的非头部行
	for i := 0; i < len(lines)-1; i++ {
		if strings.TrimSpace(lines[i]) != "" {
			continue
		}
		next := strings.TrimSpace(lines[i+1])
		if next != "" && !strings.Contains(next, ":") {
			return i + 1
		}
	}

	// 优先级 3: 内容头行，固定跳过其后 3 行
	for i, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		if strings.HasPrefix(trimmed, "Content-Type: text/plain") ||
			strings.HasPrefix(trimmed, "Content-Transfer-Encoding:") {
			return i + 4
		}
	}

	return -1
}

// looksQuotedPrintable 判断正文是否残留 quoted-printable 编码：
// 行尾的软换行 "=" 或 "=XX" 十六进制转义。
func looksQuotedPrintable(body string) bool {
	if body == "" {
		return false
	}
	if strings.Contains(body, "=\r\n") || strings.Contains(body, "=\n") {
		return true
	}
	return qpEscapePattern.MatchString(body)
}

// DecodeQuotedPrintable 手工解码 quoted-printable 文本：
// 去掉软换行，并把每个 =XX 替换为对应的字节。
// 与标准库不同，非法序列原样保留而不是报错。
func DecodeQuotedPrintable(body string) string {
	body = strings.ReplaceAll(body, "=\r\n", "")
	body = strings.ReplaceAll(body, "=\n", "")

	var out strings.Builder
	out.Grow(len(body))
	for i := 0; i < len(body); {
		c := body[i]
		if c == '=' && i+2 < len(body) {
			hi, okHi := hexValue(body[i+1])
			lo, okLo := hexValue(body[i+2])
			if okHi && okLo {
				out.WriteByte(hi<<4 | lo)
				i += 3
				continue
			}
		}
		out.WriteByte(c)
		i++
	}
	return out.String()
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}

package httptransport

import "tempbox/backend/internal/service"

// 提示信息定义
const (
	MsgInvalidRequest  = "请求参数错误"
	MsgInvalidDuration = "有效期格式无效"

	MsgMailboxNotFound     = "邮箱不存在"
	MsgMailboxCreateFailed = "创建邮箱失败"
	MsgMailboxDeleteFailed = "删除邮箱失败"
	MsgMailboxExtendFailed = "延长邮箱有效期失败"
	MsgTooManyMailboxes    = "该 IP 创建的邮箱数量已达上限"
	MsgDomainNotAllowed    = "域名不在允许列表中"
	MsgPrefixInvalid       = "邮箱前缀格式无效"

	MsgMessageNotFound       = "邮件不存在"
	MsgMessageListFailed     = "获取邮件列表失败"
	MsgMessageDeleteFailed   = "删除邮件失败"
	MsgMessageMarkReadFailed = "标记已读失败"
	MsgMessageSearchFailed   = "搜索邮件失败"

	MsgTokenRequired = "缺少邮箱访问令牌"
	MsgTokenInvalid  = "邮箱访问令牌无效"

	MsgAdminDisabled     = "管理接口未启用"
	MsgAdminLoginFailed  = "管理员登录失败"
	MsgAdminTokenInvalid = "管理令牌无效"

	MsgInternalError = "服务器内部错误"
)

// GetErrorMessage 将业务错误映射为中文提示。
func GetErrorMessage(err error) string {
	switch err {
	case service.ErrDomainNotAllowed:
		return MsgDomainNotAllowed
	case service.ErrPrefixInvalid:
		return MsgPrefixInvalid
	case service.ErrTooManyMailboxes:
		return MsgTooManyMailboxes
	default:
		return MsgInternalError
	}
}

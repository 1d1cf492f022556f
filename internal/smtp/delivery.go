package smtp

import (
	"go.uber.org/zap"

	"tempbox/backend/internal/mailparse"
	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/websocket"
)

// 丢弃原因标签。未知地址与已过期地址共用同一标签，
// 两者对外必须不可区分。
const (
	dropReasonMalformed  = "malformed"
	dropReasonUnroutable = "unroutable"
	dropReasonUnknown    = "unknown_recipient"
	dropReasonStoreError = "store_error"
)

// Deliverer 承接会话交付的原始邮件：解析、解析收件地址、
// 过期网关校验，最后落库并推送通知。
//
// 所有失败都只记录日志与指标，绝不反馈到传输层——
// DATA 已经应答，SMTP 层的接收与路由结果互相独立。
type Deliverer struct {
	mailboxes *service.MailboxService
	messages  *service.MessageService
	hub       *websocket.Hub      // 可选
	metrics   *monitoring.Metrics // 可选
	log       *zap.Logger
}

// NewDeliverer 创建投递器。
func NewDeliverer(
	mailboxes *service.MailboxService,
	messages *service.MessageService,
	hub *websocket.Hub,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *Deliverer {
	return &Deliverer{
		mailboxes: mailboxes,
		messages:  messages,
		hub:       hub,
		metrics:   metrics,
		log:       log,
	}
}

// Deliver 处理一封由会话层交付的原始邮件。
func (d *Deliverer) Deliver(raw []byte, env mailparse.Envelope) {
	email, err := mailparse.Parse(raw, env)
	if err != nil {
		if err == mailparse.ErrUnroutable {
			d.drop(dropReasonUnroutable, "inbound message has no routable recipient",
				zap.Strings("envelope_to", env.Recipients))
			return
		}
		d.drop(dropReasonMalformed, "inbound message failed to parse", zap.Error(err))
		return
	}

	mailbox, ok := d.mailboxes.ResolveLive(email.To)
	if !ok {
		// 不存在、已停用、已过期：同一种静默丢弃
		d.drop(dropReasonUnknown, "inbound message for unknown recipient",
			zap.String("recipient", email.To))
		return
	}

	message, err := d.messages.Deliver(mailbox.ID, email)
	if err != nil {
		d.drop(dropReasonStoreError, "inbound message failed to persist",
			zap.String("mailbox_id", mailbox.ID),
			zap.Error(err))
		return
	}

	if d.metrics != nil {
		d.metrics.MessagesReceived.Inc()
	}
	if d.hub != nil {
		d.hub.NotifyNewMail(mailbox.ID, message)
	}

	d.log.Info("inbound message delivered",
		zap.String("mailbox_id", mailbox.ID),
		zap.String("message_id", message.ID),
		zap.String("from", message.From),
		zap.String("to", message.To),
		zap.Int64("size", message.Size),
	)
}

func (d *Deliverer) drop(reason, msg string, fields ...zap.Field) {
	if d.metrics != nil {
		d.metrics.MessagesDropped.WithLabelValues(reason).Inc()
	}
	d.log.Info(msg, fields...)
}

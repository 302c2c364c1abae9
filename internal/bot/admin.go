package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"khamsat_bot/internal/access"
	"khamsat_bot/internal/storage"
)

const (
	cmdMonitor     = "monitor"
	cmdPending     = "pending"
	cmdApprove     = "approve"
	cmdReject      = "reject"
	cmdRemove      = "remove"
	cmdStats       = "stats"
	cmdSubscribers = "subscribers"
	cmdResetSeen   = "resetseen"
)

func isAdminCommand(cmd string) bool {
	switch cmd {
	case cmdMonitor, cmdPending, cmdApprove, cmdReject, cmdRemove, cmdStats, cmdSubscribers, cmdResetSeen:
		return true
	}
	return false
}

func (b *Bot) handleMonitor(ctx context.Context, chatID int64, args string) {
	if args == "" {
		active, err := b.settings.IsMonitoringActive(ctx)
		if err != nil {
			b.log.Error("read monitoring flag", "error", err)
			b.reply(chatID, msgInternalError)
			return
		}
		state := "متوقفة"
		if active {
			state = "تعمل"
		}
		b.reply(chatID, fmt.Sprintf("المراقبة حالياً %s.\nالاستخدام: /monitor on أو /monitor off", state))
		return
	}

	active, err := ParseToggle(args)
	if err != nil {
		b.reply(chatID, "الاستخدام: /monitor on أو /monitor off")
		return
	}
	if err := b.settings.SetMonitoringActive(ctx, active); err != nil {
		b.log.Error("set monitoring flag", "active", active, "error", err)
		b.reply(chatID, msgInternalError)
		return
	}

	b.log.Info("monitoring toggled", "active", active, "chat_id", chatID)
	if active {
		b.reply(chatID, "▶️ تم تشغيل المراقبة.")
	} else {
		b.reply(chatID, "⏸️ تم إيقاف المراقبة.")
	}
}

func (b *Bot) handlePending(ctx context.Context, chatID int64) {
	pending, err := b.access.Pending(ctx)
	if err != nil {
		b.log.Error("list pending", "error", err)
		b.reply(chatID, msgInternalError)
		return
	}
	if len(pending) == 0 {
		b.reply(chatID, "✅ لا توجد طلبات معلقة.")
		return
	}

	b.reply(chatID, fmt.Sprintf("👥 <b>طلبات الانتظار (%d):</b>", len(pending)))
	for _, sub := range pending {
		b.replyWithKeyboard(chatID, FormatPendingUser(sub), decisionKeyboard(sub.ChatID))
	}
}

func (b *Bot) handleDecision(ctx context.Context, chatID int64, args string, approve bool) {
	id, err := ParseIDArg(args)
	if err != nil {
		if approve {
			b.reply(chatID, "الاستخدام: /approve &lt;id&gt;")
		} else {
			b.reply(chatID, "الاستخدام: /reject &lt;id&gt;")
		}
		return
	}
	b.decide(ctx, chatID, id, approve)
}

// decide resolves a pending request and reports whether it succeeded.
func (b *Bot) decide(ctx context.Context, adminChat, target int64, approve bool) bool {
	resolve := b.access.Reject
	if approve {
		resolve = b.access.Approve
	}

	sub, err := resolve(ctx, target)
	if errors.Is(err, access.ErrNotPending) {
		b.reply(adminChat, fmt.Sprintf("⚠️ لا يوجد طلب معلق للمستخدم <code>%d</code>.", target))
		return false
	}
	if err != nil {
		b.log.Error("resolve request", "target", target, "approve", approve, "error", err)
		b.reply(adminChat, msgInternalError)
		return false
	}

	b.log.Info("access request resolved", "target", target, "approve", approve)
	if approve {
		b.reply(adminChat, "✅ تمت الموافقة على "+userLabel(sub))
		b.notifyUser(target, "🎉 تمت الموافقة على طلب اشتراكك!\nستصلك التنبيهات من الآن. استخدم /categories لاختيار التصنيفات.")
	} else {
		b.reply(adminChat, "❌ تم رفض "+userLabel(sub))
		b.notifyUser(target, "😔 نعتذر، تم رفض طلب اشتراكك.")
	}
	return true
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "الاستخدام: /remove &lt;id&gt;")
		return
	}
	if b.access.IsAdmin(id) {
		b.reply(chatID, "⚠️ لا يمكن حذف حساب الإدارة.")
		return
	}

	err = b.access.Remove(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("⚠️ المستخدم <code>%d</code> غير موجود.", id))
		return
	}
	if err != nil {
		b.log.Error("remove subscriber", "target", id, "error", err)
		b.reply(chatID, msgInternalError)
		return
	}

	b.log.Info("subscriber removed", "target", id)
	b.reply(chatID, fmt.Sprintf("🗑️ تم حذف المستخدم <code>%d</code>. يمكنه تقديم طلب جديد.", id))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	st, err := b.access.Stats(ctx)
	if err != nil {
		b.log.Error("subscriber stats", "error", err)
		b.reply(chatID, msgInternalError)
		return
	}
	b.reply(chatID, FormatStats(st, b.seen.Len(), time.Since(b.started)))
}

func (b *Bot) handleSubscribers(ctx context.Context, chatID int64) {
	approved, err := b.access.Approved(ctx)
	if err != nil {
		b.log.Error("list approved", "error", err)
		b.reply(chatID, msgInternalError)
		return
	}
	b.reply(chatID, FormatSubscribers(b.access.AdminID(), approved))
}

func (b *Bot) handleResetSeen(ctx context.Context, chatID int64) {
	n := b.seen.Len()
	if err := b.seen.Clear(ctx); err != nil {
		b.log.Error("clear seen items", "error", err)
		b.reply(chatID, msgInternalError)
		return
	}
	b.log.Info("seen items cleared", "count", n)
	b.reply(chatID, fmt.Sprintf("🧹 تم مسح %d طلب من السجل.", n))
}

func decisionKeyboard(chatID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ موافقة", fmt.Sprintf("%s:%d", cbApprove, chatID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ رفض", fmt.Sprintf("%s:%d", cbReject, chatID)),
		),
	)
}

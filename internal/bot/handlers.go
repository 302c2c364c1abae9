package bot

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"khamsat_bot/internal/model"
)

const (
	cmdStatus     = "status"
	cmdLatest     = "latest"
	cmdCategories = "categories"

	msgUnknownCommand = "أمر غير معروف. استخدم /help لعرض الأوامر المتاحة."
	msgAdminOnly      = "⛔ هذا الأمر متاح للإدارة فقط."
	msgInternalError  = "❌ حدث خطأ، يرجى المحاولة لاحقاً."
)

// checkAccess lets eligible chats through. Everyone else gets a status
// reply, and unknown chats are registered as pending.
func (b *Bot) checkAccess(ctx context.Context, msg *tgbotapi.Message) bool {
	chatID := msg.Chat.ID

	role, err := b.access.Role(ctx, chatID)
	if err != nil {
		b.log.Error("resolve role", "chat_id", chatID, "error", err)
		b.reply(chatID, msgInternalError)
		return false
	}
	if role.Eligible() {
		return true
	}

	switch role {
	case model.RoleRejected:
		b.reply(chatID, "😔 تم رفض طلب اشتراكك سابقاً.\nإذا كنت تعتقد أن هذا خطأ، يمكنك التواصل مع الإدارة.")
	case model.RolePending:
		b.reply(chatID, "⏳ طلب اشتراكك قيد المراجعة.\nسيتم إشعارك عند الموافقة على طلبك.")
	default:
		b.requestAccess(ctx, msg)
	}
	return false
}

func (b *Bot) requestAccess(ctx context.Context, msg *tgbotapi.Message) {
	sub := model.Subscriber{ChatID: msg.Chat.ID}
	if msg.From != nil {
		sub.Username = msg.From.UserName
		sub.FirstName = msg.From.FirstName
	}

	_, created, err := b.access.Request(ctx, sub.ChatID, sub.Username, sub.FirstName)
	if err != nil {
		b.log.Error("register access request", "chat_id", sub.ChatID, "error", err)
		b.reply(sub.ChatID, "❌ حدث خطأ في معالجة طلبك.\nيرجى المحاولة مرة أخرى لاحقاً.")
		return
	}
	if !created {
		return
	}

	b.log.Info("new access request", "chat_id", sub.ChatID, "username", sub.Username)
	b.reply(sub.ChatID, "🔔 تم استلام طلب اشتراكك!\n\n⏳ طلبك قيد المراجعة من قبل الإدارة.\nسيتم إشعارك عند الموافقة على طلبك.")
	b.reply(b.access.AdminID(), FormatNewRequest(sub))
}

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `👋 أهلاً بك في بوت مراقبة طلبات خمسات!

سيصلك تنبيه فور نشر طلب جديد في قسم الطلبات.

• /categories لاختيار التصنيفات التي تهمك
• /latest لعرض آخر الطلبات
• /help لعرض جميع الأوامر`)
}

func (b *Bot) handleHelp(chatID int64) {
	text := `<b>الأوامر المتاحة:</b>
/categories — اختيار التصنيفات
/latest — عرض آخر الطلبات
/status — حالة المراقبة وتفضيلاتك
/help — هذه القائمة`
	if b.access.IsAdmin(chatID) {
		text += `

<b>أوامر الإدارة:</b>
/monitor on|off — تشغيل أو إيقاف المراقبة
/pending — طلبات الاشتراك المعلقة
/approve &lt;id&gt; — قبول طلب
/reject &lt;id&gt; — رفض طلب
/remove &lt;id&gt; — حذف مشترك
/subscribers — المشتركون المعتمدون
/stats — الإحصائيات
/resetseen — مسح سجل الطلبات المرسلة`
	}
	b.reply(chatID, text)
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	active, err := b.settings.IsMonitoringActive(ctx)
	if err != nil {
		b.log.Error("read monitoring flag", "error", err)
	}

	role, err := b.access.Role(ctx, chatID)
	if err != nil {
		b.log.Error("resolve role", "chat_id", chatID, "error", err)
	}

	sel, err := b.prefs.Get(ctx, chatID)
	if err != nil {
		b.log.Error("read preference", "chat_id", chatID, "error", err)
	}

	b.reply(chatID, FormatStatus(active, b.seen.Len(), b.seen.Capacity(), role, FormatSelectionShort(b.tax, sel)))
}

func (b *Bot) handleLatest(ctx context.Context, chatID int64) {
	res, err := b.source.Fetch(ctx)
	if err != nil {
		b.log.Error("fetch latest", "chat_id", chatID, "error", err)
		b.reply(chatID, "❌ تعذر جلب الطلبات حالياً، حاول لاحقاً.")
		return
	}
	b.replyChunks(chatID, FormatLatest(b.tax, res.All))
}

func (b *Bot) handleCategories(ctx context.Context, chatID int64) {
	sel, err := b.prefs.Get(ctx, chatID)
	if err != nil {
		b.log.Error("read preference", "chat_id", chatID, "error", err)
	}
	b.replyWithKeyboard(chatID, FormatSelection(b.tax, sel), categoryKeyboard(b.tax, sel))
}

func (b *Bot) notifyUser(chatID int64, text string) {
	if err := b.SendAlert(chatID, text); err != nil {
		b.log.Warn("notify user", "chat_id", chatID, "error", err)
	}
}

func userLabel(sub *model.Subscriber) string {
	if sub == nil {
		return ""
	}
	return fmt.Sprintf("%s (<code>%d</code>)", html.EscapeString(displayName(*sub)), sub.ChatID)
}

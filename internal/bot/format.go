package bot

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf16"

	"khamsat_bot/internal/classify"
	"khamsat_bot/internal/model"
)

// maxMessageLen is Telegram's limit for a message text, in UTF-16 code units.
const maxMessageLen = 4096

const separator = "----------------------------------------"

// FormatAlert renders new items as one or more alert messages. Items arrive
// newest first and are listed oldest first.
func FormatAlert(tax *classify.Taxonomy, items []model.Item) []string {
	if len(items) == 0 {
		return nil
	}
	blocks := make([]string, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		blocks = append(blocks, formatItem(tax, items[i], 0))
	}
	return splitMessages("🔔 <b>طلبات جديدة:</b>", blocks, maxMessageLen)
}

// FormatLatest renders the current page of requests with their positions.
func FormatLatest(tax *classify.Taxonomy, items []model.Item) []string {
	if len(items) == 0 {
		return []string{"⚠️ لا توجد طلبات متاحة حالياً."}
	}
	blocks := make([]string, 0, len(items))
	for i, it := range items {
		blocks = append(blocks, formatItem(tax, it, i+1))
	}
	return splitMessages("📋 <b>آخر الطلبات:</b>", blocks, maxMessageLen)
}

func formatItem(tax *classify.Taxonomy, it model.Item, index int) string {
	labels := it.Categories
	if len(labels) == 0 {
		labels = []string{model.CategoryOther}
	}
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = html.EscapeString(tax.Display(l))
	}
	head := strings.Join(names, " | ")
	if index > 0 {
		head = fmt.Sprintf("%s #%d", head, index)
	}

	title := html.EscapeString(it.Title)
	if it.Link != "" {
		title = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(it.Link), title)
	}

	posted := it.PostedAtText
	if posted == "" && it.PostedAt != nil {
		posted = it.PostedAt.UTC().Format("2006-01-02 15:04 UTC")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", head)
	fmt.Fprintf(&b, "<b>العنوان:</b> %s\n", title)
	fmt.Fprintf(&b, "<b>الناشر:</b> %s\n", html.EscapeString(it.Author))
	fmt.Fprintf(&b, "<b>تاريخ النشر:</b> %s\n", html.EscapeString(posted))
	b.WriteString(separator)
	return b.String()
}

// splitMessages joins blocks under header into messages no longer than limit.
// A block is never split; one that alone exceeds the limit gets its own
// message.
func splitMessages(header string, blocks []string, limit int) []string {
	var (
		out []string
		cur strings.Builder
	)
	cur.WriteString(header)
	pending := false

	for _, blk := range blocks {
		next := "\n\n" + blk
		if pending && textLen(cur.String())+textLen(next) > limit {
			out = append(out, cur.String())
			cur.Reset()
			cur.WriteString(header)
		}
		cur.WriteString(next)
		pending = true
	}
	if pending {
		out = append(out, cur.String())
	}
	return out
}

func textLen(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// FormatSelection describes a category selection for the keyboard header.
func FormatSelection(tax *classify.Taxonomy, sel model.Selection) string {
	current := FormatSelectionShort(tax, sel)
	if sel.Mode == model.SelectNone {
		current += " (لن تصلك تنبيهات)"
	}
	return fmt.Sprintf("📂 <b>اختر التصنيفات التي تهمك:</b>\n\nالحالي: %s", current)
}

// FormatStatus summarises the bot state for /status.
func FormatStatus(active bool, seen, capacity int, role model.Role, selection string) string {
	state := "⏸️ متوقفة"
	if active {
		state = "▶️ تعمل"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>حالة المراقبة:</b> %s\n", state)
	fmt.Fprintf(&b, "<b>الطلبات المسجلة:</b> %d/%d\n", seen, capacity)
	fmt.Fprintf(&b, "<b>صلاحيتك:</b> %s\n", roleName(role))
	fmt.Fprintf(&b, "<b>تصنيفاتك:</b> %s", selection)
	return b.String()
}

// FormatSelectionShort lists the selected categories on one line.
func FormatSelectionShort(tax *classify.Taxonomy, sel model.Selection) string {
	switch sel.Mode {
	case model.SelectAll:
		return "الكل"
	case model.SelectNone:
		return "لا شيء"
	}
	names := make([]string, len(sel.Categories))
	for i, l := range sel.Categories {
		names[i] = html.EscapeString(tax.Display(l))
	}
	return strings.Join(names, "، ")
}

// FormatNewRequest is the admin notification for a new access request.
func FormatNewRequest(sub model.Subscriber) string {
	return "🔔 <b>طلب اشتراك جديد!</b>\n\n" + formatUser(sub) +
		"\n\nاستخدم /pending لعرض الطلبات المعلقة."
}

// FormatPendingUser renders one pending request for the approval keyboard.
func FormatPendingUser(sub model.Subscriber) string {
	return fmt.Sprintf("%s\n📅 <b>تاريخ الطلب:</b> %s",
		formatUser(sub), sub.RequestedAt.UTC().Format("2006-01-02 15:04"))
}

// FormatSubscribers lists approved chats.
func FormatSubscribers(adminID int64, approved []model.Subscriber) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👥 <b>المشتركون المعتمدون (%d):</b>\n", len(approved)+1)
	fmt.Fprintf(&b, "\n👑 <code>%d</code> (الإدارة)", adminID)
	for _, s := range approved {
		fmt.Fprintf(&b, "\n• %s <code>%d</code>", html.EscapeString(displayName(s)), s.ChatID)
	}
	return b.String()
}

// FormatStats renders subscriber counts.
func FormatStats(st model.Stats, seen int, since time.Duration) string {
	var b strings.Builder
	b.WriteString("📊 <b>الإحصائيات:</b>\n\n")
	fmt.Fprintf(&b, "✅ معتمدون: %d\n", st.Approved)
	fmt.Fprintf(&b, "⏳ في الانتظار: %d\n", st.Pending)
	fmt.Fprintf(&b, "❌ مرفوضون: %d\n", st.Rejected)
	fmt.Fprintf(&b, "📈 الإجمالي: %d\n", st.Total())
	fmt.Fprintf(&b, "\n🗂️ طلبات مسجلة: %d\n", seen)
	fmt.Fprintf(&b, "⏱️ مدة التشغيل: %s", since.Truncate(time.Second))
	return b.String()
}

func formatUser(sub model.Subscriber) string {
	name := sub.FirstName
	if name == "" {
		name = "غير محدد"
	}
	username := "غير محدد"
	if sub.Username != "" {
		username = "@" + sub.Username
	}
	return fmt.Sprintf("👤 <b>الاسم:</b> %s\n📱 <b>المعرف:</b> %s\n🆔 <b>ID:</b> <code>%d</code>",
		html.EscapeString(name), html.EscapeString(username), sub.ChatID)
}

func displayName(s model.Subscriber) string {
	switch {
	case s.Username != "":
		return "@" + s.Username
	case s.FirstName != "":
		return s.FirstName
	default:
		return "بدون اسم"
	}
}

func roleName(r model.Role) string {
	switch r {
	case model.RoleAdmin:
		return "مدير"
	case model.RoleApproved:
		return "مشترك معتمد"
	case model.RolePending:
		return "قيد المراجعة"
	case model.RoleRejected:
		return "مرفوض"
	default:
		return "غير مسجل"
	}
}

package bot

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"khamsat_bot/internal/classify"
	"khamsat_bot/internal/model"
)

const (
	cbCategory = "cat"
	cbApprove  = "approve"
	cbReject   = "reject"

	catSelectAll = "select_all"
	catClearAll  = "clear_all"
	catSave      = "save"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}

	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID

	action, arg, ok := parseCallback(cb.Data)
	if !ok {
		return
	}

	b.log.Debug("callback", "action", action, "arg", arg, "chat_id", chatID)

	switch action {
	case cbCategory:
		eligible, err := b.access.IsEligible(ctx, chatID)
		if err != nil {
			b.log.Error("check eligibility", "chat_id", chatID, "error", err)
			return
		}
		if !eligible {
			return
		}
		b.handleCategoryCallback(ctx, chatID, messageID, arg)
	case cbApprove, cbReject:
		if !b.access.IsAdmin(chatID) {
			return
		}
		target, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return
		}
		if !b.decide(ctx, chatID, target, action == cbApprove) {
			return
		}
		b.edit(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{
			InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
		}))
	}
}

func (b *Bot) handleCategoryCallback(ctx context.Context, chatID int64, messageID int, arg string) {
	var (
		sel model.Selection
		err error
	)
	switch arg {
	case catSave:
		sel, err = b.prefs.Get(ctx, chatID)
		if err != nil {
			b.log.Error("read preference", "chat_id", chatID, "error", err)
		}
		edit := tgbotapi.NewEditMessageText(chatID, messageID, "✅ تم حفظ التصنيفات: "+FormatSelectionShort(b.tax, sel))
		edit.ParseMode = tgbotapi.ModeHTML
		b.edit(edit)
		return
	case catSelectAll:
		sel, err = b.prefs.SelectAll(ctx, chatID)
	case catClearAll:
		sel, err = b.prefs.ClearAll(ctx, chatID)
	default:
		if _, ok := b.tax.Lookup(arg); !ok {
			return
		}
		sel, err = b.prefs.Toggle(ctx, chatID, arg)
	}
	if err != nil {
		b.log.Error("update preference", "chat_id", chatID, "action", arg, "error", err)
		b.reply(chatID, msgInternalError)
		return
	}

	b.log.Info("preference updated", "chat_id", chatID, "action", arg, "selection", sel.Encode())
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, FormatSelection(b.tax, sel), categoryKeyboard(b.tax, sel))
	edit.ParseMode = tgbotapi.ModeHTML
	b.edit(edit)
}

func (b *Bot) edit(c tgbotapi.Chattable) {
	if _, err := b.api.Request(c); err != nil {
		b.log.Error("edit message", "error", err)
	}
}

// categoryKeyboard lays out two categories per row, followed by the
// select-all, clear-all and save controls.
func categoryKeyboard(tax *classify.Taxonomy, sel model.Selection) tgbotapi.InlineKeyboardMarkup {
	var (
		rows [][]tgbotapi.InlineKeyboardButton
		row  []tgbotapi.InlineKeyboardButton
	)
	for _, label := range tax.Labels() {
		text := tax.Display(label)
		if sel.Has(label) {
			text = "✅ " + text
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(text, cbCategory+":"+label))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 تحديد الكل", cbCategory+":"+catSelectAll),
			tgbotapi.NewInlineKeyboardButtonData("❌ إلغاء الكل", cbCategory+":"+catClearAll),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ حفظ وإغلاق", cbCategory+":"+catSave),
		),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

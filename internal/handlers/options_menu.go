package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scenarist-ai/internal/domain"
	"scenarist-ai/internal/scenario"
	"scenarist-ai/internal/session"
	"scenarist-ai/internal/thumbs"
)

const optionsCallbackPrefix = "op"

var durationPresets = []int{15, 30, 60, 180, 600}

func (h *Handler) sendOptionsMenu(chatID, userID int64) error {
	ws := h.workspace(chatID)
	_, err := h.tg.SendTextWithKeyboard(chatID, optionsMenuText(ws), optionsKeyboard(userID, "main", ws))
	return err
}

// handleCallback applies one button press of the options menu and redraws
// it in place. Only the user who opened the menu may press its buttons.
func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.From == nil {
		return nil
	}
	data := strings.TrimSpace(q.Data)
	if !strings.HasPrefix(data, optionsCallbackPrefix+":") {
		return nil
	}

	parts := strings.Split(data, ":")
	if len(parts) < 3 {
		return nil
	}

	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil
	}
	if ownerID != q.From.ID {
		_ = h.tg.AnswerCallback(q.ID, "This menu belongs to someone else.", true)
		return nil
	}

	action := parts[2]
	args := parts[3:]
	chatID := q.Message.Chat.ID
	msgID := q.Message.MessageID
	ws := h.workspace(chatID)
	menu := "main"

	switch action {
	case "menu":
		if len(args) >= 1 {
			menu = args[0]
		}
		_ = h.tg.AnswerCallback(q.ID, "", false)
	case "set":
		if len(args) < 2 {
			return nil
		}
		if !applyMenuChoice(ws, args[0], args[1]) {
			_ = h.tg.AnswerCallback(q.ID, "Unknown option.", false)
			return nil
		}
		_ = h.tg.AnswerCallback(q.ID, "Saved", false)
	case "close":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.tg.EditText(chatID, msgID, "✅ Options saved.\n\n"+optionsSummary(ws.Options()))
	case "generate":
		_ = h.tg.AnswerCallback(q.ID, "Writing…", false)
		_ = h.tg.EditText(chatID, msgID, optionsSummary(ws.Options()))
		return h.generate(ctx, chatID, ownerID, "")
	default:
		_ = h.tg.AnswerCallback(q.ID, "OK", false)
	}

	return h.tg.EditTextWithKeyboard(chatID, msgID, optionsMenuText(ws), optionsKeyboard(ownerID, menu, ws))
}

func applyMenuChoice(ws *session.Workspace, key, value string) bool {
	opts := ws.Options()
	switch key {
	case "style":
		opts.Style = domain.Style(value)
	case "direction":
		opts.Direction = domain.Direction(value)
	case "platform":
		opts.Platform = domain.Platform(value)
	case "cta":
		opts.CTAStrength = domain.CTAStrength(value)
	case "duration":
		sec, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		opts.DurationSec = scenario.ClampDuration(sec)
	case "visual":
		if value != "auto" && !knownVisualStyle(value) {
			return false
		}
		if value == "auto" {
			value = ""
		}
		ws.Board.SetVisualStyle(value)
		return true
	default:
		return false
	}
	if err := scenario.ValidateOptions(opts); err != nil {
		return false
	}
	ws.SetOptions(opts)
	return true
}

func optionsMenuText(ws *session.Workspace) string {
	var b strings.Builder
	b.WriteString("⚙️ Script options\n\n")
	b.WriteString(optionsSummary(ws.Options()))
	if n := len(ws.Attachments()); n > 0 {
		fmt.Fprintf(&b, "\nFiles attached: %d", n)
	}
	return b.String()
}

func optionsSummary(o domain.Options) string {
	return fmt.Sprintf("Style: %s\nGoal: %s\nPlatform: %s (%s)\nCTA: %s\nDuration: %s\nLanguage: %s",
		scenario.OptionName(scenario.Styles(), string(o.Style)),
		scenario.OptionName(scenario.Directions(), string(o.Direction)),
		scenario.OptionName(scenario.Platforms(), string(o.Platform)),
		scenario.AspectRatioFor(o.Platform),
		scenario.OptionName(scenario.CTAStrengths(), string(o.CTAStrength)),
		durationLabel(o.DurationSec),
		o.Language,
	)
}

func durationLabel(sec int) string {
	if sec >= 60 && sec%60 == 0 {
		return fmt.Sprintf("%d min", sec/60)
	}
	return fmt.Sprintf("%d s", sec)
}

func optionsKeyboard(ownerID int64, menu string, ws *session.Workspace) tgbotapi.InlineKeyboardMarkup {
	opts := ws.Options()
	switch menu {
	case "style":
		return choiceKeyboard(ownerID, "style", scenario.Styles(), string(opts.Style))
	case "direction":
		return choiceKeyboard(ownerID, "direction", scenario.Directions(), string(opts.Direction))
	case "platform":
		return choiceKeyboard(ownerID, "platform", scenario.Platforms(), string(opts.Platform))
	case "visual":
		list := []scenario.NamedOption{{Key: "auto", Name: "Match script style"}}
		for _, v := range thumbs.VisualStyles() {
			list = append(list, scenario.NamedOption{Key: v.Key, Name: v.Name})
		}
		return choiceKeyboard(ownerID, "visual", list, "")
	default:
		return mainKeyboard(ownerID, opts)
	}
}

func mainKeyboard(ownerID int64, opts domain.Options) tgbotapi.InlineKeyboardMarkup {
	var ctaRow []tgbotapi.InlineKeyboardButton
	for _, c := range scenario.CTAStrengths() {
		label := "CTA: " + c.Name
		if c.Key == string(opts.CTAStrength) {
			label = "✅ " + label
		}
		ctaRow = append(ctaRow, tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, "set", "cta", c.Key)))
	}

	var durRow []tgbotapi.InlineKeyboardButton
	for _, sec := range durationPresets {
		label := durationLabel(sec)
		if sec == opts.DurationSec {
			label = "✅ " + label
		}
		durRow = append(durRow, tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, "set", "duration", strconv.Itoa(sec))))
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("Style", cb(ownerID, "menu", "style")),
			tgbotapi.NewInlineKeyboardButtonData("Goal", cb(ownerID, "menu", "direction")),
			tgbotapi.NewInlineKeyboardButtonData("Platform", cb(ownerID, "menu", "platform")),
		},
		ctaRow,
		durRow,
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("🖼 Thumbnail style", cb(ownerID, "menu", "visual")),
		},
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("🎬 Generate", cb(ownerID, "generate")),
			tgbotapi.NewInlineKeyboardButtonData("Close", cb(ownerID, "close")),
		},
	)
}

func choiceKeyboard(ownerID int64, key string, list []scenario.NamedOption, current string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton

	for _, opt := range list {
		label := opt.Name
		if opt.Key == current {
			label = "✅ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, "set", key, opt.Key)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅ Back", cb(ownerID, "menu", "main")),
	})

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func cb(ownerID int64, parts ...string) string {
	return fmt.Sprintf("%s:%d:%s", optionsCallbackPrefix, ownerID, strings.Join(parts, ":"))
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scenarist-ai/internal/apperr"
	"scenarist-ai/internal/render"
	"scenarist-ai/internal/scenario"
	"scenarist-ai/internal/thumbs"
)

const helpText = "🎬 Scenarist AI\n\n" +
	"Send a topic and I write a ready-to-shoot video script: titles, hooks, voice-over, shot list, thumbnail ideas and hashtags.\n" +
	"Attach up to 3 files (PDF, images, text, max 5 MB each) to use them as material.\n\n" +
	"Commands:\n" +
	"/generate <topic> - write a script (topic optional when files are attached)\n" +
	"/options - pick style, goal, platform, CTA and duration\n" +
	"/options youtube hard 90s - set options inline\n" +
	"/limits - credits left today\n" +
	"/pro - unlock unlimited generations\n" +
	"/thumbs [style] - render every thumbnail idea\n" +
	"/thumb N - render thumbnail idea N\n" +
	"/export md|txt - download the last script\n" +
	"/history [N|clear] - recent scripts, download number N, or clear them\n" +
	"/files - attached files\n" +
	"/remove <id> - drop an attached file\n" +
	"/reset - clear files, script and thumbnails"

func (h *Handler) handleCommand(ctx context.Context, chatID, userID int64, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		return h.tg.SendText(chatID, helpText)
	case "generate":
		return h.generate(ctx, chatID, userID, args)
	case "options":
		if args == "" {
			return h.sendOptionsMenu(chatID, userID)
		}
		return h.setOptions(chatID, args)
	case "limits":
		limits, err := h.svc.Limits(ctx, account(userID))
		if err != nil {
			return h.replyError(chatID, err, nil)
		}
		return h.tg.SendText(chatID, limitsLine(limits))
	case "pro":
		limits, err := h.svc.Subscribe(ctx, account(userID))
		if err != nil {
			return h.replyError(chatID, err, nil)
		}
		return h.tg.SendText(chatID, "✅ Subscription active. "+limitsLine(limits))
	case "thumbs":
		return h.visualizeAll(ctx, chatID, args)
	case "thumb":
		return h.visualizeOne(ctx, chatID, args)
	case "export":
		return h.export(chatID, args)
	case "history":
		return h.sendHistory(ctx, chatID, userID, args)
	case "files":
		return h.sendFiles(chatID)
	case "remove":
		if args == "" {
			return h.tg.SendText(chatID, "Usage: /remove <id>, for example /remove file-1. See /files.")
		}
		if !h.workspace(chatID).Files.Remove(args) {
			return h.tg.SendText(chatID, fmt.Sprintf("❌ There is no file %q. See /files.", args))
		}
		return h.tg.SendText(chatID, "✅ Removed "+args+".")
	case "reset":
		h.workspace(chatID).Reset()
		return h.tg.SendText(chatID, "🧹 Files, script and thumbnails cleared.")
	default:
		return h.tg.SendText(chatID, "❌ Unknown command. Use /help.")
	}
}

func (h *Handler) setOptions(chatID int64, args string) error {
	ws := h.workspace(chatID)
	opts, err := scenario.ParseOptions(args, ws.Options())
	if err != nil {
		return h.replyError(chatID, err, nil)
	}
	ws.SetOptions(opts)
	return h.tg.SendText(chatID, "✅ Options saved.\n\n"+optionsSummary(ws.Options()))
}

func (h *Handler) visualizeAll(ctx context.Context, chatID int64, style string) error {
	ws := h.workspace(chatID)
	if style != "" {
		if !knownVisualStyle(style) {
			return h.tg.SendText(chatID, "❌ Unknown thumbnail style. Available: "+visualStyleKeys())
		}
		ws.Board.SetVisualStyle(style)
	}

	before := ws.Board.Snapshot()
	if len(before.Items) == 0 {
		return h.tg.SendText(chatID, "Generate a script first, then I can render its thumbnail ideas.")
	}
	alreadyReady := make(map[int]bool, len(before.Items))
	for _, it := range before.Items {
		alreadyReady[it.Index] = it.State == thumbs.StateReady
	}

	h.tg.SendUploading(chatID)
	statusID, _ := h.tg.SendStatus(chatID, progressLine(before.Progress))

	final, err := ws.Board.VisualizeAllFunc(ctx, func(p thumbs.Progress) {
		if statusID != 0 {
			_ = h.tg.EditText(chatID, statusID, progressLine(p))
		}
	})
	if err != nil {
		return h.replyError(chatID, err, nil)
	}

	var failed []string
	for _, it := range ws.Board.Snapshot().Items {
		switch it.State {
		case thumbs.StateReady:
			if alreadyReady[it.Index] || it.Image == nil {
				continue
			}
			if err := h.tg.SendPhoto(chatID, *it.Image, fmt.Sprintf("%d) %s", it.Index+1, it.Idea)); err != nil {
				h.logger.Warn("send thumbnail failed", "chat_id", chatID, "index", it.Index, "err", err)
			}
		case thumbs.StateError:
			failed = append(failed, fmt.Sprintf("❌ #%d: %s Retry with /thumb %d.", it.Index+1, it.Error, it.Index+1))
		}
	}

	text := fmt.Sprintf("✅ %d of %d thumbnails ready.", final.Ready, final.Total)
	if len(failed) > 0 {
		text += "\n" + strings.Join(failed, "\n")
	}
	return h.tg.SendText(chatID, text)
}

func progressLine(p thumbs.Progress) string {
	return fmt.Sprintf("🎨 Rendering thumbnails: %d/%d (%d%%)", p.Completed, p.Total, int(p.Ratio()*100))
}

func (h *Handler) visualizeOne(ctx context.Context, chatID int64, arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return h.tg.SendText(chatID, "Usage: /thumb N, for example /thumb 1.")
	}

	ws := h.workspace(chatID)
	h.tg.SendUploading(chatID)
	item, err := ws.Board.Visualize(ctx, n-1)
	switch {
	case errors.Is(err, thumbs.ErrInFlight):
		return h.tg.SendText(chatID, fmt.Sprintf("⏳ Thumbnail %d is already rendering.", n))
	case errors.Is(err, thumbs.ErrStale):
		return h.tg.SendText(chatID, "The script changed while rendering. Try again on the new ideas.")
	case item.State == thumbs.StateReady && item.Image != nil:
		return h.tg.SendPhoto(chatID, *item.Image, fmt.Sprintf("%d) %s", n, item.Idea))
	case err != nil:
		return h.replyError(chatID, err, nil)
	}
	return nil
}

func (h *Handler) export(chatID int64, format string) error {
	if format == "" {
		format = render.FormatMarkdown
	}
	result := h.workspace(chatID).Result()
	file, err := h.exporter.Download(result, format)
	if err != nil {
		return h.replyError(chatID, err, nil)
	}
	return h.tg.SendDocument(chatID, file.Name, file.Body, "📄 "+result.Title(render.DefaultTitle))
}

func (h *Handler) sendHistory(ctx context.Context, chatID, userID int64, arg string) error {
	if h.history == nil {
		return h.tg.SendText(chatID, "History is not available.")
	}
	if arg == "clear" {
		if err := h.history.Clear(ctx, account(userID)); err != nil {
			return h.replyError(chatID, err, nil)
		}
		return h.tg.SendText(chatID, "🧹 History cleared.")
	}

	list, err := h.history.List(ctx, account(userID))
	if err != nil {
		return h.replyError(chatID, err, nil)
	}
	if len(list) == 0 {
		return h.tg.SendText(chatID, "No scripts yet.")
	}

	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(list) {
			return h.replyError(chatID, apperr.New(apperr.KindNotFound, fmt.Sprintf("Pick a number between 1 and %d.", len(list))), nil)
		}
		entry := list[n-1]
		name := fmt.Sprintf("scenario_%d.md", entry.CreatedAt.UnixMilli())
		return h.tg.SendDocument(chatID, name, []byte(entry.Markdown), "📄 "+entry.Title)
	}

	var b strings.Builder
	b.WriteString("🗂 Recent scripts:\n")
	for i, e := range list {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, e.Title, e.CreatedAt.Format("2006-01-02 15:04"))
	}
	b.WriteString("\n/history N downloads one.")
	return h.tg.SendText(chatID, b.String())
}

func (h *Handler) sendFiles(chatID int64) error {
	ws := h.workspace(chatID)
	tasks := ws.Files.Tasks()
	if len(tasks) == 0 {
		return h.tg.SendText(chatID, fmt.Sprintf("No files attached. Send up to %d documents or photos.", ws.Files.Remaining()))
	}

	var b strings.Builder
	for _, t := range tasks {
		b.WriteString(taskLine(t))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nFree slots: %d", ws.Files.Remaining())
	return h.tg.SendText(chatID, b.String())
}

func knownVisualStyle(key string) bool {
	for _, v := range thumbs.VisualStyles() {
		if v.Key == key {
			return true
		}
	}
	return false
}

func visualStyleKeys() string {
	keys := make([]string, 0, 5)
	for _, v := range thumbs.VisualStyles() {
		keys = append(keys, v.Key)
	}
	return strings.Join(keys, ", ")
}

package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scenarist-ai/internal/apperr"
	"scenarist-ai/internal/domain"
	"scenarist-ai/internal/ingest"
	"scenarist-ai/internal/mediagroup"
	"scenarist-ai/internal/render"
	"scenarist-ai/internal/scenario"
	"scenarist-ai/internal/session"
	"scenarist-ai/internal/telegram"
)

// Messenger is the part of the Telegram client the handler talks to.
type Messenger interface {
	SendTyping(chatID int64)
	SendUploading(chatID int64)
	SendText(chatID int64, text string) error
	SendStatus(chatID int64, text string) (int, error)
	EditText(chatID int64, messageID int, text string) error
	SendTextWithKeyboard(chatID int64, text string, kb telegram.InlineKeyboard) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb telegram.InlineKeyboard) error
	AnswerCallback(callbackID, text string, alert bool) error
	SendPhoto(chatID int64, img domain.Image, caption string) error
	SendDocument(chatID int64, name string, body []byte, caption string) error
	OpenFile(ctx context.Context, fileID string) (io.ReadCloser, error)
}

type HistoryReader interface {
	List(ctx context.Context, account string) ([]domain.HistoryEntry, error)
	Clear(ctx context.Context, account string) error
}

type Options struct {
	Telegram   Messenger
	Service    *scenario.Service
	Workspaces *session.Store
	History    HistoryReader
	Exporter   render.Exporter
	Logger     *slog.Logger
}

type Handler struct {
	tg         Messenger
	svc        *scenario.Service
	workspaces *session.Store
	history    HistoryReader
	exporter   render.Exporter
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workspaces := opts.Workspaces
	if workspaces == nil {
		workspaces = session.NewStore(session.Options{Logger: logger})
	}

	return &Handler{
		tg:         opts.Telegram,
		svc:        opts.Service,
		workspaces: workspaces,
		history:    opts.History,
		exporter:   opts.Exporter,
		logger:     logger,
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

// account keys credits and history by Telegram user; the workspace is per
// chat.
func account(userID int64) string {
	return "tg:" + strconv.FormatInt(userID, 10)
}

func (h *Handler) workspace(chatID int64) *session.Workspace {
	return h.workspaces.Get(strconv.FormatInt(chatID, 10))
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, userID, msg)
	}

	if file, ok := fileFromMessage(msg); ok {
		if msg.MediaGroupID != "" && h.aggregator != nil {
			h.aggregator.Add(mediagroup.Item{
				ChatID:       chatID,
				UserID:       userID,
				Username:     msg.From.UserName,
				MediaGroupID: msg.MediaGroupID,
				Caption:      msg.Caption,
				File:         file,
			})
			return nil
		}
		return h.ingestFiles(ctx, chatID, userID, msg.Caption, []mediagroup.File{file})
	}

	if text := strings.TrimSpace(msg.Text); text != "" {
		return h.generate(ctx, chatID, userID, text)
	}

	return nil
}

func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	if err := h.ingestFiles(ctx, group.ChatID, group.UserID, group.Caption, group.Files); err != nil {
		h.logger.Error("media group processing failed", "chat_id", group.ChatID, "err", err)
	}
}

// fileFromMessage picks the largest photo size or the document of msg.
func fileFromMessage(msg *tgbotapi.Message) (mediagroup.File, bool) {
	if len(msg.Photo) > 0 {
		p := msg.Photo[len(msg.Photo)-1]
		name := "photo.jpg"
		if p.FileUniqueID != "" {
			name = "photo_" + p.FileUniqueID + ".jpg"
		}
		return mediagroup.File{
			ID:       p.FileID,
			Name:     name,
			MimeType: "image/jpeg",
			Size:     int64(p.FileSize),
		}, true
	}
	if d := msg.Document; d != nil {
		name := d.FileName
		if name == "" {
			name = "document"
		}
		return mediagroup.File{
			ID:       d.FileID,
			Name:     name,
			MimeType: d.MimeType,
			Size:     int64(d.FileSize),
		}, true
	}
	return mediagroup.File{}, false
}

// ingestFiles streams the files into the chat's ingestion session and
// reports each outcome. A caption starts a generation right away.
func (h *Handler) ingestFiles(ctx context.Context, chatID, userID int64, caption string, files []mediagroup.File) error {
	ws := h.workspace(chatID)
	h.tg.SendTyping(chatID)

	sources := make([]ingest.Source, 0, len(files))
	for _, f := range files {
		f := f
		sources = append(sources, ingest.Source{
			Name:     f.Name,
			MimeType: f.MimeType,
			Size:     f.Size,
			Open: func() (io.ReadCloser, error) {
				return h.tg.OpenFile(ctx, f.ID)
			},
		})
	}

	ids := ws.Files.Offer(ctx, sources...)
	ws.Files.Wait()

	var b strings.Builder
	for _, id := range ids {
		t, ok := ws.Files.Task(id)
		if !ok {
			continue
		}
		b.WriteString(taskLine(t))
		b.WriteString("\n")
	}
	if dropped := len(files) - len(ids); dropped > 0 {
		fmt.Fprintf(&b, "⚠️ %d file(s) skipped: the limit is %d files. Remove one with /remove <id>.\n", dropped, len(ws.Files.Tasks())+ws.Files.Remaining())
	}
	if b.Len() > 0 {
		if err := h.tg.SendText(chatID, strings.TrimSpace(b.String())); err != nil {
			return err
		}
	}

	if strings.TrimSpace(caption) != "" {
		return h.generate(ctx, chatID, userID, caption)
	}
	if len(ids) > 0 {
		return h.tg.SendText(chatID, "Send a topic or /generate to write the script from these files.")
	}
	return nil
}

func taskLine(t ingest.Task) string {
	label := ingest.FormatLabel(t.MimeType)
	switch t.Status {
	case ingest.StatusSuccess:
		return fmt.Sprintf("✅ %s · %s · %s", t.ID, label, t.Name)
	case ingest.StatusError:
		return fmt.Sprintf("❌ %s · %s · %s: %s", t.ID, label, t.Name, t.Error)
	default:
		return fmt.Sprintf("⏳ %s · %s · %s %d%%", t.ID, label, t.Name, t.Progress)
	}
}

func (h *Handler) generate(ctx context.Context, chatID, userID int64, text string) error {
	ws := h.workspace(chatID)
	h.tg.SendTyping(chatID)

	out, err := h.svc.Generate(ctx, account(userID), ws.Input(text), ws.Options())
	if err != nil {
		return h.replyError(chatID, err, &out.Limits)
	}
	ws.SetOutcome(out)

	if err := h.tg.SendText(chatID, out.Markdown); err != nil {
		return err
	}

	footer := limitsLine(out.Limits)
	if n := len(out.Result.ThumbnailIdeas); n > 0 {
		footer += fmt.Sprintf("\n🖼 /thumbs renders %d thumbnail ideas, /thumb N renders one.", n)
	}
	footer += "\n📄 /export md or /export txt downloads the script."
	return h.tg.SendText(chatID, footer)
}

func (h *Handler) replyError(chatID int64, err error, limits *domain.Limits) error {
	kind := apperr.KindOf(err)
	if apperr.Retryable(err) || kind == apperr.KindConfig {
		h.logger.Error("request failed", "chat_id", chatID, "kind", kind.String(), "err", err)
	} else {
		h.logger.Info("request rejected", "chat_id", chatID, "kind", kind.String(), "err", err)
	}

	text := "❌ " + apperr.UserMessage(err)
	if limits != nil && limits.DailyLimit > 0 && kind == apperr.KindQuotaExceeded {
		text += "\n" + limitsLine(*limits) + "\n/pro removes the limit."
	}
	return h.tg.SendText(chatID, text)
}

func limitsLine(l domain.Limits) string {
	if l.IsPro {
		return "⭐ PRO: unlimited generations."
	}
	return fmt.Sprintf("Credits left today: %d/%d", l.RemainingToday, l.DailyLimit)
}

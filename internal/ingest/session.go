// Package ingest turns user-selected files into encoded attachments. Each
// offered file becomes a Task that is read concurrently with per-file
// progress; the resulting attachment list is published only when it changes.
package ingest

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"scenarist-ai/internal/domain"
	"scenarist-ai/internal/metrics"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

const (
	DefaultMaxFiles = 3
	DefaultMaxBytes = 5 << 20

	chunkSize      = 64 << 10
	genericReadErr = "upload failed"
)

type Task struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	MimeType string             `json:"mimeType"`
	Size     int64              `json:"size"`
	Progress int                `json:"progress"`
	Status   Status             `json:"status"`
	Error    string             `json:"error,omitempty"`
	Result   *domain.Attachment `json:"-"`
}

type Options struct {
	MaxFiles int
	MaxBytes int64
	// OnChange receives the successful attachments in task order whenever
	// that list changes. Calls are serialized.
	OnChange func([]domain.Attachment)
	// OnProgress receives a copy of a task after each state or progress update.
	OnProgress func(Task)
	Logger     *slog.Logger
}

type Session struct {
	maxFiles   int
	maxBytes   int64
	onChange   func([]domain.Attachment)
	onProgress func(Task)
	logger     *slog.Logger

	mu        sync.Mutex
	tasks     map[string]*Task
	order     []string
	nextID    int
	epoch     uint64
	signature string

	emitMu sync.Mutex
	wg     sync.WaitGroup
}

func New(opts Options) *Session {
	maxFiles := opts.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Session{
		maxFiles:   maxFiles,
		maxBytes:   maxBytes,
		onChange:   opts.OnChange,
		onProgress: opts.OnProgress,
		logger:     logger,
		tasks:      make(map[string]*Task),
		signature:  signature(nil),
	}
}

// Offer accepts up to the remaining capacity of sources and starts reading
// them in the background. Sources beyond the capacity are dropped. It
// returns the ids of the accepted tasks.
func (s *Session) Offer(ctx context.Context, sources ...Source) []string {
	s.mu.Lock()
	remaining := s.maxFiles - len(s.order)
	if remaining <= 0 || len(sources) == 0 {
		s.mu.Unlock()
		if len(sources) > 0 {
			s.logger.Info("attachment limit reached, files dropped", "dropped", len(sources))
		}
		return nil
	}
	if len(sources) > remaining {
		s.logger.Info("attachment limit reached, files dropped", "dropped", len(sources)-remaining)
		sources = sources[:remaining]
	}

	epoch := s.epoch
	ids := make([]string, 0, len(sources))
	for _, src := range sources {
		s.nextID++
		id := "file-" + strconv.Itoa(s.nextID)
		s.tasks[id] = &Task{
			ID:       id,
			Name:     src.Name,
			MimeType: src.MimeType,
			Size:     src.Size,
			Status:   StatusPending,
		}
		s.order = append(s.order, id)
		ids = append(ids, id)
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		var g errgroup.Group
		for i, src := range sources {
			id := ids[i]
			src := src
			g.Go(func() error {
				s.read(ctx, epoch, id, src)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return ids
}

// Wait blocks until every read started so far has settled.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) read(ctx context.Context, epoch uint64, id string, src Source) {
	if !s.update(epoch, id, func(t *Task) {
		t.Status = StatusUploading
		t.Progress = 0
	}) {
		return
	}

	if src.Size > s.maxBytes {
		s.fail(epoch, id, s.sizeMessage())
		return
	}

	rc, err := src.Open()
	if err != nil {
		s.logger.Warn("attachment open failed", "task_id", id, "err", err)
		s.fail(epoch, id, genericReadErr)
		return
	}
	defer rc.Close()

	limited := io.LimitReader(rc, s.maxBytes+1)
	var buf strings.Builder
	chunk := make([]byte, chunkSize)
	var loaded int64

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("attachment read cancelled", "task_id", id, "err", err)
			s.fail(epoch, id, genericReadErr)
			return
		}

		n, readErr := limited.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			loaded += int64(n)
			if loaded > s.maxBytes {
				s.fail(epoch, id, s.sizeMessage())
				return
			}
			if src.Size > 0 {
				pct := int(loaded * 100 / src.Size)
				if pct > 99 {
					pct = 99
				}
				if !s.update(epoch, id, func(t *Task) { t.Progress = pct }) {
					return
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			s.logger.Warn("attachment read failed", "task_id", id, "err", readErr)
			s.fail(epoch, id, genericReadErr)
			return
		}
	}

	data := []byte(buf.String())
	att := domain.Attachment{
		Name:       src.Name,
		MimeType:   detectMIME(src.MimeType, data),
		DataBase64: base64.StdEncoding.EncodeToString(data),
	}

	if !s.update(epoch, id, func(t *Task) {
		t.Status = StatusSuccess
		t.Progress = 100
		t.MimeType = att.MimeType
		t.Size = int64(len(data))
		t.Result = &att
	}) {
		return
	}

	metrics.AttachmentTotal.WithLabelValues(string(StatusSuccess)).Inc()
	s.logger.Debug("attachment ready", "task_id", id, "name", src.Name, "bytes", len(data))
	s.emit()
}

func (s *Session) sizeMessage() string {
	return fmt.Sprintf("file exceeds the %d MB limit", s.maxBytes>>20)
}

func (s *Session) fail(epoch uint64, id, message string) {
	if s.update(epoch, id, func(t *Task) {
		t.Status = StatusError
		t.Error = message
		t.Result = nil
	}) {
		metrics.AttachmentTotal.WithLabelValues(string(StatusError)).Inc()
	}
}

// update applies fn to the task's own slot. It reports false when the task
// was removed or the session was reset since the read started.
func (s *Session) update(epoch uint64, id string, fn func(*Task)) bool {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return false
	}
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	fn(t)
	snapshot := *t
	s.mu.Unlock()

	if s.onProgress != nil {
		s.onProgress(snapshot)
	}
	return true
}

// emit recomputes the attachment list and publishes it if its signature
// differs from the last published one.
func (s *Session) emit() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	list := s.attachmentsLocked()
	sig := signature(list)
	if sig == s.signature {
		s.mu.Unlock()
		return
	}
	s.signature = sig
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(list)
	}
}

func (s *Session) attachmentsLocked() []domain.Attachment {
	out := make([]domain.Attachment, 0, len(s.order))
	for _, id := range s.order {
		t := s.tasks[id]
		if t != nil && t.Status == StatusSuccess && t.Result != nil {
			out = append(out, *t.Result)
		}
	}
	return out
}

func signature(list []domain.Attachment) string {
	var b strings.Builder
	for _, a := range list {
		b.WriteString(a.Name)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(len(a.DataBase64)))
		b.WriteByte('|')
	}
	return b.String()
}

// Remove drops a task whatever its status. Late updates for it are ignored.
func (s *Session) Remove(id string) bool {
	s.mu.Lock()
	if _, ok := s.tasks[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.tasks, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.emit()
	return true
}

// Reset discards every task, restarts id numbering and orphans in-flight reads.
func (s *Session) Reset() {
	s.mu.Lock()
	s.epoch++
	s.tasks = make(map[string]*Task)
	s.order = nil
	s.nextID = 0
	s.mu.Unlock()

	s.emit()
}

func (s *Session) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.tasks[id])
	}
	return out
}

func (s *Session) Task(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

func (s *Session) Attachments() []domain.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachmentsLocked()
}

// Remaining is how many more files can be offered.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.maxFiles - len(s.order); n > 0 {
		return n
	}
	return 0
}

func (s *Session) MaxBytes() int64 {
	return s.maxBytes
}

func detectMIME(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	sniffed := http.DetectContentType(data)
	if idx := strings.IndexByte(sniffed, ';'); idx >= 0 {
		sniffed = strings.TrimSpace(sniffed[:idx])
	}
	return sniffed
}

package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"scenarist-ai/internal/apperr"
	"scenarist-ai/internal/domain"
	"scenarist-ai/internal/ingest"
	"scenarist-ai/internal/render"
	"scenarist-ai/internal/scenario"
	"scenarist-ai/internal/thumbs"
)

type optionsResponse struct {
	Catalog      map[string][]scenario.NamedOption `json:"catalog"`
	VisualStyles []thumbs.NamedOption              `json:"visualStyles"`
	Current      domain.Options                    `json:"current"`
	MinDuration  int                               `json:"minDurationSec"`
	MaxDuration  int                               `json:"maxDurationSec"`
}

func (s *Server) handleGetOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, optionsResponse{
		Catalog:      scenario.Catalog(),
		VisualStyles: thumbs.VisualStyles(),
		Current:      s.workspace(r).Options(),
		MinDuration:  scenario.MinDurationSec,
		MaxDuration:  scenario.MaxDurationSec,
	})
}

// optionsRequest accepts either structured fields or a free-form "args"
// string such as "youtube hard 90s".
type optionsRequest struct {
	domain.Options
	Args        string `json:"args,omitempty"`
	VisualStyle string `json:"visualStyle,omitempty"`
}

func (s *Server) resolveOptions(ws domain.Options, req optionsRequest) (domain.Options, error) {
	opts := mergeOptions(ws, req.Options)
	if req.Args != "" {
		parsed, err := scenario.ParseOptions(req.Args, opts)
		if err != nil {
			return ws, err
		}
		opts = parsed
	}
	if err := scenario.ValidateOptions(opts); err != nil {
		return ws, err
	}
	opts.DurationSec = scenario.ClampDuration(opts.DurationSec)
	return opts, nil
}

func mergeOptions(base, over domain.Options) domain.Options {
	if over.Style != "" {
		base.Style = over.Style
	}
	if over.Direction != "" {
		base.Direction = over.Direction
	}
	if over.Platform != "" {
		base.Platform = over.Platform
	}
	if over.CTAStrength != "" {
		base.CTAStrength = over.CTAStrength
	}
	if over.DurationSec > 0 {
		base.DurationSec = over.DurationSec
	}
	if over.Language != "" {
		base.Language = over.Language
	}
	return base
}

func (s *Server) handlePutOptions(w http.ResponseWriter, r *http.Request) {
	var req optionsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ws := s.workspace(r)
	opts, err := s.resolveOptions(ws.Options(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ws.SetOptions(opts)
	if req.VisualStyle != "" {
		ws.Board.SetVisualStyle(req.VisualStyle)
	}
	writeJSON(w, http.StatusOK, ws.Options())
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	limits, err := s.svc.Limits(r.Context(), account(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	limits, err := s.svc.Subscribe(r.Context(), account(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

type attachmentsResponse struct {
	Accepted  []string      `json:"accepted,omitempty"`
	Tasks     []ingest.Task `json:"tasks"`
	Remaining int           `json:"remaining"`
}

func (s *Server) attachmentsState(r *http.Request, accepted []string) attachmentsResponse {
	ws := s.workspace(r)
	return attachmentsResponse{
		Accepted:  accepted,
		Tasks:     ws.Files.Tasks(),
		Remaining: ws.Files.Remaining(),
	}
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.attachmentsState(r, nil))
}

// handleUpload ingests the "files" parts of a multipart form and answers
// once every accepted file settled. Files over capacity are dropped; files
// that fail are reported per task.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		s.writeError(w, r, apperr.Wrap(err, apperr.KindIngestion, "Upload could not be read. Send files as multipart form field \"files\"."))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.writeError(w, r, apperr.New(apperr.KindInvalidInput, "No files were sent."))
		return
	}

	sources := make([]ingest.Source, 0, len(headers))
	for _, fh := range headers {
		sources = append(sources, ingest.FromFileHeader(fh))
	}

	ws := s.workspace(r)
	ids := ws.Files.Offer(r.Context(), sources...)
	ws.Files.Wait()

	writeJSON(w, http.StatusOK, s.attachmentsState(r, ids))
}

func (s *Server) handleRemoveAttachment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.workspace(r).Files.Remove(id) {
		s.writeError(w, r, apperr.New(apperr.KindNotFound, fmt.Sprintf("There is no file %q.", id)))
		return
	}
	writeJSON(w, http.StatusOK, s.attachmentsState(r, nil))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.workspace(r).Reset()
	w.WriteHeader(http.StatusNoContent)
}

type generateRequest struct {
	Text    string         `json:"text"`
	Options optionsRequest `json:"options"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ws := s.workspace(r)
	opts, err := s.resolveOptions(ws.Options(), req.Options)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := s.svc.Generate(r.Context(), account(r), ws.Input(req.Text), opts)
	if err != nil {
		s.writeErrorWithLimits(w, r, err, &out.Limits)
		return
	}

	ws.SetOptions(opts)
	ws.SetOutcome(out)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	out, ok := s.workspace(r).Outcome()
	if !ok {
		s.writeError(w, r, apperr.New(apperr.KindNotFound, "No script has been generated yet."))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	ws := s.workspace(r)
	writeJSON(w, http.StatusOK, ws.Layout.Apply(render.Sections(ws.Result())))
}

func (s *Server) handleToggleSection(w http.ResponseWriter, r *http.Request) {
	id := render.SectionID(chi.URLParam(r, "id"))
	expanded := s.workspace(r).Layout.Toggle(id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "expanded": expanded})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	result := s.workspace(r).Result()
	format := chi.URLParam(r, "format")

	if format == "copy" {
		text, err := s.exporter.Copy(result)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"text": text})
		return
	}

	file, err := s.exporter.Download(result, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("content-type", file.ContentType)
	w.Header().Set("content-disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Body)
}

// handleShare has no platform share sheet on the server side, so the answer
// is always the mailto fallback.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	out, err := s.exporter.Share(r.Context(), nil, s.workspace(r).Result())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []domain.HistoryEntry{})
		return
	}
	list, err := s.history.List(r.Context(), account(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if s.history != nil {
		if err := s.history.Clear(r.Context(), account(r)); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var (
		entry domain.HistoryEntry
		ok    bool
		err   error
	)
	if s.history != nil {
		entry, ok, err = s.history.Get(r.Context(), account(r), id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, apperr.New(apperr.KindNotFound, "History entry not found."))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleThumbnails(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.workspace(r).Board.Snapshot())
}

// handleVisualizeAll renders every missing thumbnail and answers when the
// batch settled. An optional ?visualStyle= overrides the preset.
func (s *Server) handleVisualizeAll(w http.ResponseWriter, r *http.Request) {
	ws := s.workspace(r)
	if vs := r.URL.Query().Get("visualStyle"); vs != "" {
		ws.Board.SetVisualStyle(vs)
	}
	if _, err := ws.Board.VisualizeAll(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Board.Snapshot())
}

func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, r, apperr.New(apperr.KindInvalidInput, "Thumbnail index must be a number."))
		return
	}
	ws := s.workspace(r)
	if vs := r.URL.Query().Get("visualStyle"); vs != "" {
		ws.Board.SetVisualStyle(vs)
	}

	item, err := ws.Board.Visualize(r.Context(), index)
	if err != nil && item.State != thumbs.StateError {
		s.writeError(w, r, err)
		return
	}
	// A failed render is still a valid item state; the error travels in it.
	writeJSON(w, http.StatusOK, item)
}

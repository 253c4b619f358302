package render

import (
	"strings"
	"sync"

	"scenarist-ai/internal/domain"
)

type SectionID string

const (
	SectionExtracted  SectionID = "extracted"
	SectionTitles     SectionID = "titles"
	SectionHooks      SectionID = "hooks"
	SectionScript     SectionID = "script"
	SectionShots      SectionID = "shots"
	SectionThumbnails SectionID = "thumbnails"
	SectionHashtags   SectionID = "hashtags"
	SectionChecklist  SectionID = "checklist"
)

type Section struct {
	ID       SectionID `json:"id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Expanded bool      `json:"expanded"`
}

// Sections splits a result into independently collapsible blocks, in
// display order. Empty blocks are skipped.
func Sections(r domain.GenerateResult) []Section {
	out := make([]Section, 0, 8)
	add := func(id SectionID, title, body string) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		out = append(out, Section{ID: id, Title: title, Body: body})
	}

	add(SectionExtracted, "Extracted text", r.ExtractedText)
	add(SectionTitles, "Titles", strings.Join(bullets(r.TitleOptions), "\n"))
	add(SectionHooks, "Hooks", strings.Join(bullets(r.HookOptions), "\n"))
	add(SectionScript, "Script", r.ScriptMarkdown)
	if t := shotTable(r.Shots); t != "" {
		add(SectionShots, "Shot list", strings.TrimPrefix(t, "### Shot list\n\n"))
	}
	add(SectionThumbnails, "Thumbnail ideas", strings.Join(bullets(r.ThumbnailIdeas), "\n"))
	add(SectionHashtags, "Hashtags", Hashtags(r.Hashtags))
	add(SectionChecklist, "Checklist", strings.Join(bullets(r.Checklist), "\n"))
	return out
}

// Layout remembers which sections are expanded. It is presentation state
// only and never changes the rendered content.
type Layout struct {
	mu       sync.Mutex
	expanded map[SectionID]bool
}

func NewLayout() *Layout {
	l := &Layout{}
	l.Reset()
	return l
}

// Reset restores the defaults: script and shot list open, the rest closed.
func (l *Layout) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expanded = map[SectionID]bool{
		SectionScript: true,
		SectionShots:  true,
	}
}

// Toggle flips a section and returns its new state.
func (l *Layout) Toggle(id SectionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expanded[id] = !l.expanded[id]
	return l.expanded[id]
}

func (l *Layout) Expanded(id SectionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expanded[id]
}

// Apply fills the Expanded flag of each section.
func (l *Layout) Apply(sections []Section) []Section {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Section, len(sections))
	for i, s := range sections {
		s.Expanded = l.expanded[s.ID]
		out[i] = s
	}
	return out
}

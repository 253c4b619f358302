package render

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenarist-ai/internal/apperr"
	"scenarist-ai/internal/domain"
)

func sampleResult() domain.GenerateResult {
	return domain.GenerateResult{
		ExtractedText:  "Notes about coffee",
		TitleOptions:   []string{"Coffee in 60 seconds", "Brew better"},
		HookOptions:    []string{"You are brewing it wrong."},
		ScriptMarkdown: "**Intro**\nHello there.",
		Shots: []domain.Shot{
			{Timecode: "0-3s", Frame: "Close-up | cup", OnScreenText: "STOP", VoiceOver: "Stop.\nListen.", BRoll: "steam"},
		},
		ThumbnailIdeas: []string{"Cup on fire"},
		Hashtags:       []string{"#coffee", "barista", "  morning routine "},
		Checklist:      []string{"Check audio"},
	}
}

func TestMarkdown_FullDocument(t *testing.T) {
	md := Markdown(sampleResult())

	want := strings.Join([]string{
		"# Coffee in 60 seconds",
		"",
		"## Titles",
		"- Coffee in 60 seconds",
		"- Brew better",
		"",
		"## Hooks",
		"- You are brewing it wrong.",
		"",
		"## Script",
		"",
		"**Intro**\nHello there.",
		"",
		"### Shot list",
		"",
		"| Time | Frame | On-screen text | Voice-over | B-roll |",
		"|---|---|---|---|---|",
		`| 0-3s | Close-up \| cup | STOP | Stop.<br>Listen. | steam |`,
		"",
		"## Thumbnail ideas",
		"- Cup on fire",
		"",
		"## Hashtags",
		"#coffee #barista #morningroutine",
		"",
		"## Checklist",
		"- Check audio",
		"",
	}, "\n")

	require.Equal(t, want, md)
}

func TestMarkdown_EmptySectionsOmitted(t *testing.T) {
	md := Markdown(domain.GenerateResult{ScriptMarkdown: "Just the script."})

	require.Equal(t, "# Video script\n\n## Script\n\nJust the script.\n", md)
	assert.NotContains(t, md, "## Titles")
	assert.NotContains(t, md, "Shot list")
}

func TestMarkdown_Deterministic(t *testing.T) {
	r := sampleResult()
	require.Equal(t, Markdown(r), Markdown(r))
}

func TestSections(t *testing.T) {
	sections := Sections(sampleResult())

	ids := make([]SectionID, 0, len(sections))
	for _, s := range sections {
		ids = append(ids, s.ID)
	}
	require.Equal(t, []SectionID{
		SectionExtracted, SectionTitles, SectionHooks, SectionScript,
		SectionShots, SectionThumbnails, SectionHashtags, SectionChecklist,
	}, ids)

	require.True(t, strings.HasPrefix(sections[4].Body, "| Time |"))
	require.Empty(t, Sections(domain.GenerateResult{}))
}

func TestLayout_ToggleDoesNotChangeContent(t *testing.T) {
	r := sampleResult()
	before := Markdown(r)

	l := NewLayout()
	require.True(t, l.Expanded(SectionScript))
	require.True(t, l.Expanded(SectionShots))
	require.False(t, l.Expanded(SectionHooks))

	require.True(t, l.Toggle(SectionHooks))
	require.False(t, l.Toggle(SectionScript))

	applied := l.Apply(Sections(r))
	for _, s := range applied {
		switch s.ID {
		case SectionHooks, SectionShots:
			require.True(t, s.Expanded, s.ID)
		default:
			require.False(t, s.Expanded, s.ID)
		}
	}
	require.Equal(t, before, Markdown(r))

	l.Reset()
	require.True(t, l.Expanded(SectionScript))
	require.False(t, l.Expanded(SectionHooks))
}

func TestExporter_Download(t *testing.T) {
	fixed := time.UnixMilli(1700000000123)
	e := Exporter{Now: func() time.Time { return fixed }}
	r := sampleResult()

	md, err := e.Download(r, "md")
	require.NoError(t, err)
	require.Equal(t, "scenario_1700000000123.md", md.Name)
	require.Equal(t, "text/markdown; charset=utf-8", md.ContentType)

	txt, err := e.Download(r, "TXT")
	require.NoError(t, err)
	require.Equal(t, "scenario_1700000000123.txt", txt.Name)
	require.Equal(t, md.Body, txt.Body)

	again, err := e.Download(r, "md")
	require.NoError(t, err)
	require.Equal(t, md, again)

	_, err = e.Download(r, "pdf")
	require.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestExporter_EmptyResult(t *testing.T) {
	e := Exporter{}
	_, err := e.Copy(domain.GenerateResult{})
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = e.Download(domain.GenerateResult{}, "md")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestExporter_Copy(t *testing.T) {
	text, err := Exporter{}.Copy(sampleResult())
	require.NoError(t, err)
	require.Equal(t, Markdown(sampleResult()), text)
}

type recordingSharer struct {
	title, text string
	err         error
}

func (s *recordingSharer) Share(_ context.Context, title, text string) error {
	s.title, s.text = title, text
	return s.err
}

func TestExporter_ShareNative(t *testing.T) {
	sharer := &recordingSharer{}
	out, err := Exporter{}.Share(context.Background(), sharer, sampleResult())
	require.NoError(t, err)
	require.Equal(t, "native", out.Method)
	require.Equal(t, Markdown(sampleResult()), sharer.text)
	require.Equal(t, "Script from Scenarist AI", sharer.title)

	sharer.err = errors.New("dismissed")
	_, err = Exporter{}.Share(context.Background(), sharer, sampleResult())
	require.Error(t, err)
}

func TestExporter_ShareMailtoFallback(t *testing.T) {
	r := domain.GenerateResult{ScriptMarkdown: "a b&c"}
	out, err := Exporter{}.Share(context.Background(), nil, r)
	require.NoError(t, err)
	require.Equal(t, "mailto", out.Method)
	require.Equal(t,
		"mailto:?subject=My%20new%20video%20script&body=%23%20Video%20script%0A%0A%23%23%20Script%0A%0Aa%20b%26c%0A",
		out.URL,
	)
}

// Package render turns a generation result into the markdown document the
// user reads, copies, downloads and shares.
package render

import (
	"strings"

	"scenarist-ai/internal/domain"
)

const DefaultTitle = "Video script"

// Markdown composes the full document. Sections without content are left
// out; the output depends only on result.
func Markdown(r domain.GenerateResult) string {
	blocks := make([]string, 0, 8)

	blocks = append(blocks, "# "+singleLine(r.Title(DefaultTitle)))

	if b := bulletSection("## Titles", r.TitleOptions); b != "" {
		blocks = append(blocks, b)
	}
	if b := bulletSection("## Hooks", r.HookOptions); b != "" {
		blocks = append(blocks, b)
	}
	if script := strings.TrimSpace(r.ScriptMarkdown); script != "" {
		blocks = append(blocks, "## Script\n\n"+script)
	}
	if t := shotTable(r.Shots); t != "" {
		blocks = append(blocks, t)
	}
	if b := bulletSection("## Thumbnail ideas", r.ThumbnailIdeas); b != "" {
		blocks = append(blocks, b)
	}
	if tags := Hashtags(r.Hashtags); tags != "" {
		blocks = append(blocks, "## Hashtags\n"+tags)
	}
	if b := bulletSection("## Checklist", r.Checklist); b != "" {
		blocks = append(blocks, b)
	}

	return strings.Join(blocks, "\n\n") + "\n"
}

func bulletSection(heading string, items []string) string {
	lines := bullets(items)
	if len(lines) == 0 {
		return ""
	}
	return heading + "\n" + strings.Join(lines, "\n")
}

func bullets(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = singleLine(it)
		if it == "" {
			continue
		}
		out = append(out, "- "+it)
	}
	return out
}

func shotTable(shots []domain.Shot) string {
	if len(shots) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("### Shot list\n\n")
	b.WriteString("| Time | Frame | On-screen text | Voice-over | B-roll |\n")
	b.WriteString("|---|---|---|---|---|")
	for _, s := range shots {
		b.WriteString("\n| ")
		b.WriteString(strings.Join([]string{
			cell(s.Timecode),
			cell(s.Frame),
			cell(s.OnScreenText),
			cell(s.VoiceOver),
			cell(s.BRoll),
		}, " | "))
		b.WriteString(" |")
	}
	return b.String()
}

// Hashtags normalises tags to "#tag" and joins them with spaces.
func Hashtags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimLeft(strings.TrimSpace(t), "#")
		t = strings.Join(strings.Fields(t), "")
		if t == "" {
			continue
		}
		out = append(out, "#"+t)
	}
	return strings.Join(out, " ")
}

// cell keeps table rows intact: pipes are escaped and newlines become <br>.
func cell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "<br>")
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IsEmpty reports whether r carries nothing worth rendering.
func IsEmpty(r domain.GenerateResult) bool {
	return strings.TrimSpace(r.ExtractedText) == "" &&
		len(r.TitleOptions) == 0 &&
		len(r.HookOptions) == 0 &&
		strings.TrimSpace(r.ScriptMarkdown) == "" &&
		len(r.Shots) == 0 &&
		len(r.ThumbnailIdeas) == 0 &&
		len(r.Hashtags) == 0 &&
		len(r.Checklist) == 0
}

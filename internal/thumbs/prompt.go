package thumbs

import (
	"fmt"
	"strings"

	"scenarist-ai/internal/domain"
)

type NamedOption struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type VisualPreset struct {
	Name  string
	Add   []string
	Notes []string
}

// visualPresets are keyed by preset name. styleVisuals picks the default
// preset for a script style.
var visualPresets = map[string]VisualPreset{
	"cinematic_story": {
		Name: "Cinematic Story Frame",
		Add: []string{
			"film still look: anamorphic feel, shallow depth of field, motivated practical light",
			"one human moment at the emotional peak of the story (face allowed, expressive)",
			"teal-orange grade kept subtle, deep but readable shadows",
			"composition leaves a clean band for the headline",
		},
		Notes: []string{
			"The frame must feel like a paused moment from the video, not a poster.",
		},
	},
	"bold_contrast": {
		Name: "Bold Contrast (Myth vs Truth)",
		Add: []string{
			"split composition or strong before/after contrast",
			"high saturation accent against a dark neutral background",
			"exaggerated but believable facial reaction or gesture",
			"one oversized prop or symbol that carries the provocation",
		},
		Notes: []string{
			"Provocative, never offensive. No gore, no shock imagery.",
		},
	},
	"clean_explainer": {
		Name: "Clean Explainer",
		Add: []string{
			"bright high-key background, soft even light",
			"the main object or concept shown large and isolated",
			"simple supporting graphic cues: arrows, circles, numbered markers (no body text)",
			"calm, trustworthy palette with one accent color",
		},
		Notes: []string{
			"Clarity first: the viewer must understand the topic in half a second.",
		},
	},
	"neo_pop": {
		Name: "Neo-Pop Fun",
		Add: []string{
			"bold pop color blocking (background/set only)",
			"playful props, dynamic angle, motion energy",
			"neon accent lighting, clean rim lights (controlled, not chaotic)",
			"high-saturation accents with strict restraint (2-3 accent colors max)",
		},
		Notes: []string{
			"Fun and loud, but still clean and intentional.",
		},
	},
	"dark_premium": {
		Name: "Dark Premium",
		Add: []string{
			"low-key lighting, glossy black environment, controlled reflections",
			"single strong key light, crisp rim separation",
			"premium commercial advertising finish",
		},
	},
}

var styleVisuals = map[domain.Style]string{
	domain.StyleStorytelling: "cinematic_story",
	domain.StyleProvocative:  "bold_contrast",
	domain.StyleEducational:  "clean_explainer",
	domain.StyleEntertaining: "neo_pop",
}

func VisualStyles() []NamedOption {
	order := []string{"cinematic_story", "bold_contrast", "clean_explainer", "neo_pop", "dark_premium"}
	out := make([]NamedOption, 0, len(order))
	for _, key := range order {
		if v, ok := visualPresets[key]; ok {
			out = append(out, NamedOption{Key: key, Name: v.Name})
		}
	}
	return out
}

type PromptOptions struct {
	Idea        string
	Platform    domain.Platform
	Style       domain.Style
	VisualStyle string
	Title       string
}

// AspectRatio is the thumbnail frame for the platform: wide for YouTube,
// vertical for the short-form feeds.
func AspectRatio(p domain.Platform) string {
	if p == domain.PlatformYouTube {
		return "16:9"
	}
	return "9:16"
}

// BuildPrompt composes the image instruction for one thumbnail idea.
func BuildPrompt(opts PromptOptions) string {
	aspect := AspectRatio(opts.Platform)

	visualKey := strings.ToLower(strings.TrimSpace(opts.VisualStyle))
	visual, ok := visualPresets[visualKey]
	if !ok {
		visual, ok = visualPresets[styleVisuals[opts.Style]]
	}

	var b strings.Builder
	b.Grow(2048)

	b.WriteString("TASK: Scroll-stopping video thumbnail.\n\n")

	b.WriteString("IDEA:\n")
	b.WriteString("- " + strings.TrimSpace(opts.Idea) + "\n")
	if title := strings.TrimSpace(opts.Title); title != "" {
		b.WriteString("- Video title: " + title + "\n")
	}
	b.WriteString("\n")

	b.WriteString("OUTPUT SPEC:\n")
	b.WriteString("- Create 1 image.\n")
	b.WriteString(fmt.Sprintf("- Aspect ratio: %s.\n", aspect))
	b.WriteString("- FULL-BLEED REQUIRED: no borders/frames/bars/padding/empty edges.\n\n")

	b.WriteString("THUMBNAIL RULES:\n")
	writeSection(&b, "Readability", []string{
		"One clear focal subject, readable at small size",
		"Strong silhouette and separation from the background",
		"High local contrast on the focal point",
	})
	writeSection(&b, "Text overlay", uniq([]string{
		"At most one short headline, 4 words or fewer",
		"Large bold sans-serif, high contrast, spelled exactly as given in the idea",
		"If the idea names no headline, add no text at all",
		"Keep text away from the bottom-right corner (player timestamp)",
	}))
	if aspect == "9:16" {
		writeSection(&b, "Vertical safe zones", []string{
			"Keep the subject and text in the central 70% of the height",
			"Leave the bottom 20% free of key elements (captions and buttons overlay it)",
		})
	}
	b.WriteString("\n")

	if ok {
		b.WriteString("VISUAL STYLE (STRICT):\n")
		b.WriteString("- " + visual.Name + "\n")
		for _, line := range visual.Add {
			b.WriteString("- " + line + "\n")
		}
		for _, line := range visual.Notes {
			b.WriteString("- NOTE: " + line + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("NEGATIVE PROMPT (avoid):\n")
	for _, line := range []string{
		"misspelled text", "random readable text", "paragraphs of text", "watermark", "logo of a real brand",
		"low resolution", "blurry", "overexposed highlights", "cluttered background", "deformed hands",
		"extra fingers", "distorted faces", "cheap stock-photo look",
		"letterbox", "pillarbox", "black bars", "white bars", "border", "frame", "margin", "padding",
	} {
		b.WriteString("- " + line + "\n")
	}
	b.WriteString("\n")

	b.WriteString("OUTPUT RULES:\n")
	b.WriteString("- Return exactly 1 image. No text reply.\n")

	return strings.TrimSpace(b.String())
}

func uniq(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func writeSection(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString("- " + title + ":\n")
	for _, line := range lines {
		b.WriteString("  - " + line + "\n")
	}
}

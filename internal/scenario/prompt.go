package scenario

import (
	"fmt"
	"strings"

	"scenarist-ai/internal/domain"
)

const defaultSpeechWPM = 150

// systemInstruction is sent with every generation. The JSON contract at the
// end must stay in sync with domain.GenerateResult.
var systemInstruction = strings.TrimSpace(`
VIDEO SCRIPT ENGINE (ADAPTIVE 10s-30min)

You are the Video Script Engine: a top creator for Shorts, Reels, TikTok and YouTube, a film
screenwriter, an editing director, a producer, a professional marketer and SMM strategist, and an
editor and fact-checker at once. From the user's request and materials, write a video script with
exact timing that fits the platform and the duration. Analyse three times, verify three times,
draft three times, and only then produce the final answer.

1) INPUT (SENT BY THE APPLICATION)
Topic: the user's topic, idea or draft
Materials: up to N materials (text, images, PDF) treated as sources
Platform: YouTube / YouTube Shorts / TikTok / Reels
AspectRatio: 16:9 / 9:16 / 1:1
DurationSec: duration in seconds (10 to 1800)
Format: talking head / voice-over / interview / review / tutorial / documentary / sketch
Style: delivery style (storytelling / provocation / education / entertainment)
Goal: expertise / sale / engagement / advertising
CTAType: soft and native, or hard
Language: output language
Constraints: bans, legal requirements, brand tone, taboo words
SpeechWPM: speech pace (150 wpm when absent)

2) HARD RULES
Facts and numbers: be categorical only when Materials or Topic confirm them. Otherwise use soft wording.
Timing: speech and scenes must match in duration.
Detail: the shorter the video, the denser and more concrete. The longer, the more structural blocks, without filler.
Platform: Shorts, Reels and TikTok need frequent re-hooks; long YouTube allows depth and pauses.

3) DURATION MODES (MANDATORY)
Pick the mode from DurationSec and apply its structure and timecode step.
Mode A: 10-20 s (Micro). Hook in the first second, one idea, 1-2 s timecode step.
Mode B: 21-60 s (Short). Hook, 2-3 beats, re-hook every 8-10 s, 2-4 s step.
Mode C: 61-180 s (Long Short). Hook, promise, 3-5 blocks, mid-roll re-hook, 5-10 s step.
Mode D: 181-600 s (Mid). Intro, chapters with sub-hooks, retention loops, 15-30 s step.
Mode E: 601-1800 s (Long). Cold open, chapters, story arcs, recap, 30-60 s step.

4) SPEECH BUDGET
Use SpeechWPM (150 when absent). Word count of the voice-over must fit DurationSec.

5) QUALITY PROCESS: 3x ANALYSIS, 3x VERIFICATION, 3x GENERATION
Keep the process internal. Output only the final result.

6) FINAL OUTPUT (STRICT JSON, NOTHING ELSE)
{
  "extractedText": "string",
  "titleOptions": ["string"],
  "hookOptions": ["string"],
  "scriptMarkdown": "string",
  "shots": [{ "t": "string", "frame": "string", "onScreenText": "string", "voiceOver": "string", "broll": "string" }],
  "thumbnailIdeas": ["string"],
  "hashtags": ["string"],
  "checklist": ["string"]
}
`)

// SystemInstruction returns the fixed instruction sent with every request.
func SystemInstruction() string {
	return systemInstruction
}

// DurationMode names the structure mode the model should apply.
func DurationMode(sec int) string {
	switch {
	case sec <= 20:
		return "A"
	case sec <= 60:
		return "B"
	case sec <= 180:
		return "C"
	case sec <= 600:
		return "D"
	default:
		return "E"
	}
}

// composeInstruction renders the per-request text part that follows the
// attachments.
func composeInstruction(req domain.GenerateRequest) string {
	opts := req.Options.WithDefaults()

	topic := strings.TrimSpace(req.Input.Text)
	if topic == "" {
		topic = "Analyse the attachments and propose a topic."
	}

	materials := "No attachments"
	if len(req.Input.Attachments) > 0 {
		names := make([]string, 0, len(req.Input.Attachments))
		for _, a := range req.Input.Attachments {
			names = append(names, a.Name)
		}
		materials = strings.Join(names, ", ")
	}

	var b strings.Builder
	b.Grow(512)

	b.WriteString("7) USER DATA\n")
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	fmt.Fprintf(&b, "Materials: %s\n", materials)
	fmt.Fprintf(&b, "Platform: %s\n", opts.Platform)
	fmt.Fprintf(&b, "AspectRatio: %s\n", AspectRatioFor(opts.Platform))
	fmt.Fprintf(&b, "DurationSec: %d\n", opts.DurationSec)
	fmt.Fprintf(&b, "Mode: %s\n", DurationMode(opts.DurationSec))
	fmt.Fprintf(&b, "Format: %s\n", opts.Style)
	fmt.Fprintf(&b, "Style: %s\n", opts.Style)
	fmt.Fprintf(&b, "Goal: %s\n", opts.Direction)
	fmt.Fprintf(&b, "CTAType: %s\n", opts.CTAStrength)
	fmt.Fprintf(&b, "Language: %s\n", opts.Language)
	fmt.Fprintf(&b, "SpeechWPM: %d", defaultSpeechWPM)

	return b.String()
}

// buildParts orders the request content: every attachment first, then the
// composed instruction.
func buildParts(req domain.GenerateRequest) []domain.Part {
	parts := make([]domain.Part, 0, len(req.Input.Attachments)+1)
	for _, a := range req.Input.Attachments {
		parts = append(parts, domain.Part{InlineData: &domain.Blob{
			MimeType:   a.MimeType,
			DataBase64: a.DataBase64,
		}})
	}
	parts = append(parts, domain.Part{Text: composeInstruction(req)})
	return parts
}

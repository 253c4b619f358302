package scenario

import (
	"fmt"
	"strconv"
	"strings"

	"scenarist-ai/internal/apperr"
	"scenarist-ai/internal/domain"
)

type NamedOption struct {
	Key         string `json:"key"`
	Name        string `json:"title"`
	Description string `json:"desc"`
}

const (
	MinDurationSec = 10
	MaxDurationSec = 1800
)

var styles = []NamedOption{
	{Key: string(domain.StyleStorytelling), Name: "Storytelling", Description: "Story, takeaway, trust."},
	{Key: string(domain.StyleProvocative), Name: "Provocation", Description: "Myth versus truth. High CTR."},
	{Key: string(domain.StyleEducational), Name: "Education", Description: "Step by step, examples, value."},
	{Key: string(domain.StyleEntertaining), Name: "Entertainment", Description: "Light format, humor, style."},
}

var directions = []NamedOption{
	{Key: string(domain.DirectionSale), Name: "Sale", Description: "Conversion through pain and solution."},
	{Key: string(domain.DirectionExpertise), Name: "Expertise", Description: "Grow trust in the brand."},
	{Key: string(domain.DirectionAds), Name: "Advertising", Description: "Native product integration."},
	{Key: string(domain.DirectionEngagement), Name: "Engagement", Description: "Comments and reposts."},
}

var platforms = []NamedOption{
	{Key: string(domain.PlatformShorts), Name: "YouTube Shorts", Description: "Vertical 9:16, frequent re-hooks."},
	{Key: string(domain.PlatformReels), Name: "Reels", Description: "Vertical 9:16, visual rhythm."},
	{Key: string(domain.PlatformTikTok), Name: "TikTok", Description: "Vertical 9:16, trend-native delivery."},
	{Key: string(domain.PlatformYouTube), Name: "YouTube", Description: "Horizontal 16:9, room for depth."},
}

var ctaStrengths = []NamedOption{
	{Key: string(domain.CTASoft), Name: "Soft", Description: "Native, unobtrusive call to action."},
	{Key: string(domain.CTAHard), Name: "Hard", Description: "Direct, explicit call to action."},
}

func Styles() []NamedOption       { return append([]NamedOption(nil), styles...) }
func Directions() []NamedOption   { return append([]NamedOption(nil), directions...) }
func Platforms() []NamedOption    { return append([]NamedOption(nil), platforms...) }
func CTAStrengths() []NamedOption { return append([]NamedOption(nil), ctaStrengths...) }

// Catalog groups every option list by its request field name.
func Catalog() map[string][]NamedOption {
	return map[string][]NamedOption{
		"style":       Styles(),
		"direction":   Directions(),
		"platform":    Platforms(),
		"ctaStrength": CTAStrengths(),
	}
}

func hasKey(list []NamedOption, key string) bool {
	for _, o := range list {
		if o.Key == key {
			return true
		}
	}
	return false
}

// OptionName returns the display name for key, or key itself.
func OptionName(list []NamedOption, key string) string {
	for _, o := range list {
		if o.Key == key {
			return o.Name
		}
	}
	return key
}

func ClampDuration(sec int) int {
	if sec < MinDurationSec {
		return MinDurationSec
	}
	if sec > MaxDurationSec {
		return MaxDurationSec
	}
	return sec
}

// AspectRatioFor maps a platform to its frame shape.
func AspectRatioFor(p domain.Platform) string {
	if p == domain.PlatformYouTube {
		return "16:9"
	}
	return "9:16"
}

// ValidateOptions rejects values outside the catalog.
func ValidateOptions(o domain.Options) error {
	switch {
	case o.Style != "" && !hasKey(styles, string(o.Style)):
		return apperr.New(apperr.KindInvalidInput, fmt.Sprintf("Unknown style %q.", o.Style))
	case o.Direction != "" && !hasKey(directions, string(o.Direction)):
		return apperr.New(apperr.KindInvalidInput, fmt.Sprintf("Unknown direction %q.", o.Direction))
	case o.Platform != "" && !hasKey(platforms, string(o.Platform)):
		return apperr.New(apperr.KindInvalidInput, fmt.Sprintf("Unknown platform %q.", o.Platform))
	case o.CTAStrength != "" && !hasKey(ctaStrengths, string(o.CTAStrength)):
		return apperr.New(apperr.KindInvalidInput, fmt.Sprintf("Unknown CTA strength %q.", o.CTAStrength))
	}
	return nil
}

// ParseOptions applies "key=value" pairs and bare option keys from raw on
// top of defaults. A bare number (optionally suffixed with "s") sets the
// duration. Unrecognised tokens are reported together.
func ParseOptions(raw string, defaults domain.Options) (domain.Options, error) {
	opts := defaults
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return opts, nil
	}

	var unknown []string
	for _, tok := range strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' || r == '\n' || r == '\t' }) {
		orig := tok
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}

		if key, value, ok := strings.Cut(tok, "="); ok {
			if applyPair(&opts, key, strings.TrimSpace(value)) {
				continue
			}
			unknown = append(unknown, orig)
			continue
		}

		switch {
		case hasKey(styles, tok):
			opts.Style = domain.Style(tok)
		case hasKey(directions, tok):
			opts.Direction = domain.Direction(tok)
		case hasKey(platforms, tok):
			opts.Platform = domain.Platform(tok)
		case hasKey(ctaStrengths, tok):
			opts.CTAStrength = domain.CTAStrength(tok)
		default:
			if sec, ok := parseDuration(tok); ok {
				opts.DurationSec = sec
				continue
			}
			unknown = append(unknown, orig)
		}
	}

	if len(unknown) > 0 {
		return defaults, apperr.New(apperr.KindInvalidInput, "Unknown options: "+strings.Join(unknown, ", "))
	}
	return opts, nil
}

func applyPair(opts *domain.Options, key, value string) bool {
	switch key {
	case "style":
		if hasKey(styles, value) {
			opts.Style = domain.Style(value)
			return true
		}
	case "direction", "goal":
		if hasKey(directions, value) {
			opts.Direction = domain.Direction(value)
			return true
		}
	case "platform":
		if hasKey(platforms, value) {
			opts.Platform = domain.Platform(value)
			return true
		}
	case "cta":
		if hasKey(ctaStrengths, value) {
			opts.CTAStrength = domain.CTAStrength(value)
			return true
		}
	case "duration", "dur":
		if sec, ok := parseDuration(value); ok {
			opts.DurationSec = sec
			return true
		}
	case "lang", "language":
		if value != "" {
			opts.Language = strings.ToUpper(value[:1]) + value[1:]
			return true
		}
	}
	return false
}

func parseDuration(tok string) (int, bool) {
	mult := 1
	switch {
	case strings.HasSuffix(tok, "min"):
		tok = strings.TrimSuffix(tok, "min")
		mult = 60
	case strings.HasSuffix(tok, "m"):
		tok = strings.TrimSuffix(tok, "m")
		mult = 60
	case strings.HasSuffix(tok, "s"):
		tok = strings.TrimSuffix(tok, "s")
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n <= 0 {
		return 0, false
	}
	return ClampDuration(n * mult), true
}

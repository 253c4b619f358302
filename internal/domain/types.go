package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Attachment is an encoded file payload sent alongside a generation request.
// DataBase64 carries no data-URL prefix.
type Attachment struct {
	Name       string `json:"name"`
	MimeType   string `json:"mimeType"`
	DataBase64 string `json:"dataBase64"`
}

// DecodedLen is the byte length of the original file content.
func (a Attachment) DecodedLen() int {
	n, err := base64.StdEncoding.DecodeString(a.DataBase64)
	if err != nil {
		return 0
	}
	return len(n)
}

type Style string

const (
	StyleStorytelling Style = "storytelling"
	StyleProvocative  Style = "provocative"
	StyleEducational  Style = "educational"
	StyleEntertaining Style = "entertaining"
)

type Direction string

const (
	DirectionSale       Direction = "sale"
	DirectionExpertise  Direction = "expertise"
	DirectionAds        Direction = "ads"
	DirectionEngagement Direction = "engagement"
)

type Platform string

const (
	PlatformShorts  Platform = "shorts"
	PlatformReels   Platform = "reels"
	PlatformTikTok  Platform = "tiktok"
	PlatformYouTube Platform = "youtube"
)

type CTAStrength string

const (
	CTASoft CTAStrength = "soft"
	CTAHard CTAStrength = "hard"
)

const (
	DefaultDurationSec = 60
	DefaultLanguage    = "English"
)

type Options struct {
	Style       Style       `json:"style"`
	Direction   Direction   `json:"direction"`
	Platform    Platform    `json:"platform"`
	CTAStrength CTAStrength `json:"ctaStrength"`
	DurationSec int         `json:"durationSec"`
	Language    string      `json:"language,omitempty"`
}

// WithDefaults fills unset fields with the stock choices.
func (o Options) WithDefaults() Options {
	if o.Style == "" {
		o.Style = StyleStorytelling
	}
	if o.Direction == "" {
		o.Direction = DirectionExpertise
	}
	if o.Platform == "" {
		o.Platform = PlatformShorts
	}
	if o.CTAStrength == "" {
		o.CTAStrength = CTASoft
	}
	if o.DurationSec <= 0 {
		o.DurationSec = DefaultDurationSec
	}
	if o.Language == "" {
		o.Language = DefaultLanguage
	}
	return o
}

type Input struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
}

type ClientInfo struct {
	Timezone  string `json:"tz"`
	UIVersion string `json:"uiVersion"`
	Account   string `json:"account,omitempty"`
}

type GenerateRequest struct {
	Input   Input      `json:"input"`
	Options Options    `json:"options"`
	Client  ClientInfo `json:"client"`
}

type Shot struct {
	Timecode     string `json:"t"`
	Frame        string `json:"frame"`
	OnScreenText string `json:"onScreenText"`
	VoiceOver    string `json:"voiceOver"`
	BRoll        string `json:"broll"`
}

type GenerateResult struct {
	ExtractedText  string   `json:"extractedText"`
	TitleOptions   []string `json:"titleOptions"`
	HookOptions    []string `json:"hookOptions"`
	ScriptMarkdown string   `json:"scriptMarkdown"`
	Shots          []Shot   `json:"shots"`
	ThumbnailIdeas []string `json:"thumbnailIdeas"`
	Hashtags       []string `json:"hashtags"`
	Checklist      []string `json:"checklist"`
}

// Title is the first title option, or fallback when there is none.
func (r GenerateResult) Title(fallback string) string {
	for _, t := range r.TitleOptions {
		if strings.TrimSpace(t) != "" {
			return t
		}
	}
	return fallback
}

type Limits struct {
	IsPro          bool `json:"isPro"`
	RemainingToday int  `json:"remainingToday"`
	DailyLimit     int  `json:"dailyLimit"`
}

type HistoryEntry struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Markdown  string          `json:"content"`
	Result    *GenerateResult `json:"result,omitempty"`
	CreatedAt time.Time       `json:"timestamp"`
}

// Part is one element of a remote generation request: either text or an
// inline binary payload.
type Part struct {
	Text       string
	InlineData *Blob
}

type Blob struct {
	MimeType   string
	DataBase64 string
}

type TextPrompt struct {
	Model             string
	Parts             []Part
	SystemInstruction string
	ResponseMIMEType  string
	ThinkingBudget    int
	Temperature       float64
}

type ImagePrompt struct {
	Model       string
	Prompt      string
	AspectRatio string
}

type Image struct {
	MimeType string
	Data     []byte
}

// DataURI encodes the image for direct display.
func (i Image) DataURI() string {
	mime := i.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(i.Data))
}

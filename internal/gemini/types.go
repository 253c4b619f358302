package gemini

import (
	"fmt"
	"strings"
)

type generateContentRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature        float64         `json:"temperature,omitempty"`
	ResponseMIMEType   string          `json:"responseMimeType,omitempty"`
	ResponseModalities []string        `json:"responseModalities,omitempty"`
	ThinkingConfig     *thinkingConfig `json:"thinkingConfig,omitempty"`
	ImageConfig        *imageConfig    `json:"imageConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	Thought    bool   `json:"thought,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type generateContentResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type errorEnvelope struct {
	Error *apiError `json:"error"`
}

// apiError is the Google API error body.
type apiError struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Status  string        `json:"status"`
	Details []errorDetail `json:"details,omitempty"`

	httpStatus string
}

type errorDetail struct {
	Type   string `json:"@type"`
	Reason string `json:"reason,omitempty"`
}

func (e *apiError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if e.Status != "" {
		return fmt.Sprintf("gemini API %s (%s): %s", e.httpStatus, e.Status, msg)
	}
	return fmt.Sprintf("gemini API %s: %s", e.httpStatus, msg)
}

func (e *apiError) hasReason(reason string) bool {
	for _, d := range e.Details {
		if strings.EqualFold(d.Reason, reason) {
			return true
		}
	}
	return false
}

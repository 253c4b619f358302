package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"scenarist-ai/internal/apperr"
	"scenarist-ai/internal/domain"
)

const (
	defaultTextModel  = "gemini-2.5-pro"
	defaultImageModel = "gemini-2.5-flash-image"
)

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	TextModel  string
	ImageModel string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the generateContent REST endpoint. Every error it returns
// is an *apperr.Error with its kind already decided.
type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	textModel  string
	imageModel string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = defaultTextModel
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = defaultImageModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		apiVersion: apiVersion,
		textModel:  textModel,
		imageModel: imageModel,
		httpClient: httpClient,
		logger:     logger,
	}
}

// GenerateText sends the ordered parts with the system instruction and
// returns the concatenated answer text (thought parts excluded).
func (c *Client) GenerateText(ctx context.Context, p domain.TextPrompt) (string, error) {
	if err := c.checkCredential(); err != nil {
		return "", err.WithOp("gemini.GenerateText")
	}

	model := strings.TrimSpace(p.Model)
	if model == "" {
		model = c.textModel
	}

	cfg := generationConfig{
		Temperature:      p.Temperature,
		ResponseMIMEType: p.ResponseMIMEType,
	}
	if p.ThinkingBudget > 0 {
		cfg.ThinkingConfig = &thinkingConfig{ThinkingBudget: p.ThinkingBudget}
	}

	req := generateContentRequest{
		Contents:         []content{{Role: "user", Parts: toWireParts(p.Parts)}},
		GenerationConfig: cfg,
	}
	if strings.TrimSpace(p.SystemInstruction) != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: p.SystemInstruction}}}
	}

	resp, err := c.generateContent(ctx, model, req)
	if err != nil && req.GenerationConfig.ThinkingConfig != nil && isUnknownFieldError(err, "thinkingConfig") {
		c.logger.Warn("model rejected thinkingConfig, retrying without it", "model", model)
		req.GenerationConfig.ThinkingConfig = nil
		resp, err = c.generateContent(ctx, model, req)
	}
	if err != nil {
		return "", err
	}

	text, _ := extractParts(resp)
	if strings.TrimSpace(text) == "" && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		c.logger.Warn("prompt blocked", "reason", resp.PromptFeedback.BlockReason)
	}
	return text, nil
}

// GenerateImage asks the image model for one picture and returns the first
// inline binary part of the answer.
func (c *Client) GenerateImage(ctx context.Context, p domain.ImagePrompt) (domain.Image, error) {
	if err := c.checkCredential(); err != nil {
		return domain.Image{}, err.WithOp("gemini.GenerateImage")
	}

	prompt := strings.TrimSpace(p.Prompt)
	if prompt == "" {
		return domain.Image{}, apperr.New(apperr.KindInvalidInput, "The image description is empty.")
	}

	model := strings.TrimSpace(p.Model)
	if model == "" {
		model = c.imageModel
	}

	req := generateContentRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: prompt}}},
		},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}
	if ar := strings.TrimSpace(p.AspectRatio); ar != "" {
		req.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: ar}
	}

	resp, err := c.generateContent(ctx, model, req)
	if err != nil && req.GenerationConfig.ImageConfig != nil && isUnknownFieldError(err, "imageConfig") {
		c.logger.Warn("model rejected imageConfig, retrying without it", "model", model)
		req.GenerationConfig.ImageConfig = nil
		resp, err = c.generateContent(ctx, model, req)
	}
	if err != nil {
		return domain.Image{}, err
	}

	_, images := extractParts(resp)
	if len(images) == 0 {
		return domain.Image{}, apperr.Transport(errors.New("model returned no image")).WithOp("gemini.GenerateImage")
	}

	data, decodeErr := base64.StdEncoding.DecodeString(images[0].Data)
	if decodeErr != nil {
		return domain.Image{}, apperr.Transport(fmt.Errorf("decode image: %w", decodeErr)).WithOp("gemini.GenerateImage")
	}

	return domain.Image{MimeType: images[0].MimeType, Data: data}, nil
}

func (c *Client) checkCredential() *apperr.Error {
	if c.apiKey == "" || c.apiKey == "undefined" {
		return apperr.Config("")
	}
	return nil
}

func toWireParts(parts []domain.Part) []part {
	out := make([]part, 0, len(parts))
	for _, p := range parts {
		if p.InlineData != nil {
			out = append(out, part{InlineData: &blob{
				Data:     stripDataURLPrefix(p.InlineData.DataBase64),
				MimeType: p.InlineData.MimeType,
			}})
			continue
		}
		out = append(out, part{Text: p.Text})
	}
	return out
}

func (c *Client) generateContent(ctx context.Context, model string, payload generateContentRequest) (generateContentResponse, error) {
	op := "gemini.generateContent"

	body, err := json.Marshal(payload)
	if err != nil {
		return generateContentResponse{}, apperr.Transport(fmt.Errorf("marshal request: %w", err)).WithOp(op)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return generateContentResponse{}, apperr.Transport(fmt.Errorf("create request: %w", err)).WithOp(op)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generateContentResponse{}, classifyTransport(err).WithOp(op)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return generateContentResponse{}, classifyTransport(fmt.Errorf("read response: %w", err)).WithOp(op)
	}

	c.logger.Debug("gemini call", "model", model, "status", httpResp.StatusCode, "dur_ms", time.Since(start).Milliseconds())

	if httpResp.StatusCode >= 400 {
		apiErr := decodeAPIError(httpResp, rawBody)
		kind := classifyAPIError(apiErr)
		c.logger.Warn("gemini API error", "model", model, "status", httpResp.StatusCode, "kind", kind.String(), "err", apiErr)
		return generateContentResponse{}, apperr.Wrap(apiErr, kind, apperr.DefaultMessage(kind)).WithOp(op)
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return generateContentResponse{}, apperr.Transport(fmt.Errorf("decode response: %w", err)).WithOp(op)
	}

	return decoded, nil
}

func decodeAPIError(resp *http.Response, body []byte) *apiError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		env.Error.httpStatus = resp.Status
		if env.Error.Code == 0 {
			env.Error.Code = resp.StatusCode
		}
		return env.Error
	}
	return &apiError{
		Code:       resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
		httpStatus: resp.Status,
	}
}

// classifyAPIError decides the credential/authorization taxonomy from the
// structured error body. Revocation is checked first because Google reports
// leaked keys with PERMISSION_DENIED.
func classifyAPIError(e *apiError) apperr.Kind {
	msg := strings.ToLower(e.Message)
	switch {
	case strings.Contains(msg, "leaked"),
		strings.Contains(msg, "revoked"),
		strings.Contains(msg, "api key expired"),
		e.hasReason("API_KEY_EXPIRED"),
		e.hasReason("API_KEY_REVOKED"):
		return apperr.KindRevokedCredential
	case e.hasReason("API_KEY_INVALID"),
		e.Status == "UNAUTHENTICATED",
		e.Code == http.StatusUnauthorized,
		strings.Contains(msg, "api key not valid"):
		return apperr.KindInvalidCredential
	case e.Status == "PERMISSION_DENIED",
		e.Code == http.StatusForbidden:
		return apperr.KindPermissionDenied
	default:
		return apperr.KindTransport
	}
}

func classifyTransport(err error) *apperr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.Timeout(err)
	}
	return apperr.Transport(err)
}

func extractParts(resp generateContentResponse) (string, []blob) {
	if len(resp.Candidates) == 0 {
		return "", nil
	}

	var textBuilder strings.Builder
	var images []blob

	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" && !p.Thought {
			textBuilder.WriteString(p.Text)
		}
		if p.InlineData != nil && p.InlineData.Data != "" && p.InlineData.MimeType != "" {
			images = append(images, *p.InlineData)
		}
	}

	return textBuilder.String(), images
}

func stripDataURLPrefix(value string) string {
	if !strings.HasPrefix(value, "data:") {
		return value
	}
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		return value[idx+1:]
	}
	return value
}

func isUnknownFieldError(err error, field string) bool {
	var e *apiError
	if !errors.As(err, &e) {
		return false
	}
	return strings.Contains(e.Message, "Unknown name") && strings.Contains(e.Message, field)
}

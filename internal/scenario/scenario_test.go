package scenario

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenarist-ai/internal/apperr"
	"scenarist-ai/internal/credit"
	"scenarist-ai/internal/domain"
	"scenarist-ai/internal/history"
)

const validAnswer = `{"titleOptions":["Coffee hacks"],"hookOptions":["Stop!"],"scriptMarkdown":"Hello","shots":[{"t":"0-3s","frame":"cup","onScreenText":"HI","voiceOver":"hi","broll":"steam"}],"thumbnailIdeas":["a","b"],"hashtags":["coffee"],"checklist":["sound"]}`

type fakeModel struct {
	mu      sync.Mutex
	calls   int
	prompts []domain.TextPrompt
	answer  string
	err     error
	block   bool
}

func (f *fakeModel) GenerateText(ctx context.Context, p domain.TextPrompt) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, p)
	block, answer, err := f.block, f.answer, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return answer, err
}

func (f *fakeModel) GenerateImage(context.Context, domain.ImagePrompt) (domain.Image, error) {
	return domain.Image{}, errors.New("not used")
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newService(t *testing.T, model Model, limit int) (*Service, *history.Store) {
	t.Helper()
	hist := history.Open(history.NewMemoryKV(), history.Options{})
	svc := NewService(ServiceOptions{
		Client:  NewClient(ClientOptions{Model: model, ThinkingBudget: 16384, Timeout: time.Second}),
		Gate:    credit.NewGate(credit.Options{DailyLimit: limit}),
		History: hist,
		Info:    domain.ClientInfo{Timezone: "UTC", UIVersion: "2.5.0"},
	})
	return svc, hist
}

func TestGenerate_Success(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{answer: "```json\n" + validAnswer + "\n```"}
	svc, hist := newService(t, model, 2)

	out, err := svc.Generate(ctx, "alice", domain.Input{Text: "coffee"}, domain.Options{Platform: domain.PlatformYouTube})
	require.NoError(t, err)

	require.Equal(t, "Coffee hacks", out.Result.TitleOptions[0])
	require.True(t, strings.HasPrefix(out.Markdown, "# Coffee hacks\n"))
	require.Equal(t, 1, out.Limits.RemainingToday)
	require.Equal(t, "alice", out.Request.Client.Account)
	require.Equal(t, "2.5.0", out.Request.Client.UIVersion)
	require.NotNil(t, out.Entry)

	list, err := hist.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Coffee hacks", list[0].Title)

	require.Len(t, model.prompts, 1)
	p := model.prompts[0]
	require.Equal(t, "application/json", p.ResponseMIMEType)
	require.Equal(t, 16384, p.ThinkingBudget)
	require.Equal(t, SystemInstruction(), p.SystemInstruction)
	require.Contains(t, p.Parts[len(p.Parts)-1].Text, "AspectRatio: 16:9")
}

func TestGenerate_EmptyInputSpendsNothing(t *testing.T) {
	model := &fakeModel{answer: validAnswer}
	svc, _ := newService(t, model, 2)

	out, err := svc.Generate(context.Background(), "bob", domain.Input{Text: "   "}, domain.Options{})
	require.Equal(t, apperr.KindEmptyInput, apperr.KindOf(err))
	require.Zero(t, model.callCount())
	require.Equal(t, 2, out.Limits.RemainingToday)
}

func TestGenerate_QuotaDenialMakesNoNetworkCall(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{answer: validAnswer}
	svc, _ := newService(t, model, 2)

	for i := 0; i < 2; i++ {
		_, err := svc.Generate(ctx, "carol", domain.Input{Text: "x"}, domain.Options{})
		require.NoError(t, err)
	}

	out, err := svc.Generate(ctx, "carol", domain.Input{Text: "x"}, domain.Options{})
	require.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))
	require.Contains(t, apperr.UserMessage(err), "2 per day")
	require.Equal(t, 2, model.callCount())
	require.Equal(t, 0, out.Limits.RemainingToday)
}

func TestGenerate_ProAlwaysAllowed(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{answer: validAnswer}
	svc, _ := newService(t, model, 1)

	limits, err := svc.Subscribe(ctx, "dave")
	require.NoError(t, err)
	require.True(t, limits.IsPro)

	for i := 0; i < 3; i++ {
		_, err := svc.Generate(ctx, "dave", domain.Input{Text: "x"}, domain.Options{})
		require.NoError(t, err)
	}
	require.Equal(t, 3, model.callCount())
}

func TestGenerate_ConfigErrorRefundsCredit(t *testing.T) {
	model := &fakeModel{err: apperr.Config("")}
	svc, _ := newService(t, model, 2)

	out, err := svc.Generate(context.Background(), "erin", domain.Input{Text: "x"}, domain.Options{})
	require.Equal(t, apperr.KindConfig, apperr.KindOf(err))
	require.Equal(t, 2, out.Limits.RemainingToday)
}

func TestGenerate_NilModelIsConfigError(t *testing.T) {
	svc := NewService(ServiceOptions{})
	_, err := svc.Generate(context.Background(), "", domain.Input{Text: "x"}, domain.Options{})
	require.Equal(t, apperr.KindConfig, apperr.KindOf(err))
}

func TestGenerate_ParseErrorKeepsCreditSpent(t *testing.T) {
	model := &fakeModel{answer: "Sorry, I cannot help with that."}
	svc, hist := newService(t, model, 2)

	out, err := svc.Generate(context.Background(), "frank", domain.Input{Text: "x"}, domain.Options{})
	require.Equal(t, apperr.KindParse, apperr.KindOf(err))
	require.Equal(t, 1, out.Limits.RemainingToday)

	list, _ := hist.List(context.Background(), "frank")
	require.Empty(t, list)
}

func TestGenerate_UnclassifiedErrorIsTransport(t *testing.T) {
	model := &fakeModel{err: errors.New("connection reset")}
	svc, _ := newService(t, model, 2)

	_, err := svc.Generate(context.Background(), "gina", domain.Input{Text: "x"}, domain.Options{})
	require.Equal(t, apperr.KindTransport, apperr.KindOf(err))
	require.True(t, apperr.Retryable(err))
}

func TestGenerate_InvalidOption(t *testing.T) {
	model := &fakeModel{answer: validAnswer}
	svc, _ := newService(t, model, 2)

	_, err := svc.Generate(context.Background(), "", domain.Input{Text: "x"}, domain.Options{Platform: "myspace"})
	require.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	require.Zero(t, model.callCount())
}

func TestClient_Timeout(t *testing.T) {
	model := &fakeModel{block: true}
	client := NewClient(ClientOptions{Model: model, Timeout: 20 * time.Millisecond})

	req := NewRequest("x", nil, domain.Options{}, domain.ClientInfo{})
	_, err := client.Generate(context.Background(), req)
	require.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
}

func TestBuildParts_AttachmentsFirst(t *testing.T) {
	atts := []domain.Attachment{
		{Name: "a.png", MimeType: "image/png", DataBase64: "QUJD"},
		{Name: "b.pdf", MimeType: "application/pdf", DataBase64: "REVG"},
	}
	req := NewRequest("", atts, domain.Options{DurationSec: 45}, domain.ClientInfo{})
	parts := buildParts(req)

	require.Len(t, parts, 3)
	require.Equal(t, "image/png", parts[0].InlineData.MimeType)
	require.Equal(t, "REVG", parts[1].InlineData.DataBase64)
	require.Nil(t, parts[2].InlineData)

	text := parts[2].Text
	assert.Contains(t, text, "Topic: Analyse the attachments and propose a topic.")
	assert.Contains(t, text, "Materials: a.png, b.pdf")
	assert.Contains(t, text, "AspectRatio: 9:16")
	assert.Contains(t, text, "DurationSec: 45")
	assert.Contains(t, text, "Mode: B")
	assert.Contains(t, text, "Goal: expertise")
	assert.Contains(t, text, "Language: English")
}

func TestNewRequest_IsSnapshot(t *testing.T) {
	atts := []domain.Attachment{{Name: "a.txt"}}
	req := NewRequest("topic", atts, domain.Options{DurationSec: 5000}, domain.ClientInfo{})
	atts[0].Name = "changed"

	require.Equal(t, "a.txt", req.Input.Attachments[0].Name)
	require.Equal(t, MaxDurationSec, req.Options.DurationSec)
	require.Equal(t, domain.StyleStorytelling, req.Options.Style)
}

func TestParseResult(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		wantOK bool
	}{
		{"plain", validAnswer, true},
		{"fenced", "```json\n" + validAnswer + "\n```", true},
		{"bare fence", "```\n" + validAnswer + "```", true},
		{"json on fence line", "```{\"titleOptions\":[\"A\"],\n\"hashtags\":[\"x\"]}\n```", true},
		{"one-line fence", "```json " + `{"titleOptions":["A"]}` + "```", true},
		{"tag without newline", "```json", false},
		{"prose around", "Here is your script:\n" + validAnswer + "\nEnjoy!", true},
		{"brace in string", `{"scriptMarkdown":"use {braces} }carefully"}`, true},
		{"empty", "   ", false},
		{"no json", "I cannot do that", false},
		{"unknown keys", `{"answer":"42"}`, false},
		{"broken", `{"titleOptions":["a"`, false},
		{"wrong type", `{"titleOptions":"not a list"}`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseResult(tc.in)
			if tc.wantOK {
				require.NoError(t, err)
				return
			}
			require.Equal(t, apperr.KindParse, apperr.KindOf(err))
		})
	}
}

func TestParseResult_FenceLineKeepsObject(t *testing.T) {
	res, err := ParseResult("```{\"titleOptions\":[\"A\"],\n\"hashtags\":[\"x\"]}\n```")
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, res.TitleOptions)
	require.Equal(t, []string{"x"}, res.Hashtags)
}

func TestParseResult_SkipsInvalidLeadingBraces(t *testing.T) {
	res, err := ParseResult("{oops} then " + validAnswer)
	require.NoError(t, err)
	require.Equal(t, "Hello", res.ScriptMarkdown)
	require.Equal(t, "0-3s", res.Shots[0].Timecode)
}

func TestParseOptions(t *testing.T) {
	defaults := domain.Options{}.WithDefaults()

	opts, err := ParseOptions("provocative platform=youtube cta=hard 90s lang=german", defaults)
	require.NoError(t, err)
	require.Equal(t, domain.StyleProvocative, opts.Style)
	require.Equal(t, domain.PlatformYouTube, opts.Platform)
	require.Equal(t, domain.CTAHard, opts.CTAStrength)
	require.Equal(t, 90, opts.DurationSec)
	require.Equal(t, "German", opts.Language)

	opts, err = ParseOptions("goal=sale, duration=2m", defaults)
	require.NoError(t, err)
	require.Equal(t, domain.DirectionSale, opts.Direction)
	require.Equal(t, 120, opts.DurationSec)

	opts, err = ParseOptions("5", defaults)
	require.NoError(t, err)
	require.Equal(t, MinDurationSec, opts.DurationSec)

	_, err = ParseOptions("platform=myspace banana", defaults)
	require.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	require.Contains(t, apperr.UserMessage(err), "platform=myspace")
	require.Contains(t, apperr.UserMessage(err), "banana")
}

func TestDurationModeAndAspect(t *testing.T) {
	require.Equal(t, "A", DurationMode(10))
	require.Equal(t, "B", DurationMode(60))
	require.Equal(t, "C", DurationMode(61))
	require.Equal(t, "D", DurationMode(600))
	require.Equal(t, "E", DurationMode(1800))

	require.Equal(t, "16:9", AspectRatioFor(domain.PlatformYouTube))
	require.Equal(t, "9:16", AspectRatioFor(domain.PlatformTikTok))
	require.Equal(t, "9:16", AspectRatioFor(""))
}

func TestCatalog(t *testing.T) {
	c := Catalog()
	require.Len(t, c["style"], 4)
	require.Len(t, c["direction"], 4)
	require.Len(t, c["platform"], 4)
	require.Len(t, c["ctaStrength"], 2)
	require.Equal(t, "YouTube", OptionName(Platforms(), "youtube"))
}

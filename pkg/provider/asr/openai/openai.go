// Package openai provides an ASR provider backed by the OpenAI audio
// transcription API.
//
// Requests ask for the verbose JSON response with word-level timestamp
// granularity. The API does not report per-word probabilities, so word
// confidences are left at zero and the word aligner falls back to exact
// matching for them.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/tartil/pkg/audio"
	"github.com/MrWong99/tartil/pkg/provider/asr"
	"github.com/MrWong99/tartil/pkg/types"
)

// DefaultModel is the default OpenAI transcription model. It is the only
// one that returns word timestamps.
const DefaultModel = oai.AudioModelWhisper1

// Ensure Provider implements the asr.Provider interface.
var _ asr.Provider = (*Provider)(nil)

// Provider implements asr.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	language     string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithLanguage sets the language used when a request does not name one.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI ASR Provider.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai asr: apiKey must not be empty")
	}
	if model == "" {
		model = string(DefaultModel)
	}

	cfg := &config{language: "ar"}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model, language: cfg.language}, nil
}

// verboseTranscription is the verbose_json body. The SDK's typed response
// only exposes the text, so the rest is read from the raw JSON.
type verboseTranscription struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Words    []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

// Transcribe implements asr.Provider.
func (p *Provider) Transcribe(ctx context.Context, a types.Audio, opts asr.Options) (types.Transcript, error) {
	if len(a.PCM) == 0 {
		return types.Transcript{}, fmt.Errorf("openai asr: %w", asr.ErrEmptyAudio)
	}
	speech, err := audio.Normalize(a, audio.SpeechFormat)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("openai asr: %w", err)
	}

	params := oai.AudioTranscriptionNewParams{
		File:                   oai.File(bytes.NewReader(audio.EncodeWAV(speech)), "audio.wav", "audio/wav"),
		Model:                  oai.AudioModel(p.model),
		ResponseFormat:         oai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word"},
		Temperature:            oai.Float(0),
	}
	lang := opts.Language
	if lang == "" {
		lang = p.language
	}
	if lang != "" {
		params.Language = oai.String(lang)
	}
	if opts.Prompt != "" {
		params.Prompt = oai.String(opts.Prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("openai asr: transcribe: %w", err)
	}

	var v verboseTranscription
	if err := json.Unmarshal([]byte(resp.RawJSON()), &v); err != nil {
		return types.Transcript{}, fmt.Errorf("openai asr: parse response: %w", err)
	}

	tr := types.Transcript{
		Text:     strings.TrimSpace(v.Text),
		Language: v.Language,
		Duration: seconds(v.Duration),
	}
	if tr.Language == "" {
		tr.Language = lang
	}
	for _, w := range v.Words {
		tr.Words = append(tr.Words, types.WordDetail{
			Word:  strings.TrimSpace(w.Word),
			Start: seconds(w.Start),
			End:   seconds(w.End),
		})
	}
	return tr, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

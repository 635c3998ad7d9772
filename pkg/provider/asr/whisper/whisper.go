// Package whisper provides an ASR provider backed by a whisper.cpp server.
//
// It POSTs each recording as a WAV file to the server's /inference endpoint
// and requests the verbose JSON response, which carries per-segment and
// per-word timestamps together with token probabilities.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("ar"),
//	)
//	tr, err := p.Transcribe(ctx, recording, asr.Options{})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/tartil/pkg/audio"
	"github.com/MrWong99/tartil/pkg/provider/asr"
	"github.com/MrWong99/tartil/pkg/types"
)

const defaultLanguage = "ar"

// Compile-time assertion that Provider implements asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "large-v3"). When empty the server uses whichever model it was
// started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default language code sent to the server when the
// request does not name one. Defaults to "ar".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the HTTP client. The default has a 60 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements asr.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// verboseResponse is the subset of whisper.cpp's verbose_json output that
// the provider reads.
type verboseResponse struct {
	Text                        string  `json:"text"`
	Language                    string  `json:"language"`
	Duration                    float64 `json:"duration"`
	DetectedLanguageProbability float64 `json:"detected_language_probability"`
	Segments                    []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Words []struct {
			Word        string  `json:"word"`
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Probability float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

// Transcribe implements asr.Provider. The recording is converted to 16 kHz
// mono before upload.
func (p *Provider) Transcribe(ctx context.Context, a types.Audio, opts asr.Options) (types.Transcript, error) {
	if len(a.PCM) == 0 {
		return types.Transcript{}, fmt.Errorf("whisper: %w", asr.ErrEmptyAudio)
	}
	speech, err := audio.Normalize(a, audio.SpeechFormat)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: %w", err)
	}

	lang := opts.Language
	if lang == "" {
		lang = p.language
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(speech)); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := [][2]string{
		{"response_format", "verbose_json"},
		{"temperature", "0"},
	}
	if lang != "" {
		fields = append(fields, [2]string{"language", lang})
	}
	if p.model != "" {
		fields = append(fields, [2]string{"model", p.model})
	}
	if opts.Prompt != "" {
		fields = append(fields, [2]string{"prompt", opts.Prompt})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return types.Transcript{}, fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result verboseResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.transcript(lang, speech.Duration()), nil
}

func (r verboseResponse) transcript(lang string, audioLen time.Duration) types.Transcript {
	tr := types.Transcript{
		Text:       strings.TrimSpace(r.Text),
		Confidence: r.DetectedLanguageProbability,
		Language:   r.Language,
		Duration:   seconds(r.Duration),
	}
	if tr.Language == "" {
		tr.Language = lang
	}
	if tr.Duration == 0 {
		tr.Duration = audioLen
	}
	for _, seg := range r.Segments {
		for _, w := range seg.Words {
			word := strings.TrimSpace(w.Word)
			if word == "" {
				continue
			}
			tr.Words = append(tr.Words, types.WordDetail{
				Word:       word,
				Start:      seconds(w.Start),
				End:        seconds(w.End),
				Confidence: w.Probability,
			})
		}
	}
	return tr
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

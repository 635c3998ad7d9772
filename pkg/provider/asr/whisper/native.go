//go:build whispercpp

// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. It is only built with the whispercpp tag. The
// whisper.cpp static library (libwhisper.a) and headers (whisper.h) must be
// available at link time via LIBRARY_PATH and C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/tartil/pkg/audio"
	"github.com/MrWong99/tartil/pkg/provider/asr"
	"github.com/MrWong99/tartil/pkg/types"
)

// Compile-time assertion that NativeProvider implements asr.Provider.
var _ asr.Provider = (*NativeProvider)(nil)

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default language code. Defaults to "ar".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NativeProvider implements asr.Provider in-process with whisper.cpp. The
// model is loaded once and shared; every call gets its own context, so
// calls may run concurrently.
type NativeProvider struct {
	model    whisperlib.Model
	language string
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when the provider is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &NativeProvider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements asr.Provider. Cancelling ctx aborts inference
// before the next encoder pass.
func (p *NativeProvider) Transcribe(ctx context.Context, a types.Audio, opts asr.Options) (types.Transcript, error) {
	if len(a.PCM) == 0 {
		return types.Transcript{}, fmt.Errorf("whisper: %w", asr.ErrEmptyAudio)
	}
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, err
	}
	speech, err := audio.Normalize(a, audio.SpeechFormat)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: %w", err)
	}

	lang := opts.Language
	if lang == "" {
		lang = p.language
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}
	if opts.Prompt != "" {
		wctx.SetInitialPrompt(opts.Prompt)
	}
	wctx.SetTokenTimestamps(true)

	keepGoing := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(audio.Float32(speech.PCM), keepGoing, nil, nil); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, err
	}

	var (
		parts  []string
		tokens []token
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		for _, t := range segment.Tokens {
			tokens = append(tokens, token{Text: t.Text, P: float64(t.P), Start: t.Start, End: t.End})
		}
	}

	return types.Transcript{
		Text:     strings.Join(parts, " "),
		Words:    groupTokens(tokens),
		Language: lang,
		Duration: speech.Duration(),
	}, nil
}

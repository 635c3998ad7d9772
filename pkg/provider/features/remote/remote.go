// Package remote provides a feature extractor backed by an HTTP
// feature-extraction service.
//
// The recording is uploaded as a 16 kHz mono WAV file to POST
// {baseURL}/v1/extract as multipart/form-data, together with the reference
// text. The service answers with JSON; all times are in seconds:
//
//	{
//	  "frames":      [[...], ...],
//	  "frame_times": [0.0, 0.01, ...],
//	  "prosody":     {"average_pitch": 180.2, "speech_rate": 3.1, ...},
//	  "signals": {
//	    "segments":       [{"position": 3, "start": 0.12, "end": 0.61}],
//	    "count_duration": 0.25,
//	    "echo":           {"9": true},
//	    "weights":        {"14": "heavy"},
//	    "clarity":        {"0": 0.82},
//	    "pitch":          [181.0, 182.5]
//	  }
//	}
package remote

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
	"github.com/MrWong99/tartil/pkg/provider/features"
	"github.com/MrWong99/tartil/pkg/types"
)

// Compile-time assertion that Extractor implements features.Extractor.
var _ features.Extractor = (*Extractor)(nil)

// Option is a functional option for configuring an Extractor.
type Option func(*Extractor)

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(e *Extractor) {
		e.apiKey = key
	}
}

// WithFeatureSet asks the service for a named feature set (e.g. "mfcc13").
// When empty the service default is used.
func WithFeatureSet(name string) Option {
	return func(e *Extractor) {
		e.featureSet = name
	}
}

// WithHTTPClient replaces the HTTP client. The default has a 60 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) {
		e.httpClient = c
	}
}

// Extractor implements features.Extractor over HTTP.
type Extractor struct {
	baseURL    string
	apiKey     string
	featureSet string
	httpClient *http.Client
}

// New creates an Extractor for the service at baseURL. baseURL must be
// non-empty.
func New(baseURL string, opts ...Option) (*Extractor, error) {
	if baseURL == "" {
		return nil, errors.New("features: baseURL must not be empty")
	}
	e := &Extractor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Extract implements features.Extractor.
func (e *Extractor) Extract(ctx context.Context, a types.Audio, opts features.Options) (types.AcousticFeatures, error) {
	speech, err := audio.Normalize(a, audio.SpeechFormat)
	if err != nil {
		return types.AcousticFeatures{}, fmt.Errorf("features: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return types.AcousticFeatures{}, fmt.Errorf("features: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(speech)); err != nil {
		return types.AcousticFeatures{}, fmt.Errorf("features: write wav data: %w", err)
	}
	if opts.ReferenceText != "" {
		if err := mw.WriteField("reference_text", opts.ReferenceText); err != nil {
			return types.AcousticFeatures{}, fmt.Errorf("features: write reference_text field: %w", err)
		}
	}
	if e.featureSet != "" {
		if err := mw.WriteField("feature_set", e.featureSet); err != nil {
			return types.AcousticFeatures{}, fmt.Errorf("features: write feature_set field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return types.AcousticFeatures{}, fmt.Errorf("features: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/extract", &body)
	if err != nil {
		return types.AcousticFeatures{}, fmt.Errorf("features: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return types.AcousticFeatures{}, fmt.Errorf("features: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.AcousticFeatures{}, fmt.Errorf("features: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.AcousticFeatures{}, fmt.Errorf("features: parse JSON response: %w", err)
	}
	af, err := out.features()
	if err != nil {
		return types.AcousticFeatures{}, fmt.Errorf("features: %w", err)
	}
	return af, nil
}

type response struct {
	Frames     [][]float64 `json:"frames"`
	FrameTimes []float64   `json:"frame_times"`
	Prosody    struct {
		AveragePitch     *float64 `json:"average_pitch"`
		AverageIntensity *float64 `json:"average_intensity"`
		MaxIntensity     *float64 `json:"max_intensity"`
		Duration         *float64 `json:"duration"`
		SpeechRate       *float64 `json:"speech_rate"`
	} `json:"prosody"`
	Signals *struct {
		Segments []struct {
			Position int     `json:"position"`
			Start    float64 `json:"start"`
			End      float64 `json:"end"`
			Counts   float64 `json:"counts"`
		} `json:"segments"`
		CountDuration float64         `json:"count_duration"`
		MaddCounts    *float64        `json:"madd_counts"`
		GhunnahCounts *float64        `json:"ghunnah_counts"`
		Echo          map[int]bool    `json:"echo"`
		Weights       map[int]string  `json:"weights"`
		Clarity       map[int]float64 `json:"clarity"`
		Pitch         []float64       `json:"pitch"`
	} `json:"signals"`
}

func (r response) features() (types.AcousticFeatures, error) {
	if len(r.FrameTimes) > 0 && len(r.FrameTimes) != len(r.Frames) {
		return types.AcousticFeatures{}, fmt.Errorf("%d frame times for %d frames", len(r.FrameTimes), len(r.Frames))
	}

	af := types.AcousticFeatures{
		Features: types.FeatureSequence{Vectors: r.Frames},
		Prosody: types.ProsodySummary{
			AveragePitch:     r.Prosody.AveragePitch,
			AverageIntensity: r.Prosody.AverageIntensity,
			MaxIntensity:     r.Prosody.MaxIntensity,
			Duration:         r.Prosody.Duration,
			SpeechRate:       r.Prosody.SpeechRate,
		},
	}
	for _, t := range r.FrameTimes {
		af.Features.Timestamps = append(af.Features.Timestamps, seconds(t))
	}

	s := r.Signals
	if s == nil {
		return af, nil
	}
	sig := &types.AudioSignals{
		CountDuration: seconds(s.CountDuration),
		MaddCounts:    s.MaddCounts,
		GhunnahCounts: s.GhunnahCounts,
		Echo:          s.Echo,
		Clarity:       s.Clarity,
		Pitch:         s.Pitch,
	}
	for _, seg := range s.Segments {
		sig.Segments = append(sig.Segments, types.Segment{
			Position: seg.Position,
			Start:    seconds(seg.Start),
			End:      seconds(seg.End),
			Counts:   seg.Counts,
		})
	}
	if len(s.Weights) > 0 {
		sig.Weights = make(map[int]types.Weight, len(s.Weights))
		for pos, w := range s.Weights {
			switch types.Weight(w) {
			case types.WeightHeavy, types.WeightLight:
				sig.Weights[pos] = types.Weight(w)
			default:
				return types.AcousticFeatures{}, fmt.Errorf("unknown weight %q at position %d", w, pos)
			}
		}
	}
	for pos, c := range s.Clarity {
		if c < 0 || c > 1 {
			return types.AcousticFeatures{}, fmt.Errorf("clarity %v at position %d outside [0,1]", c, pos)
		}
	}
	af.Signals = sig
	return af, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Package types defines the shared types used across all tartil packages.
//
// These types form the lingua franca between the external collaborators
// (ASR, feature extraction), the analysis components, and the score fusion
// stage. They are intentionally minimal; each package defines its own
// domain types, but cross-cutting data structures live here to avoid
// circular imports.
package types

import "time"

// Audio is a single recording handed to an external collaborator. PCM is
// 16-bit signed little-endian audio; analysis components never touch it.
type Audio struct {
	// PCM audio data.
	PCM []byte

	// SampleRate in Hz (16000 for most ASR backends).
	SampleRate int

	// Channels: 1 for mono.
	Channels int
}

// Duration returns the playback length of the audio. Returns 0 when the
// format fields are unset.
func (a Audio) Duration() time.Duration {
	bytesPerSec := a.SampleRate * a.Channels * 2
	if bytesPerSec <= 0 {
		return 0
	}
	return time.Duration(len(a.PCM)) * time.Second / time.Duration(bytesPerSec)
}

// FeatureSequence is an ordered sequence of D-dimensional acoustic feature
// vectors (e.g. MFCC frames). Order is significant.
type FeatureSequence struct {
	// Vectors holds one feature vector per frame.
	Vectors [][]float64 `json:"vectors"`

	// Timestamps optionally marks each frame's offset from the start of the
	// recording. When set it must have the same length as Vectors.
	Timestamps []time.Duration `json:"timestamps,omitempty"`
}

// Len returns the number of frames.
func (s FeatureSequence) Len() int { return len(s.Vectors) }

// Transcript represents a speech-to-text result from an ASR collaborator.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string `json:"text"`

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64 `json:"confidence,omitempty"`

	// Words contains per-word detail when available.
	// May be nil for providers that don't support word-level output.
	Words []WordDetail `json:"words,omitempty"`

	// Language is the language the provider detected or was asked for.
	Language string `json:"language,omitempty"`

	// Duration is the length of the transcribed audio.
	Duration time.Duration `json:"duration,omitempty"`
}

// WordDetail holds per-word metadata from ASR providers that support it.
type WordDetail struct {
	Word       string        `json:"word"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Confidence float64       `json:"confidence"`
}

// ProsodySummary holds suprasegmental statistics of one recording. Any
// field may be nil when the extractor could not compute it.
type ProsodySummary struct {
	AveragePitch     *float64 `json:"averagePitch,omitempty"`
	AverageIntensity *float64 `json:"averageIntensity,omitempty"`
	MaxIntensity     *float64 `json:"maxIntensity,omitempty"`
	Duration         *float64 `json:"duration,omitempty"`
	SpeechRate       *float64 `json:"speechRate,omitempty"`
}

// Prosody feature names as they appear in similarity maps.
const (
	FeatureAveragePitch     = "averagePitch"
	FeatureAverageIntensity = "averageIntensity"
	FeatureMaxIntensity     = "maxIntensity"
	FeatureDuration         = "duration"
	FeatureSpeechRate       = "speechRate"
)

// Features returns the present features keyed by name. Absent features are
// not included.
func (p ProsodySummary) Features() map[string]float64 {
	out := make(map[string]float64, 5)
	add := func(name string, v *float64) {
		if v != nil {
			out[name] = *v
		}
	}
	add(FeatureAveragePitch, p.AveragePitch)
	add(FeatureAverageIntensity, p.AverageIntensity)
	add(FeatureMaxIntensity, p.MaxIntensity)
	add(FeatureDuration, p.Duration)
	add(FeatureSpeechRate, p.SpeechRate)
	return out
}

// AcousticFeatures is everything the feature-extraction collaborator
// produces for one recording.
type AcousticFeatures struct {
	Features FeatureSequence `json:"features"`
	Prosody  ProsodySummary  `json:"prosody"`
	Signals  *AudioSignals   `json:"signals,omitempty"`
}

// Weight is a formant-derived heavy/light classification of a letter.
type Weight string

const (
	WeightHeavy Weight = "heavy"
	WeightLight Weight = "light"
)

// Segment is the measured realisation of the letter at Position (a rune
// index into the reference text).
type Segment struct {
	Position int           `json:"position"`
	Start    time.Duration `json:"start"`
	End      time.Duration `json:"end"`

	// Counts is the measured length in rhythmic counts. When zero it is
	// derived from End-Start and AudioSignals.CountDuration.
	Counts float64 `json:"counts,omitempty"`
}

// AudioSignals carries optional timing, pitch and articulation evidence used
// by Tajweed timing checks. Every field is optional; detectors fall back to
// advisories or skip the check when the evidence they need is missing.
type AudioSignals struct {
	// Segments maps letters of the reference text to measured time ranges.
	Segments []Segment `json:"segments,omitempty"`

	// CountDuration is the length of one rhythmic count for this recitation.
	CountDuration time.Duration `json:"countDuration,omitempty"`

	// MaddCounts and GhunnahCounts are recording-wide fallbacks used when no
	// per-letter segment is available.
	MaddCounts    *float64 `json:"maddCounts,omitempty"`
	GhunnahCounts *float64 `json:"ghunnahCounts,omitempty"`

	// Echo reports, per position, whether a qalqalah bounce was heard.
	Echo map[int]bool `json:"echo,omitempty"`

	// Weights reports, per position, the heavy/light classification.
	Weights map[int]Weight `json:"weights,omitempty"`

	// Clarity reports, per position, an articulation clarity score in [0,1].
	Clarity map[int]float64 `json:"clarity,omitempty"`

	// Pitch is the frame-level fundamental frequency track in Hz.
	Pitch []float64 `json:"pitch,omitempty"`
}

// Segment returns the measured segment for position, if any.
func (s *AudioSignals) Segment(position int) (Segment, bool) {
	if s == nil {
		return Segment{}, false
	}
	for _, seg := range s.Segments {
		if seg.Position == position {
			return seg, true
		}
	}
	return Segment{}, false
}

// CountsAt returns the measured length in counts of the letter at position.
// ok is false when neither Counts nor a usable time range is known.
func (s *AudioSignals) CountsAt(position int) (counts float64, ok bool) {
	seg, found := s.Segment(position)
	if !found {
		return 0, false
	}
	if seg.Counts > 0 {
		return seg.Counts, true
	}
	if s.CountDuration > 0 && seg.End > seg.Start {
		return float64(seg.End-seg.Start) / float64(s.CountDuration), true
	}
	return 0, false
}

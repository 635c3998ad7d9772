// Package audio prepares recordings for the external collaborators: it
// decodes and encodes 16-bit PCM WAV files and converts recordings to the
// mono 16 kHz format that ASR and feature-extraction backends expect.
package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/MrWong99/tartil/pkg/types"
)

// Format describes the sample rate and channel count of a recording.
type Format struct {
	SampleRate int
	Channels   int
}

// SpeechFormat is what the collaborators are fed: 16 kHz mono.
var SpeechFormat = Format{SampleRate: 16000, Channels: 1}

// String returns a human-readable form such as "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// FormatOf returns the format of a.
func FormatOf(a types.Audio) Format {
	return Format{SampleRate: a.SampleRate, Channels: a.Channels}
}

// Normalize converts a to mono at target.SampleRate. Recordings already in
// the target format are returned unchanged. Channels are mixed down before
// resampling so only one channel is interpolated.
func Normalize(a types.Audio, target Format) (types.Audio, error) {
	if len(a.PCM)%2 != 0 {
		return types.Audio{}, fmt.Errorf("audio: odd byte count %d in 16-bit PCM", len(a.PCM))
	}
	if a.SampleRate <= 0 || a.Channels <= 0 {
		return types.Audio{}, fmt.Errorf("audio: invalid format %s", FormatOf(a))
	}
	if target.Channels != 1 {
		return types.Audio{}, fmt.Errorf("audio: unsupported target format %s", target)
	}
	if FormatOf(a) == target {
		return a, nil
	}

	slog.Debug("audio: converting recording", "from", FormatOf(a), "to", target)

	pcm := a.PCM
	if a.Channels > 1 {
		pcm = Downmix(pcm, a.Channels)
	}
	pcm = ResampleMono16(pcm, a.SampleRate, target.SampleRate)
	return types.Audio{PCM: pcm, SampleRate: target.SampleRate, Channels: 1}, nil
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
func StereoToMono(pcm []byte) []byte { return Downmix(pcm, 2) }

// Downmix averages the interleaved channels of each frame into one mono
// sample. Uses int32 arithmetic to prevent overflow and clamps to the int16
// range.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := channels * 2
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			j := i*frameBytes + ch*2
			sum += int32(int16(pcm[j]) | int16(pcm[j+1])<<8)
		}
		avg := sum / int32(channels)

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If srcRate ==
// dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// Float32 converts 16-bit signed little-endian PCM to float32 samples in
// [-1, 1]. A trailing odd byte is ignored.
func Float32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

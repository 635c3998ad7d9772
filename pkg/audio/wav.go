package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MrWong99/tartil/pkg/types"
)

const bitsPerSample = 16

// ErrUnsupportedWAV is returned by [DecodeWAV] for anything but
// uncompressed 16-bit PCM.
var ErrUnsupportedWAV = errors.New("audio: only 16-bit PCM WAV is supported")

// EncodeWAV wraps the PCM data of a in a standard RIFF/WAV container,
// suitable for direct inclusion in a multipart form upload.
func EncodeWAV(a types.Audio) []byte {
	bps := bitsPerSample
	byteRate := a.SampleRate * a.Channels * bps / 8
	blockAlign := a.Channels * bps / 8
	dataSize := len(a.PCM)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                   // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                    // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(a.Channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(a.SampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))     // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))   // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))          // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], a.PCM)

	return buf
}

// DecodeWAV reads a RIFF/WAV stream holding 16-bit PCM. Chunks other than
// "fmt " and "data" (LIST, fact, ...) are skipped.
func DecodeWAV(r io.Reader) (types.Audio, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return types.Audio{}, fmt.Errorf("audio: read wav header: %w", err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return types.Audio{}, errors.New("audio: not a RIFF/WAVE stream")
	}

	var (
		a      types.Audio
		gotFmt bool
	)
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return types.Audio{}, fmt.Errorf("audio: read wav chunk: %w", err)
		}
		id := string(ch[0:4])
		size := int64(binary.LittleEndian.Uint32(ch[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return types.Audio{}, fmt.Errorf("audio: fmt chunk of %d bytes", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return types.Audio{}, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != 1 || bits != bitsPerSample {
				return types.Audio{}, fmt.Errorf("%w (format %d, %d bits)", ErrUnsupportedWAV, format, bits)
			}
			a.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			a.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			gotFmt = true
		case "data":
			if !gotFmt {
				return types.Audio{}, errors.New("audio: data chunk before fmt chunk")
			}
			var pcm bytes.Buffer
			if _, err := io.CopyN(&pcm, r, size); err != nil {
				return types.Audio{}, fmt.Errorf("audio: read data chunk: %w", err)
			}
			a.PCM = pcm.Bytes()
			return a, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size); err != nil {
				return types.Audio{}, fmt.Errorf("audio: skip %q chunk: %w", id, err)
			}
		}
		// Chunks are word aligned.
		if size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return types.Audio{}, fmt.Errorf("audio: skip chunk padding: %w", err)
			}
		}
	}
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) (types.Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Audio{}, fmt.Errorf("audio: %w", err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

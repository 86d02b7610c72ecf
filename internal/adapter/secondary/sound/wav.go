// Package sound plays ringtones.
package sound

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"strings"
)

const (
	// Output format of every player in this package.
	sampleRate   = 44100
	channelCount = 2

	formatPCM = 1
)

// ErrUnsupportedFormat is returned for WAV files that are not 8/16-bit PCM.
var ErrUnsupportedFormat = errors.New("unsupported WAV format")

// wavFormat holds WAV file format information
type wavFormat struct {
	AudioFormat int
	SampleRate  int
	Channels    int
	BitDepth    int
}

// parseWAV parses a RIFF/WAVE file and returns the format and the raw sample data.
func parseWAV(data []byte) (wavFormat, []byte, error) {
	var format wavFormat
	r := bytes.NewReader(data)

	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return format, nil, fmt.Errorf("read header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return format, nil, errors.New("not a RIFF/WAVE file")
	}

	haveFmt := false
	for {
		var id [4]byte
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return format, nil, errors.New("no data chunk")
		}
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return format, nil, fmt.Errorf("read chunk size: %w", err)
		}

		switch string(id[:]) {
		case "fmt ":
			var f struct {
				AudioFormat   uint16
				Channels      uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if size < 16 {
				return format, nil, errors.New("short fmt chunk")
			}
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return format, nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			format = wavFormat{
				AudioFormat: int(f.AudioFormat),
				SampleRate:  int(f.SampleRate),
				Channels:    int(f.Channels),
				BitDepth:    int(f.BitsPerSample),
			}
			haveFmt = true
			if _, err := r.Seek(int64(size-16)+int64(size&1), io.SeekCurrent); err != nil {
				return format, nil, err
			}
		case "data":
			if !haveFmt {
				return format, nil, errors.New("data chunk before fmt chunk")
			}
			n := int(size)
			if n > r.Len() {
				n = r.Len()
			}
			samples := make([]byte, n)
			if _, err := io.ReadFull(r, samples); err != nil {
				return format, nil, fmt.Errorf("read data chunk: %w", err)
			}
			return format, samples, nil
		default:
			if _, err := r.Seek(int64(size)+int64(size&1), io.SeekCurrent); err != nil {
				return format, nil, err
			}
		}
	}
}

// toOutput converts PCM samples to 44.1 kHz stereo signed 16-bit little endian.
// Other rates are resampled by nearest neighbour.
func toOutput(format wavFormat, samples []byte) ([]byte, error) {
	if format.AudioFormat != formatPCM || format.Channels < 1 || format.Channels > 2 ||
		(format.BitDepth != 8 && format.BitDepth != 16) || format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: format=%d channels=%d bits=%d rate=%d",
			ErrUnsupportedFormat, format.AudioFormat, format.Channels, format.BitDepth, format.SampleRate)
	}

	width := format.BitDepth / 8
	frameSize := width * format.Channels
	frames := len(samples) / frameSize

	sample := func(frame, ch int) int16 {
		off := frame*frameSize + ch*width
		if width == 1 {
			return int16(int(samples[off])-128) << 8
		}
		return int16(binary.LittleEndian.Uint16(samples[off:]))
	}

	outFrames := int(int64(frames) * sampleRate / int64(format.SampleRate))
	out := make([]byte, outFrames*channelCount*2)
	for i := 0; i < outFrames; i++ {
		src := int(int64(i) * int64(format.SampleRate) / sampleRate)
		left := sample(src, 0)
		right := left
		if format.Channels == 2 {
			right = sample(src, 1)
		}
		binary.LittleEndian.PutUint16(out[i*4:], uint16(left))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(right))
	}
	return out, nil
}

// defaultTone synthesizes one cycle of the built-in ringtone: two short
// 880 Hz beeps followed by silence.
func defaultTone() []byte {
	const (
		freq      = 880.0
		amplitude = 0.35 * math.MaxInt16
	)
	beep := sampleRate * 15 / 100
	gap := sampleRate * 10 / 100
	tail := sampleRate * 50 / 100
	total := 2*beep + gap + tail

	out := make([]byte, total*channelCount*2)
	for i := 0; i < total; i++ {
		inBeep := i < beep || (i >= beep+gap && i < 2*beep+gap)
		var v int16
		if inBeep {
			v = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
		}
		binary.LittleEndian.PutUint16(out[i*4:], uint16(v))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(v))
	}
	return out
}

// resolvePath maps a ringtone reference to a local file path.
// The empty string and "default" resolve to "" (use the built-in tone).
func resolvePath(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "default" {
		return "", nil
	}
	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("parse ringtone %q: %w", ref, err)
		}
		if u.Scheme != "file" {
			return "", fmt.Errorf("ringtone scheme %q is not playable", u.Scheme)
		}
		return u.Path, nil
	}
	return ref, nil
}

// loadRingtone returns output-format PCM for ref.
func loadRingtone(ref string) ([]byte, error) {
	path, err := resolvePath(ref)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return defaultTone(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ringtone: %w", err)
	}
	format, samples, err := parseWAV(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return toOutput(format, samples)
}

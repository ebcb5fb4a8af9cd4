// Package audio turns synthesized speech payloads into playable clips and back.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/MegaGrindStone/talkback/internal/models"
	"github.com/zaf/g711"
)

// Payload formats understood by Decode.
const (
	FormatWAV   = "wav"
	FormatPCM   = "pcm"
	FormatMulaw = "mulaw"
	FormatMP3   = "mp3"
)

// DefaultSampleRate is the rate of raw PCM produced by the speech service.
const DefaultSampleRate = 24000

const wavHeaderSize = 44

// ErrMalformedAudio is returned when a payload cannot be turned into a clip.
var ErrMalformedAudio = errors.New("malformed audio")

// Clip is decoded audio ready for a Player. PCM clips carry 16-bit little endian samples; opaque clips
// (compressed formats) carry the original bytes in Encoded.
type Clip struct {
	Format     string
	SampleRate int
	Channels   int
	PCM        []byte
	Encoded    []byte
}

// Bytes returns the clip in a container a player understands: WAV for PCM clips, the original bytes otherwise.
func (c Clip) Bytes() ([]byte, error) {
	if c.Encoded != nil {
		return c.Encoded, nil
	}
	return EncodeWAV(c.PCM, c.Channels, c.SampleRate)
}

// Decode turns a voice payload into a clip.
func Decode(p models.VoicePayload) (Clip, error) {
	if len(p.Data) == 0 {
		return Clip{}, fmt.Errorf("%w: empty payload", ErrMalformedAudio)
	}

	rate := p.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	switch p.Format {
	case FormatWAV:
		return ParseWAV(p.Data)
	case FormatPCM:
		if len(p.Data)%2 != 0 {
			return Clip{}, fmt.Errorf("%w: odd pcm length %d", ErrMalformedAudio, len(p.Data))
		}
		return Clip{Format: FormatPCM, SampleRate: rate, Channels: 1, PCM: p.Data}, nil
	case FormatMulaw:
		return Clip{Format: FormatPCM, SampleRate: rate, Channels: 1, PCM: MulawToPCM(p.Data)}, nil
	case FormatMP3:
		return Clip{Format: FormatMP3, Encoded: p.Data}, nil
	default:
		return Clip{}, fmt.Errorf("%w: unknown format %q", ErrMalformedAudio, p.Format)
	}
}

// PCMToMulaw compresses 16-bit PCM into G.711 µ-law.
func PCMToMulaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("PCM byte slice length must be even (16-bit samples)")
	}
	return g711.EncodeUlaw(pcm), nil
}

// MulawToPCM expands G.711 µ-law into 16-bit PCM.
func MulawToPCM(u []byte) []byte {
	return g711.DecodeUlaw(u)
}

// EncodeWAV wraps 16-bit little endian PCM into a WAV container.
func EncodeWAV(pcm []byte, channels, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("PCM data is empty")
	}
	if channels <= 0 || channels > 2 {
		return nil, errors.New("only mono (1) or stereo (2) channels supported")
	}
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if len(pcm)%(2*channels) != 0 {
		return nil, errors.New("PCM data length doesn't match channel count")
	}

	const (
		bitsPerSample  = 16
		audioFormatPCM = 1
		fmtChunkSize   = 16
	)
	blockAlign := channels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	_ = binary.Write(buf, binary.LittleEndian, uint16(audioFormatPCM))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// ParseWAV reads a 16-bit PCM WAV container. Chunks other than "fmt " and "data" are skipped.
func ParseWAV(data []byte) (Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrMalformedAudio)
	}

	clip := Clip{Format: FormatPCM}
	haveFmt := false
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		// Streaming encoders write 0 or 0xFFFFFFFF as the data size when the length is unknown.
		if id == "data" && (size == 0 || body+size > len(data)) {
			size = len(data) - body
		}
		if body+size > len(data) {
			return Clip{}, fmt.Errorf("%w: chunk %q overruns payload", ErrMalformedAudio, id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Clip{}, fmt.Errorf("%w: short fmt chunk", ErrMalformedAudio)
			}
			if format := binary.LittleEndian.Uint16(data[body : body+2]); format != 1 {
				return Clip{}, fmt.Errorf("%w: unsupported wav encoding %d", ErrMalformedAudio, format)
			}
			clip.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			if bits := binary.LittleEndian.Uint16(data[body+14 : body+16]); bits != 16 {
				return Clip{}, fmt.Errorf("%w: unsupported bit depth %d", ErrMalformedAudio, bits)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Clip{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrMalformedAudio)
			}
			clip.PCM = data[body : body+size]
			if clip.Channels <= 0 || clip.SampleRate <= 0 {
				return Clip{}, fmt.Errorf("%w: invalid fmt chunk", ErrMalformedAudio)
			}
			return clip, nil
		}

		pos = body + size + size%2
	}

	return Clip{}, fmt.Errorf("%w: no data chunk", ErrMalformedAudio)
}

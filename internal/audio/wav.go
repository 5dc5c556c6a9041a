package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
)

const DefaultSampleRate = 16000

// ErrEmpty is returned when there is no audio payload.
var ErrEmpty = errors.New("audio payload is empty")

type wavHeader struct {
	Riff          [4]byte
	ChunkSize     uint32
	Wave          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// EncodeWAVPCM16LE wraps raw PCM16LE mono samples in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	const channels, bits = 1, 16
	h := wavHeader{
		Riff:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + uint32(len(pcm)),
		Wave:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bits / 8),
		BlockAlign:    channels * bits / 8,
		BitsPerSample: bits,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// IsRawPCM reports whether mime names headerless 16-bit PCM.
func IsRawPCM(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "audio/pcm", "audio/l16", "audio/x-pcm", "audio/raw":
		return true
	}
	return false
}

// Prepare returns audio ready for upload to a transcriber. Raw PCM is
// wrapped as WAV; everything else passes through unchanged.
func Prepare(data []byte, mime string, sampleRate int) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmpty
	}
	if IsRawPCM(mime) && !IsWAV(data) {
		wav, err := EncodeWAVPCM16LE(data, sampleRate)
		if err != nil {
			return nil, "", err
		}
		return wav, "audio/wav", nil
	}
	if strings.TrimSpace(mime) == "" {
		if IsWAV(data) {
			mime = "audio/wav"
		} else {
			mime = "application/octet-stream"
		}
	}
	return data, mime, nil
}

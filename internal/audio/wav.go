package audio

import (
	"encoding/binary"

	"lumen/internal/domain"
)

const (
	wavHeaderSize = 44
	bitsPerSample = 16
)

// WAVEncoder wraps s16le PCM in a RIFF/WAVE container.
type WAVEncoder struct {
	SampleRate int
	Channels   int
}

func NewWAVEncoder(sampleRate int, channels int) WAVEncoder {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	if channels <= 0 {
		channels = defaultChannels
	}
	return WAVEncoder{SampleRate: sampleRate, Channels: channels}
}

// Encode never fails; an empty PCM slice yields a header-only file.
func (e WAVEncoder) Encode(pcm []byte) domain.AudioPayload {
	// odd trailing byte cannot form a sample
	dataSize := len(pcm) &^ 1
	blockAlign := e.Channels * bitsPerSample / 8

	out := make([]byte, wavHeaderSize+dataSize)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1)
	binary.LittleEndian.PutUint16(out[22:24], uint16(e.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(e.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(e.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))
	copy(out[wavHeaderSize:], pcm[:dataSize])

	return domain.AudioPayload{ContentType: domain.AudioContentType, Data: out}
}

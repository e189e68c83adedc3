package openai

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/florentcollect/flototext/pkg/audio"
)

// encodeWAV converts a float32 mono clip to a 16-bit PCM WAV file in memory.
// The transcription API requires a container format; a minimal 44-byte RIFF
// header is enough.
func encodeWAV(clip audio.Clip) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataSize := len(clip.Samples) * (bitsPerSample / 8)
	byteRate := clip.SampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(clip.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))

	for _, s := range clip.Samples {
		binary.Write(buf, binary.LittleEndian, float32ToPCM16(s))
	}
	return buf.Bytes()
}

// float32ToPCM16 converts one [-1, 1] sample to signed 16-bit, clamping
// out-of-range values instead of letting them wrap.
func float32ToPCM16(s float32) int16 {
	v := float64(s) * math.MaxInt16
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

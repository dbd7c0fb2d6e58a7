package client

import (
	"bytes"
	"encoding/binary"
)

// EncodeWAV wraps 16-bit mono PCM in a canonical 44-byte RIFF header.
func EncodeWAV(pcm []int16, sampleRate int) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(44 + 2*len(pcm))
	dataSize := uint32(len(pcm) * 2)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	binary.Write(buf, binary.LittleEndian, pcm)
	return buf.Bytes()
}

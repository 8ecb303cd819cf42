package audio

import (
	"encoding/binary"
	"errors"
)

// WAVHeaderSize is the size of the canonical PCM RIFF/WAVE header written by
// [EncodeWAV].
const WAVHeaderSize = 44

// Errors returned by [DecodeWAV].
var (
	ErrNotRIFF     = errors.New("audio: missing RIFF/WAVE header")
	ErrNoDataChunk = errors.New("audio: WAV missing data chunk")
)

// EncodeWAV wraps 16-bit PCM in a canonical 44-byte RIFF/WAVE header so that a
// generic player can consume it without side-channel metadata.
func EncodeWAV(pcm []byte, f Format) []byte {
	byteRate := f.SampleRate * f.Channels * BytesPerSample
	blockAlign := f.Channels * BytesPerSample
	dataSize := len(pcm)

	buf := make([]byte, WAVHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], BytesPerSample*8)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV walks the RIFF chunks of wav and returns the PCM payload and its
// format. Extra chunks (LIST, fact) are skipped. A data chunk whose declared
// size exceeds the buffer is truncated to what is available, which is what
// streaming servers emit when they write 0xFFFFFFFF as the size.
func DecodeWAV(wav []byte) ([]byte, Format, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotRIFF
	}

	f := Format{SampleRate: 22050, Channels: 1}
	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size >= 16 && body+16 <= len(wav) {
				f.Channels = int(binary.LittleEndian.Uint16(wav[body+2:]))
				f.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4:]))
			}
		case "data":
			end := body + size
			if size < 0 || end > len(wav) {
				end = len(wav)
			}
			return wav[body:end], f, nil
		}

		offset = body + size
		if size%2 != 0 {
			offset++
		}
	}
	return nil, Format{}, ErrNoDataChunk
}

package recorder

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"collator/internal/schema"
	"collator/pkg/exception"
)

// Frame layout, little endian:
//
//	magic[4] version[2] headerSize[2] type[2] schema[2] source[2] flags[2]
//	payloadLen[4] seq[8] tsEvent[8] tsRecv[8] traceID[8] reserved[4]
//	payload[payloadLen] crc32c(header+payload)[4]
const (
	frameVersion      uint16 = 1
	frameHeaderSize          = 56
	frameChecksumSize        = 4
	maxPayloadLen            = uint64(^uint32(0))
)

var (
	frameMagic = [4]byte{'W', 'A', 'L', '1'}
	crcTable   = crc32.MakeTable(crc32.Castagnoli)
)

func frameSize(payloadLen int) int64 {
	return int64(frameHeaderSize + payloadLen + frameChecksumSize)
}

// appendFrame appends one complete frame to dst.
func appendFrame(dst []byte, header schema.EventHeader, payload []byte) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, frameHeaderSize)...)
	h := dst[start:]

	copy(h[0:4], frameMagic[:])
	binary.LittleEndian.PutUint16(h[4:6], frameVersion)
	binary.LittleEndian.PutUint16(h[6:8], frameHeaderSize)
	binary.LittleEndian.PutUint16(h[8:10], uint16(header.Type))
	binary.LittleEndian.PutUint16(h[10:12], header.Version)
	binary.LittleEndian.PutUint16(h[12:14], header.Source)
	binary.LittleEndian.PutUint16(h[14:16], header.Flags)
	binary.LittleEndian.PutUint32(h[16:20], uint32(len(payload)))
	binary.LittleEndian.PutUint64(h[20:28], header.Seq)
	binary.LittleEndian.PutUint64(h[28:36], uint64(header.TsEvent))
	binary.LittleEndian.PutUint64(h[36:44], uint64(header.TsRecv))
	binary.LittleEndian.PutUint64(h[44:52], header.TraceID)

	dst = append(dst, payload...)
	sum := crc32.Checksum(dst[start:], crcTable)
	return binary.LittleEndian.AppendUint32(dst, sum)
}

func parseFrameHeader(src []byte) (schema.EventHeader, uint32, error) {
	if len(src) < frameHeaderSize {
		return schema.EventHeader{}, 0, exception.ErrWALHeaderSize
	}
	if !bytes.Equal(src[0:4], frameMagic[:]) {
		return schema.EventHeader{}, 0, exception.ErrWALInvalidMagic
	}
	if v := binary.LittleEndian.Uint16(src[4:6]); v != frameVersion {
		return schema.EventHeader{}, 0, exception.ErrWALRecordVersion
	}
	if size := binary.LittleEndian.Uint16(src[6:8]); size != frameHeaderSize {
		return schema.EventHeader{}, 0, exception.ErrWALHeaderSize
	}
	return schema.EventHeader{
		Type:    schema.EventType(binary.LittleEndian.Uint16(src[8:10])),
		Version: binary.LittleEndian.Uint16(src[10:12]),
		Source:  binary.LittleEndian.Uint16(src[12:14]),
		Flags:   binary.LittleEndian.Uint16(src[14:16]),
		Seq:     binary.LittleEndian.Uint64(src[20:28]),
		TsEvent: int64(binary.LittleEndian.Uint64(src[28:36])),
		TsRecv:  int64(binary.LittleEndian.Uint64(src[36:44])),
		TraceID: binary.LittleEndian.Uint64(src[44:52]),
	}, binary.LittleEndian.Uint32(src[16:20]), nil
}

func frameChecksum(header, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

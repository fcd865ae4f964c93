package sniff

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/mikey/ocr-spam-filter/internal/core"
)

// Info is the result of classifying raw attachment bytes
type Info struct {
	Format core.ImageFormat
	Width  int
	Height int
	// Extra is the PDF version string for PDF attachments
	Extra string
}

var (
	// ErrUnrecognized is returned when no magic-byte rule matches
	ErrUnrecognized = errors.New("unrecognized attachment format")
	// ErrTruncated is returned when a matched header is too short to
	// carry its dimension fields
	ErrTruncated = errors.New("truncated image header")
)

// Sniff classifies raw bytes into an image/document format and extracts
// dimensions from the format-specific header. It is side-effect-free.
// Rules are checked in priority order, first match wins.
func Sniff(data []byte) (Info, error) {
	switch {
	case bytes.HasPrefix(data, []byte("GIF")):
		return sniffGIF(data)
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		return sniffJPEG(data)
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return sniffPNG(data)
	case bytes.HasPrefix(data, []byte("BM")):
		return sniffBMP(data)
	case bytes.HasPrefix(data, []byte("II\x2A\x00")) || bytes.HasPrefix(data, []byte("MM\x00\x2A")):
		return sniffTIFF(data)
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return sniffPDF(data)
	default:
		return Info{Format: core.FormatUnknown}, ErrUnrecognized
	}
}

func sniffGIF(data []byte) (Info, error) {
	if len(data) < 10 {
		return Info{Format: core.FormatGIF}, ErrTruncated
	}
	return Info{
		Format: core.FormatGIF,
		Width:  int(binary.LittleEndian.Uint16(data[6:8])),
		Height: int(binary.LittleEndian.Uint16(data[8:10])),
	}, nil
}

// sniffJPEG walks the marker segments from offset 2 until it finds a
// start-of-frame marker; height and width sit after the segment length
// and precision byte. Running past the buffer without an SOF is an error.
func sniffJPEG(data []byte) (Info, error) {
	i := 2
	for i+9 <= len(data) {
		if data[i] != 0xFF {
			return Info{Format: core.FormatJPEG}, ErrTruncated
		}
		marker := data[i+1]
		if isSOF(marker) {
			return Info{
				Format: core.FormatJPEG,
				Height: int(binary.BigEndian.Uint16(data[i+5 : i+7])),
				Width:  int(binary.BigEndian.Uint16(data[i+7 : i+9])),
			}, nil
		}
		// Skip this segment: two marker bytes plus the length field,
		// which includes its own two bytes
		i += 2 + int(binary.BigEndian.Uint16(data[i+2:i+4]))
	}
	return Info{Format: core.FormatJPEG}, ErrTruncated
}

// isSOF reports whether a JPEG marker is a start-of-frame marker.
// 0xC4, 0xC8 and 0xCC are huffman/arithmetic table markers, not frames.
func isSOF(marker byte) bool {
	if marker < 0xC0 || marker > 0xCF {
		return false
	}
	return marker != 0xC4 && marker != 0xC8 && marker != 0xCC
}

func sniffPNG(data []byte) (Info, error) {
	if len(data) < 24 {
		return Info{Format: core.FormatPNG}, ErrTruncated
	}
	return Info{
		Format: core.FormatPNG,
		Width:  int(binary.BigEndian.Uint32(data[16:20])),
		Height: int(binary.BigEndian.Uint32(data[20:24])),
	}, nil
}

func sniffBMP(data []byte) (Info, error) {
	if len(data) < 26 {
		return Info{Format: core.FormatBMP}, ErrTruncated
	}
	return Info{
		Format: core.FormatBMP,
		Width:  int(binary.LittleEndian.Uint32(data[18:22])),
		Height: int(binary.LittleEndian.Uint32(data[22:26])),
	}, nil
}

// sniffTIFF reads the IFD offset word and entry count, then scans entries
// for tag 256 (height) and 257 (width), stopping once both are found.
// Falls back to 1x1 when neither tag resolves non-zero.
func sniffTIFF(data []byte) (Info, error) {
	var order binary.ByteOrder = binary.LittleEndian
	if data[0] == 'M' {
		order = binary.BigEndian
	}
	if len(data) < 8 {
		return Info{Format: core.FormatTIFF}, ErrTruncated
	}
	ifdOff := int(order.Uint32(data[4:8]))
	if ifdOff+2 > len(data) {
		return Info{Format: core.FormatTIFF}, ErrTruncated
	}
	count := int(order.Uint16(data[ifdOff : ifdOff+2]))

	width, height := 0, 0
	for n := 0; n < count; n++ {
		e := ifdOff + 2 + n*12
		if e+12 > len(data) {
			break
		}
		tag := order.Uint16(data[e : e+2])
		typ := order.Uint16(data[e+2 : e+4])
		var value int
		if typ == 3 { // SHORT, stored in the first half of the value word
			value = int(order.Uint16(data[e+8 : e+10]))
		} else {
			value = int(order.Uint32(data[e+8 : e+12]))
		}
		switch tag {
		case 256:
			height = value
		case 257:
			width = value
		}
		if width != 0 && height != 0 {
			break
		}
	}
	if width == 0 && height == 0 {
		width, height = 1, 1
	}
	return Info{Format: core.FormatTIFF, Width: width, Height: height}, nil
}

func sniffPDF(data []byte) (Info, error) {
	version := ""
	if len(data) >= 8 {
		version = string(data[5:8])
	}
	return Info{Format: core.FormatPDF, Extra: version}, nil
}

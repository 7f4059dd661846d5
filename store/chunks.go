package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// maxChunkLen is the largest chunk length allowed by the PNG format
const maxChunkLen = 1<<31 - 1

// Chunk types handled by this package
const (
	typeIHDR  = "IHDR"
	typeIEND  = "IEND"
	typeText  = "tEXt"
	typeZText = "zTXt"
	typeIText = "iTXt"
)

var errNotPNG = errors.New("not a png image")

type chunk struct {
	typ  string
	data []byte
}

// decodeChunks splits a PNG datastream into chunks, verifying the signature,
// every CRC and that the stream starts with IHDR and ends with IEND
func decodeChunks(data []byte) ([]chunk, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, errNotPNG
	}
	r := bytes.NewReader(data[len(pngSignature):])

	var chunks []chunk
	var header [8]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated chunk header: %v", errNotPNG, err)
		}
		length := binary.BigEndian.Uint32(header[:4])
		if length > maxChunkLen || int64(length) > int64(r.Len()) {
			return nil, fmt.Errorf("%w: chunk length %d out of range", errNotPNG, length)
		}
		typ := string(header[4:8])
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("%w: truncated %s chunk: %v", errNotPNG, typ, err)
		}
		var crc [4]byte
		if _, err := io.ReadFull(r, crc[:]); err != nil {
			return nil, fmt.Errorf("%w: missing %s crc: %v", errNotPNG, typ, err)
		}
		if binary.BigEndian.Uint32(crc[:]) != chunkCRC(typ, body) {
			return nil, fmt.Errorf("%w: %s chunk crc mismatch", errNotPNG, typ)
		}
		if len(chunks) == 0 && typ != typeIHDR {
			return nil, fmt.Errorf("%w: first chunk is %s", errNotPNG, typ)
		}
		chunks = append(chunks, chunk{typ: typ, data: body})
		if typ == typeIEND {
			return chunks, nil
		}
	}
}

// encodeChunks writes a PNG datastream
func encodeChunks(w io.Writer, chunks []chunk) error {
	if _, err := w.Write(pngSignature); err != nil {
		return err
	}
	var buf [4]byte
	for _, c := range chunks {
		binary.BigEndian.PutUint32(buf[:], uint32(len(c.data)))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
		if _, err := io.WriteString(w, c.typ); err != nil {
			return err
		}
		if _, err := w.Write(c.data); err != nil {
			return err
		}
		binary.BigEndian.PutUint32(buf[:], chunkCRC(c.typ, c.data))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

func chunkCRC(typ string, data []byte) uint32 {
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	return crc.Sum32()
}

// textKeyword returns the keyword of a tEXt, zTXt or iTXt chunk
func textKeyword(c chunk) (string, bool) {
	switch c.typ {
	case typeText, typeZText, typeIText:
	default:
		return "", false
	}
	i := bytes.IndexByte(c.data, 0)
	if i < 0 {
		return "", false
	}
	return string(c.data[:i]), true
}

// textValue decodes the text of a tEXt, zTXt or iTXt chunk
func textValue(c chunk) ([]byte, error) {
	i := bytes.IndexByte(c.data, 0)
	if i < 0 {
		return nil, fmt.Errorf("%s chunk without keyword separator", c.typ)
	}
	rest := c.data[i+1:]

	switch c.typ {
	case typeText:
		return bytes.Clone(rest), nil
	case typeZText:
		if len(rest) < 1 || rest[0] != 0 {
			return nil, fmt.Errorf("zTXt: unsupported compression method")
		}
		return inflate(rest[1:])
	case typeIText:
		// compression flag, method, language tag\0, translated keyword\0, text
		if len(rest) < 2 {
			return nil, fmt.Errorf("iTXt: truncated header")
		}
		compressed, method := rest[0], rest[1]
		rest = rest[2:]
		for range 2 {
			j := bytes.IndexByte(rest, 0)
			if j < 0 {
				return nil, fmt.Errorf("iTXt: truncated header")
			}
			rest = rest[j+1:]
		}
		if compressed == 0 {
			return bytes.Clone(rest), nil
		}
		if method != 0 {
			return nil, fmt.Errorf("iTXt: unsupported compression method")
		}
		return inflate(rest)
	default:
		return nil, fmt.Errorf("%s is not a text chunk", c.typ)
	}
}

// newTextChunk builds a tEXt chunk, or a zTXt chunk when compress is set
func newTextChunk(key string, value []byte, compress bool) (chunk, error) {
	var buf bytes.Buffer
	buf.WriteString(key)
	buf.WriteByte(0)
	if !compress {
		buf.Write(value)
		return chunk{typ: typeText, data: buf.Bytes()}, nil
	}
	buf.WriteByte(0) // compression method: deflate
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(value); err != nil {
		return chunk{}, err
	}
	if err := zw.Close(); err != nil {
		return chunk{}, err
	}
	return chunk{typ: typeZText, data: buf.Bytes()}, nil
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open zlib stream: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate text: %w", err)
	}
	return out, nil
}

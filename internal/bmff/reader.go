package bmff

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Reader is synchronous random access over the bytes being validated.
// ReadAt returns io.ErrUnexpectedEOF together with the available prefix when
// the range runs past Size, and ErrOutOfBounds when offset itself is invalid.
type Reader interface {
	Size() int64
	ReadAt(offset int64, n int) ([]byte, error)
}

var ErrOutOfBounds = errors.New("bmff: read out of bounds")

const minBlockSize = 1 << 20

// FileReader serves reads from a file through a single sliding buffer.
type FileReader struct {
	file      *os.File
	size      int64
	blockSize int
	buf       []byte
	bufStart  int64
	bufLen    int
}

// OpenFile opens path for validation.
func OpenFile(path string) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return NewFileReader(f, info.Size(), minBlockSize), nil
}

// NewFileReader wraps an open file of the given size.
func NewFileReader(f *os.File, size int64, blockSize int) *FileReader {
	if blockSize < minBlockSize {
		blockSize = minBlockSize
	}
	return &FileReader{file: f, size: size, blockSize: blockSize}
}

func (fr *FileReader) Size() int64 {
	return fr.size
}

func (fr *FileReader) Close() error {
	if fr.file == nil {
		return nil
	}
	err := fr.file.Close()
	fr.file = nil
	fr.buf = nil
	fr.bufLen = 0
	return err
}

func (fr *FileReader) grow(need int) {
	newSize := fr.blockSize
	for newSize < need {
		newSize *= 2
	}
	fr.blockSize = newSize
	fr.buf = make([]byte, fr.blockSize)
	fr.bufLen = 0
	fr.bufStart = 0
}

func (fr *FileReader) fill(offset int64, length int) error {
	if fr.file == nil {
		return os.ErrClosed
	}
	if length > fr.blockSize {
		fr.grow(length)
	}
	if fr.buf == nil {
		fr.buf = make([]byte, fr.blockSize)
	}
	if offset >= fr.bufStart && offset+int64(length) <= fr.bufStart+int64(fr.bufLen) {
		return nil
	}
	fr.bufStart = offset
	toRead := fr.blockSize
	if remain := fr.size - offset; int64(toRead) > remain {
		toRead = int(remain)
	}
	n, err := fr.file.ReadAt(fr.buf[:toRead], offset)
	fr.bufLen = n
	if err != nil && !errors.Is(err, io.EOF) {
		fr.bufLen = 0
		return err
	}
	return nil
}

// ReadAt returns a copy of n bytes at offset.
func (fr *FileReader) ReadAt(offset int64, n int) ([]byte, error) {
	if n < 0 || offset < 0 || offset > fr.size {
		return nil, fmt.Errorf("%w: offset %d length %d", ErrOutOfBounds, offset, n)
	}
	if n == 0 {
		return []byte{}, nil
	}
	want := n
	if remain := fr.size - offset; int64(want) > remain {
		want = int(remain)
	}
	if want == 0 {
		return []byte{}, io.ErrUnexpectedEOF
	}
	if err := fr.fill(offset, want); err != nil {
		return nil, err
	}
	start := int(offset - fr.bufStart)
	end := start + want
	if end > fr.bufLen {
		end = fr.bufLen
	}
	out := make([]byte, end-start)
	copy(out, fr.buf[start:end])
	if len(out) < n {
		return out, io.ErrUnexpectedEOF
	}
	return out, nil
}

// BytesReader serves reads from memory.
type BytesReader struct {
	data []byte
}

func NewBytesReader(b []byte) *BytesReader {
	return &BytesReader{data: b}
}

func (br *BytesReader) Size() int64 {
	return int64(len(br.data))
}

func (br *BytesReader) ReadAt(offset int64, n int) ([]byte, error) {
	if n < 0 || offset < 0 || offset > int64(len(br.data)) {
		return nil, fmt.Errorf("%w: offset %d length %d", ErrOutOfBounds, offset, n)
	}
	end := offset + int64(n)
	if end > int64(len(br.data)) {
		out := append([]byte(nil), br.data[offset:]...)
		return out, io.ErrUnexpectedEOF
	}
	return append([]byte{}, br.data[offset:end]...), nil
}

// readExact reads n bytes or fails.
func readExact(r Reader, offset int64, n int) ([]byte, error) {
	b, err := r.ReadAt(offset, n)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, io.ErrUnexpectedEOF
	}
	return b, nil
}

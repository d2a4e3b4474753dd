package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
)

// reader decodes big-endian class-file primitives from a stream.
type reader struct {
	r io.Reader
}

func (r *reader) u8() (uint8, error) {
	var v uint8
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

func (r *reader) u16() (uint16, error) {
	var v uint16
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

func (r *reader) u16pair() (uint16, uint16, error) {
	a, err := r.u16()
	if err != nil {
		return 0, 0, err
	}
	b, err := r.u16()
	return a, b, err
}

func (r *reader) u32() (uint32, error) {
	var v uint32
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

func (r *reader) u64() (uint64, error) {
	var v uint64
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

func (r *reader) bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// sliceReader walks an attribute payload already held in memory.
type sliceReader struct {
	data []byte
	off  int
	name string
}

func (s *sliceReader) need(n int) error {
	if s.off+n > len(s.data) {
		return fmt.Errorf("%s truncated at offset %d (need %d bytes, have %d)", s.name, s.off, n, len(s.data)-s.off)
	}
	return nil
}

func (s *sliceReader) u16() (uint16, error) {
	if err := s.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(s.data[s.off:])
	s.off += 2
	return v, nil
}

func (s *sliceReader) u32() (uint32, error) {
	if err := s.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(s.data[s.off:])
	s.off += 4
	return v, nil
}

func (s *sliceReader) bytes(n int) ([]byte, error) {
	if err := s.need(n); err != nil {
		return nil, err
	}
	v := s.data[s.off : s.off+n]
	s.off += n
	return v, nil
}

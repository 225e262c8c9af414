// Package filehandle wraps os.File and bufio.Writer with the surface the
// shard's index and content files need: open/close with access, share and
// buffering modes; positional and sequential reads and writes; zero-fill;
// resize; and a created flag.
package filehandle

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// OpenMode controls whether Open may create the file.
type OpenMode int

const (
	// ModeOpen requires the file to already exist.
	ModeOpen OpenMode = iota
	// ModeAlways creates the file if it does not exist.
	ModeAlways
)

// Access controls whether the handle may write.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
)

// Share documents the sharing intent a caller declares when opening a
// file. The store's own concurrency discipline is enforced entirely by
// the per-shard sync.RWMutex in package shard, not by OS-level mandatory
// locks — Go's standard library exposes no portable advisory-lock
// primitive. Share is therefore descriptive only.
type Share int

const (
	ShareFull Share = iota
	ShareExclusive
)

// Buffering selects whether sequential writes go through a bufio.Writer
// or straight to the kernel.
type Buffering int

const (
	BufferNone Buffering = iota
	BufferSequential
	BufferRandom
)

// writeBufferSize matches a typical Linux pipe buffer.
const writeBufferSize = 16 * 4096

// Handle is an open file plus a sequential write buffer, a created flag,
// and a running write position for Write/Tell.
type Handle struct {
	file      *os.File
	writer    *bufio.Writer
	buffering Buffering
	created   bool
	pos       int64
}

// Open opens path under the given mode/access/share/buffering. created
// reports whether this call created a new file (ModeAlways and the file
// did not previously exist).
func Open(path string, mode OpenMode, access Access, share Share, buffering Buffering) (*Handle, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	var flags int
	switch access {
	case AccessWrite:
		flags = os.O_RDWR
	default:
		flags = os.O_RDONLY
	}
	if mode == ModeAlways {
		flags |= os.O_CREATE
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		file:      file,
		buffering: buffering,
		created:   mode == ModeAlways && !existed,
	}
	if buffering == BufferSequential {
		h.writer = bufio.NewWriterSize(file, writeBufferSize)
	}

	// Write handles start positioned at end-of-file so that sequential
	// Write calls append. Read-only handles start at the beginning for
	// sequential scans.
	if access == AccessWrite {
		pos, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			file.Close()
			return nil, err
		}
		h.pos = pos
	}

	return h, nil
}

// Created reports whether Open created a new file.
func (h *Handle) Created() bool {
	return h.created
}

// Read reads up to len(buf) bytes sequentially from the handle's current
// position, advancing it.
func (h *Handle) Read(buf []byte) (int, error) {
	n, err := h.file.ReadAt(buf, h.pos)
	h.pos += int64(n)
	return n, err
}

// ReadAt reads exactly len(buf) bytes at offset.
func (h *Handle) ReadAt(offset int64, buf []byte) (int, error) {
	return io.ReadFull(io.NewSectionReader(h.file, offset, 1<<62), buf)
}

// ReadUint64At reads a little-endian uint64 at offset, a convenience for
// fixed-width index fields.
func (h *Handle) ReadUint64At(offset int64) (uint64, error) {
	var buf [8]byte
	if _, err := h.ReadAt(offset, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Write appends buf at the handle's current position, buffering it if
// the handle was opened with BufferSequential; buffered bytes reach the
// file on Flush.
func (h *Handle) Write(buf []byte) (int, error) {
	var n int
	var err error
	if h.writer != nil {
		n, err = h.writer.Write(buf)
	} else {
		n, err = h.file.WriteAt(buf, h.pos)
	}
	h.pos += int64(n)
	return n, err
}

// Tell returns the handle's current logical write position.
func (h *Handle) Tell() int64 {
	return h.pos
}

// Size returns the file's current size on disk. Buffered-but-unflushed
// bytes are not reflected until Flush is called.
func (h *Handle) Size() (int64, error) {
	fi, err := h.file.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Resize truncates (or extends with a zero-filled hole) the file to n
// bytes.
func (h *Handle) Resize(n int64) error {
	if err := h.Flush(); err != nil {
		return err
	}
	if err := h.file.Truncate(n); err != nil {
		return err
	}
	if h.pos > n {
		h.pos = n
	}
	return nil
}

// zeroChunkSize bounds the buffer Zero reuses per write.
const zeroChunkSize = 64 * 1024

// Zero overwrites [offset, offset+n) with zero bytes, used by the
// shard's thorough erase.
func (h *Handle) Zero(offset, n int64) error {
	if n <= 0 {
		return nil
	}
	buf := make([]byte, zeroChunkSize)
	for remaining := n; remaining > 0; {
		chunk := int64(len(buf))
		if remaining < chunk {
			chunk = remaining
		}
		if _, err := h.file.WriteAt(buf[:chunk], offset); err != nil {
			return fmt.Errorf("filehandle: zero at %d: %w", offset, err)
		}
		offset += chunk
		remaining -= chunk
	}
	return nil
}

// Flush pushes any buffered sequential writes to the kernel, without
// forcing an fsync.
func (h *Handle) Flush() error {
	if h.writer != nil {
		return h.writer.Flush()
	}
	return nil
}

// Sync commits the file's contents to stable storage. Flush should
// precede it.
func (h *Handle) Sync() error {
	return h.file.Sync()
}

// Close flushes and closes the underlying file.
func (h *Handle) Close() error {
	flushErr := h.Flush()
	closeErr := h.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Name returns the path the handle was opened with.
func (h *Handle) Name() string {
	return h.file.Name()
}

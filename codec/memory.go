package codec

import (
	"encoding/binary"
	"sync"

	"github.com/tetratelabs/wazero/api"

	hostbridge "github.com/wippyai/wasm-hostbridge"
	"github.com/wippyai/wasm-hostbridge/errors"
)

// WrapMemory adapts a wazero api.Memory to hostbridge.Memory.
func WrapMemory(mem api.Memory) hostbridge.Memory {
	if mem == nil {
		return nil
	}
	return &Wrapper{Mem: mem}
}

// Wrapper adapts wazero api.Memory to the hostbridge.Memory interface.
type Wrapper struct {
	Mem api.Memory
}

// Read returns a copy of length bytes at offset.
func (m *Wrapper) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseCodec, offset, length)
	}
	// wazero returns a view; the guest may overwrite it on its next call.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write writes bytes to memory.
func (m *Wrapper) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseCodec, offset, uint32(len(data)))
	}
	return nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *Wrapper) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.Mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseCodec, offset, 4)
	}
	return v, nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *Wrapper) WriteU32(offset uint32, value uint32) error {
	if !m.Mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseCodec, offset, 4)
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *Wrapper) Size() uint32 {
	return m.Mem.Size()
}

// Buffer is a fixed-size in-process Memory. Embedders use it to call bridge
// operations without a guest.
type Buffer struct {
	data []byte
	mu   sync.RWMutex
}

// NewBuffer allocates a zeroed Buffer of size bytes.
func NewBuffer(size uint32) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

func (b *Buffer) span(offset, length uint32) (uint64, bool) {
	end := uint64(offset) + uint64(length)
	return end, end <= uint64(len(b.data))
}

// Read returns a copy of length bytes at offset.
func (b *Buffer) Read(offset uint32, length uint32) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	end, ok := b.span(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseCodec, offset, length)
	}
	out := make([]byte, length)
	copy(out, b.data[offset:end])
	return out, nil
}

// Write copies data to offset.
func (b *Buffer) Write(offset uint32, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.span(offset, uint32(len(data))); !ok {
		return errors.OutOfBounds(errors.PhaseCodec, offset, uint32(len(data)))
	}
	copy(b.data[offset:], data)
	return nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (b *Buffer) ReadU32(offset uint32) (uint32, error) {
	data, err := b.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (b *Buffer) WriteU32(offset uint32, value uint32) error {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], value)
	return b.Write(offset, tmp[:])
}

// Size returns the buffer length in bytes.
func (b *Buffer) Size() uint32 {
	return uint32(len(b.data))
}

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

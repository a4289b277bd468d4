// Package codec moves UTF-8 text and handle lists across the guest boundary
// through the guest's linear memory.
package codec

import (
	"encoding/binary"
	"math"

	hostbridge "github.com/wippyai/wasm-hostbridge"
	"github.com/wippyai/wasm-hostbridge/errors"
)

// Decode reads length bytes at offset as UTF-8. Invalid sequences are kept
// as-is; Go strings carry arbitrary bytes and script engines replace them
// on conversion.
func Decode(mem hostbridge.Memory, offset, length uint32) (string, error) {
	if length == 0 {
		return "", nil
	}
	data, err := mem.Read(offset, length)
	if err != nil {
		return "", errors.Wrap(errors.PhaseCodec, errors.KindOutOfBounds, err, "decode string")
	}
	return string(data), nil
}

// Encode writes text at offset if its UTF-8 encoding fits in capacity bytes
// and returns the number of bytes written. When it does not fit nothing is
// written and the negated required length is returned.
func Encode(mem hostbridge.Memory, text string, offset, capacity uint32) (int32, error) {
	required := len(text)
	if required > math.MaxInt32 {
		return 0, errors.InvalidInput(errors.PhaseCodec, "string longer than 2 GiB")
	}
	if uint64(capacity) < uint64(required) {
		return -int32(required), nil
	}
	if required == 0 {
		return 0, nil
	}
	if err := mem.Write(offset, []byte(text)); err != nil {
		return 0, errors.Wrap(errors.PhaseCodec, errors.KindOutOfBounds, err, "encode string")
	}
	return int32(required), nil
}

// EncodeU32s writes up to capacity values as little-endian u32s starting at
// offset and returns how many were written. Values past capacity are
// dropped without error.
func EncodeU32s(mem hostbridge.Memory, values []uint32, offset, capacity uint32) (uint32, error) {
	n := uint32(len(values))
	if n > capacity {
		n = capacity
	}
	if n == 0 {
		return 0, nil
	}
	if uint64(offset)+uint64(n)*4 > math.MaxUint32 {
		return 0, errors.OutOfBounds(errors.PhaseCodec, offset, n*4)
	}
	buf := make([]byte, n*4)
	for i := uint32(0); i < n; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], values[i])
	}
	if err := mem.Write(offset, buf); err != nil {
		return 0, errors.Wrap(errors.PhaseCodec, errors.KindOutOfBounds, err, "encode u32 list")
	}
	return n, nil
}

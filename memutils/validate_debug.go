//go:build debug_mem_utils

package memutils

import "encoding/binary"

const (
	// DebugMargin is the number of bytes of debug data written into the reserved tail of every block
	// managed by memutils consumers
	DebugMargin int = 16
	// corruptionDetectionMagicValue is a 4-byte pattern that is copied across the debug margin
	corruptionDetectionMagicValue uint32 = 0x7F84E666
)

// WriteMagicValue writes an easy-to-identify marker across DebugMargin bytes of data starting at offset.
// This method no-ops unless the debug_mem_utils build tag is present.
func WriteMagicValue(data []byte, offset int) {
	dest := data[offset : offset+DebugMargin]
	for i := 0; i < DebugMargin; i += 4 {
		binary.LittleEndian.PutUint32(dest[i:], corruptionDetectionMagicValue)
	}
}

// ValidateMagicValue verifies that the easy-to-identify marker written by WriteMagicValue is still present.
// It returns true if the value is still present and false otherwise.
// This method always returns true unless the debug_mem_utils build tag is present.
func ValidateMagicValue(data []byte, offset int) bool {
	if offset < 0 || offset+DebugMargin > len(data) {
		return false
	}

	source := data[offset : offset+DebugMargin]
	for i := 0; i < DebugMargin; i += 4 {
		if binary.LittleEndian.Uint32(source[i:]) != corruptionDetectionMagicValue {
			return false
		}
	}

	return true
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}

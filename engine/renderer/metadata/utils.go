package metadata

/**
 * @brief A range of device memory.
 */
type MemoryRange struct {
	/** @brief The Offset in bytes. */
	Offset uint64
	/** @brief The size in bytes. */
	Size uint64
}

func (r MemoryRange) End() uint64 {
	return r.Offset + r.Size
}

func GetAlignedRange(offset, size, granularity uint64) *MemoryRange {
	m := &MemoryRange{
		Offset: GetAligned(offset, granularity),
		Size:   GetAligned(size, granularity),
	}
	return m
}

// GetAligned rounds operand up to a multiple of granularity, which must be a
// power of two. A granularity of zero leaves operand unchanged.
func GetAligned(operand, granularity uint64) uint64 {
	if granularity == 0 {
		return operand
	}
	val := (operand + (granularity - 1)) &^ (granularity - 1)
	return val
}

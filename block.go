package blocksum

// Block is one contiguous span of the input. Payload is at most the configured
// block size; only the final block may be shorter. A Block is owned by exactly
// one worker once received, and its Payload is recycled after hashing.
type Block struct {
	Seq     uint64
	Payload []byte
}

// Result pairs a block's sequence number with its digest.
type Result struct {
	Seq    uint64
	Digest Digest
}

// BlockCount returns ceil(size/blockSize): the number of blocks, and therefore
// output lines, for an input of size bytes. An empty input has zero blocks.
func BlockCount(size int64, blockSize int) uint64 {
	if size <= 0 || blockSize <= 0 {
		return 0
	}
	bs := int64(blockSize)
	n := size / bs
	if size%bs != 0 {
		n++
	}
	return uint64(n)
}

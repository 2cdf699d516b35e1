package protocol

// Records is a batch of TLV records, the unit every feed/drain interface
// in recast deals in. Keeping ops as opaque blobs rather than structs lets
// batches be stored, hashed and relayed without re-encoding.
type Records [][]byte

func (recs Records) TotalLen() (total int64) {
	for _, r := range recs {
		total += int64(len(r))
	}
	return
}

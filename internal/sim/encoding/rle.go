// Package encoding holds the run-length codec snapshots use for voxel
// layers. Chunk layers are long runs of identical values (air, stone), so
// RLE plus varints shrinks them by orders of magnitude before compression
// even starts.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeRLE encodes a sequence of voxel words into base64(varint pairs).
// The pairs are (value, run_len) repeated.
func EncodeRLE(words []uint32) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(words) {
		w := words[i]
		run := 1
		for j := i + 1; j < len(words) && words[j] == w && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(w))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. want is the expected word count; a stream
// decoding to any other length is corrupt.
func DecodeRLE(b64 string, want int) ([]uint32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, want)
	for i := 0; i < len(raw); {
		w, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if w > 0xFFFFFFFF {
			return nil, fmt.Errorf("voxel word too large: %d", w)
		}
		if len(out)+int(run) > want {
			return nil, fmt.Errorf("run overflows expected length %d", want)
		}
		for k := 0; k < int(run); k++ {
			out = append(out, uint32(w))
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("decoded %d words, want %d", len(out), want)
	}
	return out, nil
}

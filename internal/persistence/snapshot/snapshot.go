// Package snapshot persists chunk voxel data to disk. A snapshot is a
// zstd-compressed file with a one-line JSON header (readable with zstdcat
// for quick inspection) followed by a gob body. Voxel layers travel
// run-length encoded; zstd then squeezes the remaining structure.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"voxelforge.dev/internal/sim/encoding"
	"voxelforge.dev/internal/voxel/chunk"
	"voxelforge.dev/internal/voxel/grid"
)

const chunkWords = int(grid.Size * grid.Size * grid.Size)

type Header struct {
	Version     int    `json:"version"`
	WorldID     string `json:"world_id"`
	CreatedUnix int64  `json:"created_unix"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed         int64   `json:"seed"`
	DefaultBlock BlockV1 `json:"default_block"`

	Chunks []ChunkV1 `json:"chunks"`
}

type BlockV1 struct {
	Transparency uint8  `json:"transparency"`
	ModelID      uint32 `json:"model_id"`
	ModelRot     uint8  `json:"model_rot"`
}

// ChunkV1 carries one chunk's layers as separate RLE streams. Layers
// compress far better apart than interleaved: transparency is almost
// always two long runs, rotations almost always one.
type ChunkV1 struct {
	Pos   [3]int32 `json:"pos"`
	Flags uint32   `json:"flags"`

	Transparency string `json:"transparency"`
	ModelIDs     string `json:"model_ids"`
	ModelRots    string `json:"model_rots"`
}

// CaptureChunk serializes a chunk's content under an already-held read
// access.
func CaptureChunk(pos grid.ChunkPos, flags chunk.Flags, a chunk.ReadAccess) (ChunkV1, error) {
	trans := make([]uint32, 0, chunkWords)
	ids := make([]uint32, 0, chunkWords)
	rots := make([]uint32, 0, chunkWords)

	for z := int32(0); z < grid.Size; z++ {
		for y := int32(0); y < grid.Size; y++ {
			for x := int32(0); x < grid.Size; x++ {
				b, err := a.Get(grid.Point{X: x, Y: y, Z: z})
				if err != nil {
					return ChunkV1{}, err
				}
				trans = append(trans, uint32(b.Transparency))
				ids = append(ids, b.Model.ID)
				rots = append(rots, uint32(b.Model.Rotation))
			}
		}
	}

	return ChunkV1{
		Pos:          [3]int32{pos.X, pos.Y, pos.Z},
		Flags:        uint32(flags),
		Transparency: encoding.EncodeRLE(trans),
		ModelIDs:     encoding.EncodeRLE(ids),
		ModelRots:    encoding.EncodeRLE(rots),
	}, nil
}

// RestoreChunk writes a captured chunk back through an already-held write
// access.
func RestoreChunk(c ChunkV1, a chunk.Access) error {
	trans, err := encoding.DecodeRLE(c.Transparency, chunkWords)
	if err != nil {
		return fmt.Errorf("transparency layer: %w", err)
	}
	ids, err := encoding.DecodeRLE(c.ModelIDs, chunkWords)
	if err != nil {
		return fmt.Errorf("model id layer: %w", err)
	}
	rots, err := encoding.DecodeRLE(c.ModelRots, chunkWords)
	if err != nil {
		return fmt.Errorf("model rotation layer: %w", err)
	}

	i := 0
	for z := int32(0); z < grid.Size; z++ {
		for y := int32(0); y < grid.Size; y++ {
			for x := int32(0); x < grid.Size; x++ {
				b := chunk.Block{
					Transparency: chunk.Transparency(trans[i]),
					Model:        chunk.BlockModel{ID: ids[i], Rotation: uint8(rots[i])},
				}
				if err := a.Set(grid.Point{X: x, Y: y, Z: z}, b); err != nil {
					return err
				}
				i++
			}
		}
	}
	return nil
}

// ChunkPos returns the chunk position the entry was captured at.
func (c ChunkV1) ChunkPos() grid.ChunkPos {
	return grid.ChunkPos{X: c.Pos[0], Y: c.Pos[1], Z: c.Pos[2]}
}

// WriteSnapshot writes the snapshot to a sibling temp file and renames it
// into place, so a crash mid-write never leaves a torn file at path.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encodeSnapshot(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encodeSnapshot(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Read header line (ignore it for now, gob also contains header).
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

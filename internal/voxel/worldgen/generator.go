// Package worldgen populates primordial chunks. Generation jobs flow
// through a priority queue (closest to the observer first) into a worker
// pool that fills chunks through the regular scoped-access path.
package worldgen

import (
	"voxelforge.dev/internal/voxel/chunk"
	"voxelforge.dev/internal/voxel/grid"
)

// Generator fills one chunk's worth of voxels. Implementations must be
// deterministic in pos and safe for concurrent use: the pool calls
// Generate from several workers at once.
type Generator interface {
	Generate(pos grid.ChunkPos, a chunk.Access) error
}

// Palette names the block kinds a HashTerrain generator emits.
type Palette struct {
	Air   chunk.Block
	Stone chunk.Block
	Dirt  chunk.Block
	Grass chunk.Block
	Sand  chunk.Block
	Ore   chunk.Block
}

// HashTerrain is a seeded, noise-free terrain generator: a hashed
// heightmap with biome-flavored surface blocks and sparse ore rolls below
// ground. Cheap and fully deterministic, which is what the engine tests
// and the default server config want.
type HashTerrain struct {
	Seed    int64
	Palette Palette

	// BaseHeight and HeightVar shape the heightmap in world voxels.
	// Defaults of 8 and 12 give rolling terrain around chunk y=0.
	BaseHeight int32
	HeightVar  int32
}

func (g HashTerrain) heightAt(wx, wz int32) int32 {
	base := g.BaseHeight
	hvar := g.HeightVar
	if hvar == 0 {
		base, hvar = 8, 12
	}
	// Smooth-ish terrain from averaging the hashes of the surrounding
	// coarse lattice cells. Not pretty, but deterministic and seam-free.
	const cell = 8
	cx, cz := grid.FloorDiv(wx, cell), grid.FloorDiv(wz, cell)
	var sum int64
	for dz := int32(0); dz <= 1; dz++ {
		for dx := int32(0); dx <= 1; dx++ {
			sum += int64(hash2(g.Seed, cx+dx, cz+dz) % uint64(2*hvar+1))
		}
	}
	return base - hvar + int32(sum/4)
}

type biome uint8

const (
	biomePlains biome = iota
	biomeForest
	biomeDesert
)

func biomeAt(seed int64, wx, wz int32) biome {
	const cell = 64
	return biome(hash2(seed^0x62696f6d, grid.FloorDiv(wx, cell), grid.FloorDiv(wz, cell)) % 3)
}

// Generate fills the chunk column by column from the heightmap.
func (g HashTerrain) Generate(pos grid.ChunkPos, a chunk.Access) error {
	min := pos.WorldspaceMin()
	for z := int32(0); z < grid.Size; z++ {
		for x := int32(0); x < grid.Size; x++ {
			wx, wz := min.X+x, min.Z+z
			height := g.heightAt(wx, wz)
			b := biomeAt(g.Seed, wx, wz)

			for y := int32(0); y < grid.Size; y++ {
				wy := min.Y + y
				block := g.blockAt(wx, wy, wz, height, b)
				if block == g.Palette.Air {
					// Air is the default; writing it would densify
					// sparse storage for nothing.
					continue
				}
				if err := a.Set(grid.Point{X: x, Y: y, Z: z}, block); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (g HashTerrain) blockAt(wx, wy, wz, height int32, b biome) chunk.Block {
	switch {
	case wy > height:
		return g.Palette.Air
	case wy == height:
		if b == biomeDesert {
			return g.Palette.Sand
		}
		return g.Palette.Grass
	case wy > height-4:
		if b == biomeDesert {
			return g.Palette.Sand
		}
		return g.Palette.Dirt
	default:
		if hash3(g.Seed, wx, wy, wz)%1000 < 12 {
			return g.Palette.Ore
		}
		return g.Palette.Stone
	}
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash2(seed int64, x, z int32) uint64 {
	v := uint64(seed) ^ (uint64(uint32(x)) * 0x9e3779b97f4a7c15) ^ (uint64(uint32(z)) * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func hash3(seed int64, x, y, z int32) uint64 {
	v := uint64(seed) ^
		(uint64(uint32(x)) * 0x9e3779b97f4a7c15) ^
		(uint64(uint32(y)) * 0xc2b2ae3d27d4eb4f) ^
		(uint64(uint32(z)) * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

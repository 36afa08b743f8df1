package storage

import (
	"errors"
	"math/rand"
	"testing"

	"voxelforge.dev/internal/voxel/grid"
)

// The backend choice must never be observable: the same writes applied to
// every backend must produce identical reads at every position in the
// domain.
func TestBackendEquivalence(t *testing.T) {
	const def = uint32(0)

	backends := func() map[string]Access[uint32] {
		return map[string]Access[uint32]{
			"dense":      NewDense(def),
			"hashmap":    NewHashmap(def),
			"layered":    NewLayered(def),
			"auto":       NewAuto(def),
			"auto-dense": NewAutoDense(def),
		}
	}

	type write struct {
		pos grid.Point
		val uint32
	}

	scenarios := map[string][]write{
		"empty": nil,
		"single": {
			{grid.Pt(3, 4, 5), 10},
		},
		"overwrite": {
			{grid.Pt(0, 0, 0), 1},
			{grid.Pt(0, 0, 0), 2},
			{grid.Pt(15, 15, 15), 3},
		},
		"uniform layer": func() []write {
			var ws []write
			for x := int32(0); x < grid.Size; x++ {
				for z := int32(0); z < grid.Size; z++ {
					ws = append(ws, write{grid.Pt(x, 4, z), 50})
				}
			}
			return ws
		}(),
		"write back default": {
			{grid.Pt(7, 7, 7), 9},
			{grid.Pt(7, 7, 7), def},
		},
	}

	// A deterministic random scenario heavy enough to trip the auto
	// container's dense promotion.
	rng := rand.New(rand.NewSource(1))
	var random []write
	for i := 0; i < 3000; i++ {
		random = append(random, write{
			pos: grid.Pt(rng.Int31n(grid.Size), rng.Int31n(grid.Size), rng.Int31n(grid.Size)),
			val: uint32(rng.Intn(8)),
		})
	}
	scenarios["random"] = random

	for name, writes := range scenarios {
		t.Run(name, func(t *testing.T) {
			bs := backends()
			for bname, b := range bs {
				for _, w := range writes {
					if err := b.Set(w.pos, w.val); err != nil {
						t.Fatalf("%s: Set(%v): %v", bname, w.pos, err)
					}
				}
			}

			ref := bs["dense"]
			for x := int32(0); x < grid.Size; x++ {
				for y := int32(0); y < grid.Size; y++ {
					for z := int32(0); z < grid.Size; z++ {
						pos := grid.Pt(x, y, z)
						want, err := ref.Get(pos)
						if err != nil {
							t.Fatalf("dense Get(%v): %v", pos, err)
						}
						for bname, b := range bs {
							got, err := b.Get(pos)
							if err != nil {
								t.Fatalf("%s: Get(%v): %v", bname, pos, err)
							}
							if got != want {
								t.Fatalf("%s: Get(%v) = %d, dense says %d", bname, pos, got, want)
							}
						}
					}
				}
			}
		})
	}
}

func TestBackendBounds(t *testing.T) {
	bad := []grid.Point{
		grid.Pt(-1, 0, 0),
		grid.Pt(0, -1, 0),
		grid.Pt(0, 0, -1),
		grid.Pt(16, 0, 0),
		grid.Pt(0, 16, 0),
		grid.Pt(0, 0, 16),
	}

	backends := map[string]Access[uint32]{
		"dense":   NewDense[uint32](0),
		"hashmap": NewHashmap[uint32](0),
		"layered": NewLayered[uint32](0),
		"auto":    NewAuto[uint32](0),
	}
	for bname, b := range backends {
		for _, pos := range bad {
			if _, err := b.Get(pos); !errors.Is(err, ErrOutOfBounds) {
				t.Fatalf("%s: Get(%v): got %v want ErrOutOfBounds", bname, pos, err)
			}
			if err := b.Set(pos, 1); !errors.Is(err, ErrOutOfBounds) {
				t.Fatalf("%s: Set(%v): got %v want ErrOutOfBounds", bname, pos, err)
			}
		}
		if !b.Bounds().IsChunk() {
			t.Fatalf("%s: bounds %v is not the chunk box", bname, b.Bounds())
		}
	}
}

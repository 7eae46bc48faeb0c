package main

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"

	"github.com/tdaniels/cloudpack"
)

const (
	nChunks         = 256
	recordsPerChunk = 64
	streamsPerChunk = 3 // e.g. x, y, z coordinates
)

func newRand() *rand.Rand {
	var seedBytes [8]byte
	crand.Read(seedBytes[:])
	seed := int64(binary.LittleEndian.Uint64(seedBytes[:]))
	return rand.New(rand.NewSource(seed))
}

func main() {
	path := "testdata.cloudpack"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	rng := newRand()
	b, err := cloudpack.NewBuilder(path)
	if err != nil {
		panic(err)
	}

	for i := 0; i < nChunks; i++ {
		streams := make([][]byte, streamsPerChunk)
		for j := range streams {
			s := make([]byte, 4*recordsPerChunk)
			for k := 0; k < recordsPerChunk; k++ {
				binary.LittleEndian.PutUint32(s[4*k:], rng.Uint32())
			}
			streams[j] = s
		}
		if _, err := b.AppendChunk(uint64(i*recordsPerChunk), streams); err != nil {
			panic(err)
		}
	}

	f, err := b.Finalize()
	if err != nil {
		panic(err)
	}
	defer f.Close()

	fmt.Printf("%s: %d chunks, %d logical bytes\n", path, nChunks, f.LogicalLength())
}

package packetbuf

import "sync"

// Slab size classes for pooled payload memory. Copied writes and file
// chunks draw from the smallest class that fits; anything larger than the
// biggest class is allocated directly and never pooled.
var slabClasses = [...]int{512, 4 << 10, 64 << 10, 512 << 10, 4 << 20}

var slabPools [len(slabClasses)]sync.Pool

func init() {
	for i := range slabPools {
		size := slabClasses[i]
		slabPools[i].New = func() interface{} {
			b := make([]byte, size)
			return &b
		}
	}
}

// allocSlab returns a byte slice of length n and reports whether it came
// from a pool. Pooled slices must go back through recycleSlab once the
// caller is done with them.
func allocSlab(n int) ([]byte, bool) {
	for i, size := range slabClasses {
		if n <= size {
			b := *(slabPools[i].Get().(*[]byte))
			return b[:n], true
		}
	}
	return make([]byte, n), false
}

// recycleSlab returns a slab obtained from allocSlab to its pool. Slices
// whose capacity matches no size class are left to the garbage collector.
func recycleSlab(b []byte) {
	c := cap(b)
	for i, size := range slabClasses {
		if c == size {
			b = b[:c]
			slabPools[i].Put(&b)
			return
		}
	}
}

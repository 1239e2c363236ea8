package wavecraft

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_spsc_ring_RoundTrip(t *testing.T) {
	var r = new_spsc_ring(4, 2) /* capacity 32 */

	var in = []float32{1, 2, 3, 4, 5, 6}
	require.Equal(t, 6, r.push(in))
	require.Equal(t, 6, r.fill())

	var out = make([]float32, 6)
	require.Equal(t, 6, r.pop(out))
	assert.Equal(t, in, out)
	assert.Equal(t, 0, r.fill())
}

func Test_spsc_ring_UnderflowReturnsShort(t *testing.T) {
	var r = new_spsc_ring(4, 2)

	r.push([]float32{1, 2})

	var out = make([]float32, 8)
	var got = r.pop(out)

	assert.Equal(t, 2, got)
	assert.Equal(t, float32(1), out[0])
	assert.Equal(t, float32(2), out[1])
	/* The caller zero-fills out[got:]; pop itself must not touch it. */
}

func Test_spsc_ring_OverflowDropsTail(t *testing.T) {
	var r = new_spsc_ring(2, 2) /* capacity 16 */

	var in = make([]float32, 24)
	for i := range in {
		in[i] = float32(i + 1)
	}

	var accepted = r.push(in)
	assert.Equal(t, 16, accepted, "what fits is accepted, the tail is dropped")

	var out = make([]float32, 16)
	require.Equal(t, 16, r.pop(out))
	for i := 0; i < 16; i++ {
		assert.Equal(t, float32(i+1), out[i], "the head of the block survives, not the tail")
	}
}

func Test_spsc_ring_FIFOOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var r = new_spsc_ring(8, 2) /* capacity 64 */

		var pushed []float32
		var popped []float32
		var next float32

		var steps = rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Boolean().Draw(t, "push") {
				var n = rapid.IntRange(0, 20).Draw(t, "n")
				var block = make([]float32, n)
				for j := range block {
					block[j] = next
					next++
				}
				var accepted = r.push(block)
				pushed = append(pushed, block[:accepted]...)
			} else {
				var out = make([]float32, rapid.IntRange(0, 20).Draw(t, "m"))
				var got = r.pop(out)
				popped = append(popped, out[:got]...)
			}
		}

		var out = make([]float32, r.fill())
		r.pop(out)
		popped = append(popped, out...)

		assert.Equal(t, pushed, popped, "everything accepted comes out once, in order")
	})
}

func Test_spsc_ring_ConcurrentProducerConsumer(t *testing.T) {
	var r = new_spsc_ring(128, 2)

	const total = 100000
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		var next float32
		var block [64]float32
		for int(next) < total {
			var n = 0
			for n < len(block) && int(next) < total {
				block[n] = next
				next++
				n++
			}
			var sent = 0
			for sent < n {
				sent += r.push(block[sent:n])
			}
		}
	}()

	var got = make([]float32, 0, total)
	var out [64]float32
	for len(got) < total {
		var n = r.pop(out[:])
		got = append(got, out[:n]...)
	}
	wg.Wait()

	for i := 0; i < total; i++ {
		if got[i] != float32(i) {
			t.Fatalf("sample %d arrived as %v", i, got[i])
		}
	}
}

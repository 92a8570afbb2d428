package randutil

const (
	goldenRatio64 = 0x9e3779b97f4a7c15
)

// Sequence is a counter-based pseudo-random generator. Identical seeds yield
// identical output streams, and because the whole generator is a single
// counter it survives a serialize/deserialize round trip mid-race.
//
// The State field is exported only so the generator can be embedded in
// serialized race snapshots; callers should treat it as opaque.
type Sequence struct {
	State uint64 `json:"state"`
}

// NewSequence returns a Sequence seeded deterministically from seed.
func NewSequence(seed int64) *Sequence {
	return &Sequence{State: mix(uint64(seed))}
}

// Next returns the next value in [0, 1).
func (s *Sequence) Next() float64 {
	s.State += goldenRatio64
	x := mix(s.State)
	// 53 high bits, the float64 mantissa width.
	return float64(x>>11) / (1 << 53)
}

// Intn returns a value in [0, n). It panics if n <= 0, mirroring math/rand.
func (s *Sequence) Intn(n int) int {
	if n <= 0 {
		panic("randutil: Intn with non-positive n")
	}
	return int(s.Next() * float64(n))
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

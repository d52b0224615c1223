package vm

import "sort"

// Profile counts invocations per function. Built-ins are counted alongside
// bytecode functions.
type Profile struct {
	counts []uint64
}

// NewProfile creates a profile for n functions.
func NewProfile(n int) *Profile {
	return &Profile{counts: make([]uint64, n)}
}

func (p *Profile) record(id FunctionID) {
	if id < 0 || int(id) >= len(p.counts) {
		return
	}
	p.counts[id]++
}

// Count returns the number of invocations of id.
func (p *Profile) Count(id FunctionID) uint64 {
	if id < 0 || int(id) >= len(p.counts) {
		return 0
	}
	return p.counts[id]
}

// Top returns up to n invoked functions, most invoked first. Ties are
// broken by id. n <= 0 returns all of them.
func (p *Profile) Top(n int) []FunctionID {
	var ids []FunctionID
	for i, c := range p.counts {
		if c > 0 {
			ids = append(ids, FunctionID(i))
		}
	}
	sort.SliceStable(ids, func(i, j int) bool {
		return p.counts[ids[i]] > p.counts[ids[j]]
	})
	if n > 0 && len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// Reset clears all counts.
func (p *Profile) Reset() {
	clear(p.counts)
}

package ngram

// PrefixIndex maps an order to a prefix key to the positions, in
// GramTable[order], of every gram starting with that prefix. Positions keep
// insertion order and duplicates, so sampling a bucket uniformly weights each
// continuation by how often it occurred.
type PrefixIndex map[int]map[string][]int

// Invert builds the prefix index for every order in table. A gram of order n
// is filed once under each of its proper prefixes g[:1] .. g[:n-1]; order 1
// has no proper prefix and yields an empty bucket map.
func Invert(table GramTable) PrefixIndex {
	index := make(PrefixIndex, len(table))
	for n, grams := range table {
		buckets := make(map[string][]int)
		for pos, g := range grams {
			for i := 1; i < n; i++ {
				key := Key(g[:i])
				buckets[key] = append(buckets[key], pos)
			}
		}
		index[n] = buckets
	}
	return index
}

// Lookup returns the positions filed under prefix for order n.
func (p PrefixIndex) Lookup(n int, prefix []string) ([]int, bool) {
	buckets, ok := p[n]
	if !ok {
		return nil, false
	}
	positions, ok := buckets[Key(prefix)]
	return positions, ok
}

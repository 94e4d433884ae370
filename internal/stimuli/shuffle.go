package stimuli

import "math/rand"

// SplitByField groups rows by the value of field, in order of first appearance.
func SplitByField(rows []Row, field string) [][]Row {
	var groups [][]Row
	for _, idx := range splitIndices(rows, allIndices(len(rows)), field) {
		group := make([]Row, len(idx))
		for i, j := range idx {
			group[i] = rows[j]
		}
		groups = append(groups, group)
	}
	return groups
}

// RandomAssign picks one group of rows by field, discarding the others. It is
// used to assign a participant to one counterbalancing condition.
func RandomAssign(rows []Row, field string, rng *rand.Rand) []Row {
	_, idx := AssignIndices(rows, field, rng)
	if idx == nil {
		return nil
	}
	group := make([]Row, len(idx))
	for i, j := range idx {
		group[i] = rows[j]
	}
	return group
}

// AssignIndices is RandomAssign expressed as row indices, together with the
// field value the chosen group shares.
func AssignIndices(rows []Row, field string, rng *rand.Rand) (any, []int) {
	groups := splitIndices(rows, allIndices(len(rows)), field)
	if len(groups) == 0 {
		return nil, nil
	}
	g := groups[rng.Intn(len(groups))]
	return rows[g[0]][field], g
}

// Shuffle returns rows in random order such that rows sharing a value of
// fields[0] stay contiguous, and within each such block the same holds for
// fields[1], and so on. Without fields it is a plain shuffle.
func Shuffle(rows []Row, fields []string, rng *rand.Rand) []Row {
	order := ShuffleIndices(rows, fields, rng)
	out := make([]Row, len(order))
	for i, j := range order {
		out[i] = rows[j]
	}
	return out
}

// ShuffleIndices is Shuffle expressed as a permutation of row indices.
func ShuffleIndices(rows []Row, fields []string, rng *rand.Rand) []int {
	return shuffleGroup(rows, allIndices(len(rows)), fields, rng)
}

// ShuffleSubset shuffles only the rows at idx, keeping groups contiguous as
// ShuffleIndices does.
func ShuffleSubset(rows []Row, idx []int, fields []string, rng *rand.Rand) []int {
	return shuffleGroup(rows, idx, fields, rng)
}

func shuffleGroup(rows []Row, idx []int, fields []string, rng *rand.Rand) []int {
	if len(fields) == 0 {
		out := append([]int(nil), idx...)
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}
	groups := splitIndices(rows, idx, fields[0])
	for i := range groups {
		groups[i] = shuffleGroup(rows, groups[i], fields[1:], rng)
	}
	rng.Shuffle(len(groups), func(i, j int) { groups[i], groups[j] = groups[j], groups[i] })

	out := make([]int, 0, len(idx))
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func splitIndices(rows []Row, idx []int, field string) [][]int {
	position := make(map[any]int)
	var groups [][]int
	for _, i := range idx {
		key := rows[i][field]
		p, ok := position[key]
		if !ok {
			p = len(groups)
			position[key] = p
			groups = append(groups, nil)
		}
		groups[p] = append(groups[p], i)
	}
	return groups
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

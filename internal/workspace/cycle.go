package workspace

import "slices"

// findCycle follows every workspace's parent pointers and returns the first
// cycle found, as a path that starts and ends at the cycle's smallest member.
// Self-parenting yields [id, id]. It returns nil for a forest.
//
// Parents must already be known to exist.
func findCycle(parents map[string]string) []string {
	done := make(map[string]bool, len(parents))
	for _, id := range sortedKeys(parents) {
		pos := map[string]int{}
		var walk []string
		for cur := id; cur != "" && !done[cur]; cur = parents[cur] {
			if i, seen := pos[cur]; seen {
				return cyclePath(walk[i:], parents)
			}
			pos[cur] = len(walk)
			walk = append(walk, cur)
		}
		for _, w := range walk {
			done[w] = true
		}
	}
	return nil
}

func cyclePath(members []string, parents map[string]string) []string {
	start := slices.Min(members)
	path := []string{start}
	for cur := parents[start]; cur != start; cur = parents[cur] {
		path = append(path, cur)
	}
	return append(path, start)
}

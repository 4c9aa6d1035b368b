package convert

import "strings"

// buildHierarchy turns a flat, depth-annotated section list into a tree. A
// section is attached to the closest preceding section whose number is a
// prefix of its own; sections without such a parent become roots.
func buildHierarchy(sections []Section) []Section {
	var roots []Section
	for i := 0; i < len(sections); {
		root := sections[i]
		j := i + 1
		for j < len(sections) && isDescendant(sections[j], root) {
			j++
		}
		root.Children = buildHierarchy(sections[i+1 : j])
		roots = append(roots, root)
		i = j
	}
	return roots
}

func isDescendant(s, parent Section) bool {
	return s.Depth > parent.Depth && strings.HasPrefix(s.Number, parent.Number+".")
}

// filterTopLevel keeps only chapter entries.
func filterTopLevel(sections []Section) []Section {
	var out []Section
	for _, s := range sections {
		if s.Depth == 1 {
			out = append(out, s)
		}
	}
	return out
}

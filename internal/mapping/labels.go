package mapping

import "sort"

// LabelSpace is the ordered set of distinct labels in a Mapping.
// The index of a label is its position in ascending order, so the same
// mapping always yields the same indices.
type LabelSpace struct {
	names []string
	index map[string]int
}

// NewLabelSpace flattens and sorts the labels of m
func NewLabelSpace(m Mapping) *LabelSpace {
	set := make(map[string]struct{})
	for _, values := range m {
		for _, labels := range values {
			for _, l := range labels {
				set[l] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(set))
	for l := range set {
		names = append(names, l)
	}
	sort.Strings(names)

	return newLabelSpace(names)
}

// LabelSpaceOf builds a label space from explicit names, e.g. the label
// columns of a stored feature table
func LabelSpaceOf(names []string) *LabelSpace {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return newLabelSpace(sorted)
}

func newLabelSpace(sorted []string) *LabelSpace {
	ls := &LabelSpace{index: make(map[string]int, len(sorted))}
	for _, n := range sorted {
		if _, dup := ls.index[n]; dup {
			continue
		}
		ls.index[n] = len(ls.names)
		ls.names = append(ls.names, n)
	}
	return ls
}

// Len returns the number of labels
func (ls *LabelSpace) Len() int {
	return len(ls.names)
}

// Index returns the position of name
func (ls *LabelSpace) Index(name string) (int, bool) {
	i, ok := ls.index[name]
	return i, ok
}

// Name returns the label at position i
func (ls *LabelSpace) Name(i int) string {
	return ls.names[i]
}

// Names returns a copy of all labels in index order
func (ls *LabelSpace) Names() []string {
	return append([]string(nil), ls.names...)
}

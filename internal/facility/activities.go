package facility

import "sort"

// expansion maps label columns to the activity types they imply
var expansion = []struct {
	columns    []string
	activities []string
}{
	{[]string{"work"}, []string{"work", "work_business"}},
	{[]string{"shop"}, []string{"shop_other"}},
	{[]string{"shop_daily"}, []string{"shop_other", "shop_daily"}},
	{[]string{"leisure"}, []string{"leisure"}},
	{[]string{"dining"}, []string{"dining"}},
	{[]string{"edu_higher"}, []string{"edu_higher"}},
	{[]string{"edu_prim"}, []string{"edu_primary", "edu_secondary"}},
	{[]string{"edu_kiga"}, []string{"edu_kiga"}},
	{[]string{"edu_other"}, []string{"edu_other"}},
	{[]string{"p_business", "medical", "religious"}, []string{"personal_business", "work_business"}},
}

// Activities expands a set of label columns into sorted, distinct activity types.
// Labels without an expansion contribute nothing.
func Activities(labels []string) []string {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}

	out := make(map[string]struct{})
	for _, e := range expansion {
		for _, c := range e.columns {
			if _, ok := set[c]; ok {
				for _, a := range e.activities {
					out[a] = struct{}{}
				}
				break
			}
		}
	}
	return sortedKeys(out)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

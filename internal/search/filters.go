package search

// Facet groups filter tags under one heading.
type Facet struct {
	Name string
	Tags []string
}

// Facets is the catalog of known filter tags.
var Facets = []Facet{
	{Name: "mechanics", Tags: []string{"push", "pull"}},
	{Name: "equipment", Tags: []string{"assisted", "lever", "barbell", "body weight", "cable", "dumbbell", "sled", "smith"}},
}

// KnownTag reports whether tag belongs to a facet.
func KnownTag(tag string) bool {
	for _, f := range Facets {
		for _, t := range f.Tags {
			if t == tag {
				return true
			}
		}
	}
	return false
}

// FilterSet tracks active facet tags in activation order. It is not safe
// for concurrent use; Store guards its own copy.
//
// Filters are advisory: Reconcile does not apply them.
type FilterSet struct {
	active map[string]bool
	order  []string
}

func NewFilterSet(tags ...string) *FilterSet {
	fs := &FilterSet{active: make(map[string]bool)}
	for _, t := range tags {
		fs.Set(t, true)
	}
	return fs
}

// Toggle flips tag and returns its new state.
func (f *FilterSet) Toggle(tag string) bool {
	on := !f.active[tag]
	f.Set(tag, on)
	return on
}

func (f *FilterSet) Set(tag string, on bool) {
	if f.active == nil {
		f.active = make(map[string]bool)
	}
	if on == f.active[tag] {
		return
	}
	if on {
		f.active[tag] = true
		f.order = append(f.order, tag)
		return
	}
	delete(f.active, tag)
	for i, t := range f.order {
		if t == tag {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

func (f *FilterSet) IsActive(tag string) bool {
	return f.active[tag]
}

func (f *FilterSet) Clear() {
	f.active = make(map[string]bool)
	f.order = nil
}

// Active lists active tags in the order they were turned on.
func (f *FilterSet) Active() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

func (f *FilterSet) Empty() bool {
	return len(f.order) == 0
}

func (f *FilterSet) Clone() *FilterSet {
	return NewFilterSet(f.order...)
}

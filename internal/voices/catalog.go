// Package voices holds the closed set of speech voices offered by the front ends, grouped by region.
package voices

// Region groups voices by accent.
type Region string

const (
	RegionUS Region = "en-US"
	RegionGB Region = "en-GB"
	RegionAU Region = "en-AU"
)

// Voice is one selectable speech voice. ID is what the speech service receives.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Group is a region together with its voices, in display order.
type Group struct {
	Region Region  `json:"region"`
	Label  string  `json:"label"`
	Voices []Voice `json:"voices"`
}

var groups = []Group{
	{
		Region: RegionUS,
		Label:  "English (United States)",
		Voices: []Voice{
			{ID: "alloy", Name: "Alloy"},
			{ID: "nova", Name: "Nova"},
			{ID: "echo", Name: "Echo"},
			{ID: "onyx", Name: "Onyx"},
			{ID: "shimmer", Name: "Shimmer"},
		},
	},
	{
		Region: RegionGB,
		Label:  "English (United Kingdom)",
		Voices: []Voice{
			{ID: "fable", Name: "Fable"},
			{ID: "sage", Name: "Sage"},
		},
	},
	{
		Region: RegionAU,
		Label:  "English (Australia)",
		Voices: []Voice{
			{ID: "coral", Name: "Coral"},
			{ID: "ash", Name: "Ash"},
		},
	},
}

// Catalog resolves regions and voices. It is built once and read-only afterwards.
type Catalog struct {
	groups  []Group
	byID    map[string]Region
	byGroup map[Region]int
}

var defaultCatalog = New(groups)

// Default returns the catalog of every known region and voice.
func Default() Catalog {
	return defaultCatalog
}

// New builds a catalog from gs, for example the groups served by a talkback server. The groups are copied.
func New(gs []Group) Catalog {
	c := Catalog{
		groups:  copyGroups(gs),
		byID:    make(map[string]Region),
		byGroup: make(map[Region]int, len(gs)),
	}
	for i, g := range c.groups {
		c.byGroup[g.Region] = i
		for _, v := range g.Voices {
			c.byID[v.ID] = g.Region
		}
	}
	return c
}

// Groups returns every region with its voices, in display order.
func (c Catalog) Groups() []Group {
	return copyGroups(c.groups)
}

func copyGroups(gs []Group) []Group {
	out := make([]Group, len(gs))
	for i, g := range gs {
		out[i] = g
		out[i].Voices = append([]Voice(nil), g.Voices...)
	}
	return out
}

// Regions returns the regions in display order.
func (c Catalog) Regions() []Region {
	out := make([]Region, len(c.groups))
	for i, g := range c.groups {
		out[i] = g.Region
	}
	return out
}

// Voices returns the voices of region in display order, or nil for an unknown region.
func (c Catalog) Voices(region Region) []Voice {
	i, ok := c.byGroup[region]
	if !ok {
		return nil
	}
	out := make([]Voice, len(c.groups[i].Voices))
	copy(out, c.groups[i].Voices)
	return out
}

// Lookup finds a voice by id and returns the region it belongs to.
func (c Catalog) Lookup(id string) (Voice, Region, bool) {
	region, ok := c.byID[id]
	if !ok {
		return Voice{}, "", false
	}
	for _, v := range c.groups[c.byGroup[region]].Voices {
		if v.ID == id {
			return v, region, true
		}
	}
	return Voice{}, "", false
}

// First returns the first voice of region.
func (c Catalog) First(region Region) (Voice, bool) {
	vs := c.Voices(region)
	if len(vs) == 0 {
		return Voice{}, false
	}
	return vs[0], true
}

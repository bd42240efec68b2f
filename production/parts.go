package production

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// PART CATALOG
// =============================================================================

// Part is a product the line can report counts for.
type Part struct {
	Number string `json:"partNumber"`
	Name   string `json:"partName"`
}

// Catalog is the set of recognized part numbers.
type Catalog struct {
	parts map[string]Part
	order []string
}

// DefaultParts is the line's product mix.
var DefaultParts = []Part{
	{Number: "9253020232", Name: "BIG CYLINDER"},
	{Number: "9253010242", Name: "SMALL CYLINDER"},
}

// NewCatalog builds a catalog; duplicate numbers keep the last name.
func NewCatalog(parts ...Part) *Catalog {
	c := &Catalog{parts: make(map[string]Part, len(parts))}
	for _, p := range parts {
		if _, seen := c.parts[p.Number]; !seen {
			c.order = append(c.order, p.Number)
		}
		c.parts[p.Number] = p
	}
	return c
}

// DefaultCatalog returns a catalog of DefaultParts.
func DefaultCatalog() *Catalog { return NewCatalog(DefaultParts...) }

// ParseCatalog reads "number:name,number:name".
func ParseCatalog(spec string) (*Catalog, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return DefaultCatalog(), nil
	}

	var parts []Part
	for _, entry := range strings.Split(spec, ",") {
		number, name, ok := strings.Cut(strings.TrimSpace(entry), ":")
		number, name = strings.TrimSpace(number), strings.TrimSpace(name)
		if !ok || number == "" || name == "" {
			return nil, fmt.Errorf("invalid part entry %q: expected number:name", entry)
		}
		parts = append(parts, Part{Number: number, Name: name})
	}
	return NewCatalog(parts...), nil
}

// Lookup returns the part for number.
func (c *Catalog) Lookup(number string) (Part, bool) {
	p, ok := c.parts[number]
	return p, ok
}

// Name returns the display name, falling back to the number itself.
func (c *Catalog) Name(number string) string {
	if p, ok := c.parts[number]; ok {
		return p.Name
	}
	return number
}

// Parts lists the catalog in insertion order.
func (c *Catalog) Parts() []Part {
	out := make([]Part, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.parts[n])
	}
	return out
}

// Names lists display names sorted alphabetically.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.parts))
	for _, p := range c.parts {
		out = append(out, p.Name)
	}
	sort.Strings(out)
	return out
}

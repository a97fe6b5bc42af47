// Package urltemplate validates and materializes tile URL templates and
// rotates across subdomains.
package urltemplate

import (
	"strconv"
	"strings"
)

// ValidationResult reports whether a template can be used, which
// placeholders it names, which required ones are missing, and any
// non-fatal warnings.
type ValidationResult struct {
	Valid        bool
	Placeholders []string
	Missing      []string
	Warnings     []string
}

var requiredPlaceholders = []string{"{x}", "{y}", "{z}"}

// Validate checks that a URL template contains {x}, {y}, {z}, and warns
// about a mismatch between the presence of {s} and hasSubdomains.
func Validate(urlTemplate string, hasSubdomains bool) ValidationResult {
	result := ValidationResult{}

	for _, ph := range requiredPlaceholders {
		if strings.Contains(urlTemplate, ph) {
			result.Placeholders = append(result.Placeholders, ph)
		} else {
			result.Missing = append(result.Missing, ph)
		}
	}

	hasS := strings.Contains(urlTemplate, "{s}")
	if hasS {
		result.Placeholders = append(result.Placeholders, "{s}")
	}

	switch {
	case hasS && !hasSubdomains:
		result.Warnings = append(result.Warnings, "template declares {s} but no subdomains were provided; defaults will be used")
	case !hasS && hasSubdomains:
		result.Warnings = append(result.Warnings, "subdomains were provided but the template has no {s} placeholder")
	}

	result.Valid = len(result.Missing) == 0
	return result
}

// Materialize performs a single textual substitution of each placeholder
// present in the template.
func Materialize(template string, x, y, z uint32, subdomain string) string {
	r := strings.NewReplacer(
		"{x}", strconv.FormatUint(uint64(x), 10),
		"{y}", strconv.FormatUint(uint64(y), 10),
		"{z}", strconv.FormatUint(uint64(z), 10),
		"{s}", subdomain,
	)
	return r.Replace(template)
}

// Rotator round-robins over a subdomain sequence. Its rotation index
// advances monotonically across all materializations for one run. A
// Rotator built from an empty sequence never yields a subdomain; callers
// must not use it against a template containing {s}.
type Rotator struct {
	subdomains []string
	next       int
}

// NewRotator builds a Rotator over the given subdomain sequence. An empty
// sequence is allowed — Next always returns "".
func NewRotator(subdomains []string) *Rotator {
	cp := make([]string, len(subdomains))
	copy(cp, subdomains)
	return &Rotator{subdomains: cp}
}

// Next returns the next subdomain in round-robin order, advancing the
// rotation index. It returns "" if the rotator has no subdomains.
func (r *Rotator) Next() string {
	if len(r.subdomains) == 0 {
		return ""
	}
	s := r.subdomains[r.next%len(r.subdomains)]
	r.next++
	return s
}

// DefaultSubdomains is used when a template needs {s} but the caller did
// not supply any.
var DefaultSubdomains = []string{"a", "b", "c"}

package tiledl

import "github.com/openbasemap/tiledl/internal/urltemplate"

// ValidationResult reports whether a URL template is usable and why not.
type ValidationResult struct {
	Valid        bool
	Placeholders []string
	Missing      []string
	Warnings     []string
}

// ValidateTileURL checks a URL template for the required {x}, {y}, {z}
// placeholders and warns about a mismatch between the optional {s}
// placeholder and whether subdomains were supplied.
func ValidateTileURL(urlTemplate string, hasSubdomains bool) ValidationResult {
	r := urltemplate.Validate(urlTemplate, hasSubdomains)
	return ValidationResult{
		Valid:        r.Valid,
		Placeholders: r.Placeholders,
		Missing:      r.Missing,
		Warnings:     r.Warnings,
	}
}

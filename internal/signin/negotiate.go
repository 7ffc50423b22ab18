package signin

import (
	"net/http"
	"strings"

	"github.com/munnerz/goautoneg"
)

const (
	mimeJSON = "application/json"
	mimeHTML = "text/html"
)

// PrefersJSON reports whether the Accept header weighs application/json
// strictly above text/html. A missing header accepts both equally.
func PrefersJSON(r *http.Request) bool {
	header := strings.ToLower(strings.Join(r.Header.Values("Accept"), ","))
	if strings.TrimSpace(header) == "" {
		return false
	}
	clauses := goautoneg.ParseAccept(header)
	return quality(clauses, mimeJSON) > quality(clauses, mimeHTML)
}

// quality returns the weight of the most specific clause matching mt.
func quality(clauses []goautoneg.Accept, mt string) float64 {
	typ, subtype, _ := strings.Cut(mt, "/")

	best, bestSpecificity := 0.0, 0
	for _, c := range clauses {
		specificity := 0
		switch {
		case c.Type == typ && c.SubType == subtype:
			specificity = 3
		case c.Type == typ && c.SubType == "*":
			specificity = 2
		case c.Type == "*" && c.SubType == "*":
			specificity = 1
		default:
			continue
		}
		if specificity > bestSpecificity {
			best, bestSpecificity = c.Q, specificity
		}
	}
	return best
}

package mapping

import (
	"strings"

	"listimport/internal/coerce"
	"listimport/internal/listing"
)

// TestTermID substitutes a real term ID when a test-mode run would
// otherwise create terms.
const TestTermID = -1

// IsTagLike reports whether a taxonomy holds free-form terms. Tag-like
// terms are passed through by name and created at upsert time; hierarchical
// taxonomies are resolved to term IDs up front.
func IsTagLike(taxonomy string) bool {
	return taxonomy == "listing_tag" ||
		taxonomy == "post_tag" ||
		strings.HasSuffix(taxonomy, "_tags")
}

// resolveTerms turns raw term names into listing.Term values for one
// taxonomy. Unknown taxonomies are discarded silently. A failed term
// creation is narrated as a warning and only that term is skipped.
func (e *Engine) resolveTerms(taxonomy string, names []string, testMode bool, log Logger) []listing.Term {
	names = dedupeNames(names)
	if e.Taxonomies == nil || !e.Taxonomies.TaxonomyExists(taxonomy) {
		return nil
	}

	terms := make([]listing.Term, 0, len(names))
	if IsTagLike(taxonomy) {
		for _, name := range names {
			terms = append(terms, listing.Term{Name: name})
		}
		return terms
	}

	for _, name := range names {
		if id, ok := e.Taxonomies.TermID(name, taxonomy); ok {
			terms = append(terms, listing.Term{ID: id, Name: name})
			continue
		}
		if testMode {
			terms = append(terms, listing.Term{ID: TestTermID, Name: name})
			continue
		}
		id, err := e.Taxonomies.CreateTerm(name, taxonomy)
		if err != nil {
			if log != nil {
				log.Warnf("could not create term %q in %s: %v", name, taxonomy, err)
			}
			continue
		}
		terms = append(terms, listing.Term{ID: id, Name: name})
	}
	return terms
}

func dedupeNames(names []string) []string {
	return coerce.SplitTerms(strings.Join(names, ","))
}

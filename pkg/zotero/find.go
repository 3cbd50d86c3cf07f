package zotero

import (
	"regexp"
	"strings"
)

var doiPrefixRegexp = regexp.MustCompile(`(?i)^(https?://(dx\.)?doi\.org/|doi:\s*)`)

// NormalizeDOI strips resolver and scheme prefixes. DOIs are case insensitive.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = doiPrefixRegexp.ReplaceAllString(doi, "")
	return strings.ToLower(doi)
}

// FindByDOI returns all items whose DOI matches.
func FindByDOI(items []Item, doi string) []Item {
	doi = NormalizeDOI(doi)
	result := []Item{}
	if doi == "" {
		return result
	}
	for _, item := range items {
		if NormalizeDOI(item.GetDOI()) == doi {
			result = append(result, item)
		}
	}
	return result
}

// Notes filters note items.
func Notes(items []Item) []Item {
	result := []Item{}
	for _, item := range items {
		if item.IsNote() {
			result = append(result, item)
		}
	}
	return result
}

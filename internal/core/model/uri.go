package model

import "net/url"

// URIScheme extracts the scheme of a resource URI, lowercased by url.Parse.
// It returns "" for unparseable or scheme-less strings; such resources only
// match wildcard providers.
func URIScheme(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return u.Scheme
}

// SchemeMatches reports whether a provider's scheme set covers the given
// URI. A set containing SchemeAll matches everything.
func SchemeMatches(schemes []string, uri string) bool {
	scheme := URIScheme(uri)
	for _, s := range schemes {
		if s == SchemeAll || (s != "" && s == scheme) {
			return true
		}
	}
	return false
}

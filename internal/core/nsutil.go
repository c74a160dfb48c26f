package core

// nsutil.go implements case-insensitive, namespace-tolerant lookup of
// object/field names, shared by the Describer, classifier, and converter.
//
// A namespace N scopes custom object/field names of the form "N__name".
// Given an optional default namespace, a name can be looked up under three
// forms: as-is, with the namespace stripped, and with the namespace added.

import (
	"strings"

	"golang.org/x/text/cases"
)

// foldCaser performs Unicode case folding, used wherever this package needs
// locale-independent "same name regardless of case" comparison instead of
// ASCII-only strings.ToLower.
var foldCaser = cases.Fold()

// foldEqual reports whether a and b are equal under Unicode case folding,
// the namespace-agnostic notion of "same name" used throughout this
// package.
func foldEqual(a, b string) bool {
	return foldCaser.String(a) == foldCaser.String(b)
}

// foldKey returns the canonical folded form used to key the Describer's
// object/field maps.
func foldKey(s string) string {
	return foldCaser.String(s)
}

// stripNamespace removes a leading "N__" from x, if N is non-empty and x
// has that prefix. Otherwise x is returned unchanged.
func stripNamespace(x, ns string) string {
	if ns == "" {
		return x
	}
	prefix := ns + "__"
	if len(x) > len(prefix) && foldEqual(x[:len(prefix)], prefix) {
		return x[len(prefix):]
	}
	return x
}

// customSuffixes are field/object name suffixes that mark a managed-package
// custom component; add() never double-prefixes a name that already
// carries one of these, nor one that already contains "__" (i.e. already
// namespaced).
var customSuffixes = []string{"__c", "__r", "__mdt"}

// addNamespace prepends "N__" to x, unless ns is empty, x already contains
// "__" (already namespaced, or carries a custom suffix), or x already
// starts with ns's prefix. The original literal is always preserved when no
// rewrite rule applies.
func addNamespace(x, ns string) string {
	if ns == "" {
		return x
	}
	if strings.Contains(x, "__") {
		return x
	}
	for _, suffix := range customSuffixes {
		if strings.HasSuffix(strings.ToLower(x), suffix) {
			return x
		}
	}
	return ns + "__" + x
}

// lookupCandidates returns the names to try for key, in order: key, then
// strip(key, ns), then add(key, ns), leaving out forms identical to key.
// This three-way fallback underlies lookupMap, setContains, and
// sliceContains below.
func lookupCandidates(key, ns string) []string {
	if ns == "" {
		return []string{key}
	}
	stripped := stripNamespace(key, ns)
	added := addNamespace(key, ns)
	out := []string{key}
	if stripped != key {
		out = append(out, stripped)
	}
	if added != key {
		out = append(out, added)
	}
	return out
}

// lookupMap looks up key in m using the namespace fallback chain. Map keys
// are matched case-insensitively.
func lookupMap[V any](m map[string]V, key, ns string) (V, bool) {
	for _, candidate := range lookupCandidates(key, ns) {
		folded := foldKey(candidate)
		if v, ok := m[folded]; ok {
			return v, true
		}
		// also support maps not pre-folded, for callers outside this package
		for mk, v := range m {
			if foldEqual(mk, candidate) {
				return v, true
			}
		}
	}
	var zero V
	return zero, false
}

// setContains reports whether id is a member of set under the namespace
// fallback chain.
func setContains(set map[string]struct{}, id, ns string) bool {
	for _, candidate := range lookupCandidates(id, ns) {
		if _, ok := set[candidate]; ok {
			return true
		}
		for k := range set {
			if foldEqual(k, candidate) {
				return true
			}
		}
	}
	return false
}

// sliceContains reports whether needle appears in haystack under the
// namespace fallback chain.
func sliceContains(haystack []string, needle, ns string) bool {
	for _, candidate := range lookupCandidates(needle, ns) {
		for _, h := range haystack {
			if foldEqual(h, candidate) {
				return true
			}
		}
	}
	return false
}

// Package cache holds parse results keyed by file path and the digest of
// the text they were computed from.
//
// The workspace engine keeps one syntax tree per file. Submitting the same
// text again returns the cached tree; new text replaces it:
//
//	trees := cache.NewMemoryCache[*syntax.File]()
//	if tree, ok := trees.Get(ctx, path, text); ok {
//		return tree, nil
//	}
//	trees.Put(ctx, path, text, parse(text))
package cache

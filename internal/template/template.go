// Package template implements flat {{placeholder}} substitution for
// subject and body strings. It is intentionally not a general-purpose
// template engine: no conditionals, no recursion, no escaping.
package template

import "regexp"

// varPattern matches {{identifier}} where identifier is word characters only.
// Unmatched braces or non-word content between braces are left verbatim.
var varPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render replaces every {{name}} occurrence in s with vars[name].
// Names absent from vars render as the empty string. Values are inserted
// as-is; callers own any HTML sanitization.
func Render(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-2]
		return vars[name]
	})
}

// Vars builds the substitution mapping for one recipient. The pipeline
// guarantees at least name; email and row come along for templates that
// want them.
func Vars(name, email, row string) map[string]string {
	return map[string]string{
		"name":  name,
		"email": email,
		"row":   row,
	}
}

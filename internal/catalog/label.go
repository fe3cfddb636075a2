// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package catalog

import "strings"

// Full-width parentheses (U+FF08, U+FF09) enclosing the category in a menu
// label.
const (
	labelOpen  = "（"
	labelClose = "）"
)

// EncodeLabel returns the menu label of the script label in category.
//
// There is no escaping: a category containing "）" produces labels that
// decode ambiguously.
func EncodeLabel(category, label string) string {
	return labelPrefix(category) + label
}

// DecodeLabel strips the category prefix from a full menu label. ok is false
// if full is empty or doesn't start with the prefix of category. The match is
// a plain string prefix, so category "A" never matches "（AB）x", but category
// "A）（B" matches "（A）（B）x".
func DecodeLabel(category, full string) (label string, ok bool) {
	if full == "" {
		return "", false
	}
	rest, ok := strings.CutPrefix(full, labelPrefix(category))
	if !ok {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func labelPrefix(category string) string { return labelOpen + category + labelClose }

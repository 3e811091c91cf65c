package simproc

import (
	"regexp"

	"github.com/grapheneaffiliate/plogic-core/pkg/logger"
)

// extraArgPattern is the allow-list for caller-supplied simulator flags:
// a leading --, a letter-led flag name of letters/digits/hyphens, and an
// optional =value of word characters, dots, signs or exponent letters.
// Anything else (shell metacharacters in particular) is dropped.
var extraArgPattern = regexp.MustCompile(`^(?i)--[a-z][a-z0-9-]*(?:=[\w.+eE-]+)?$`)

// SanitizeExtra narrows extra to the entries matching the allow-list.
// Rejected entries are logged and skipped; sanitization never fails the call.
// An empty surviving set is always nil, so callers that fold the result into
// a cache identity see one canonical form for "no extra args".
func SanitizeExtra(extra []string) []string {
	var ok []string
	for _, arg := range extra {
		if extraArgPattern.MatchString(arg) {
			ok = append(ok, arg)
		} else {
			logger.Warn("skipping suspicious extra arg", "arg", arg)
		}
	}
	return ok
}

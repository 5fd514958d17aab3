// Package injection is the gateway's prompt-injection screen: a pure,
// deterministic classifier run on every chat message before it ever
// reaches the upstream model. It is defense-in-depth, not a sole guard
// — sanitize package still strips and redacts independently.
package injection

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Family names one of the catalog's pattern groups.
type Family string

const (
	FamilyInstructionOverride Family = "instruction_override"
	FamilyRoleModification    Family = "role_modification"
	FamilyPromptExtraction    Family = "prompt_extraction"
	FamilyTopicGuardBypass    Family = "topic_guard_bypass"
	FamilyFormatCoercion      Family = "format_coercion"
	FamilyEncodedSmuggling    Family = "encoded_smuggling"
	FamilyFilterDisable       Family = "filter_disable"
)

// Verdict is the screen's result.
type Verdict struct {
	Rejected       bool
	Family         Family
	MatchedPattern string
}

type signal struct {
	family  Family
	pattern *regexp.Regexp
}

// catalog holds the compiled pattern table, at least one entry per
// family spec §4.4 names. Patterns are matched against a normalized,
// whitespace-collapsed, lowercased copy of the message.
var catalog = []signal{
	{FamilyInstructionOverride, regexp.MustCompile(`\bignore\s+(all\s+|the\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?)\b`)},
	{FamilyInstructionOverride, regexp.MustCompile(`\bdisregard\s+(all\s+|the\s+)?(previous|prior|above)\b`)},
	{FamilyInstructionOverride, regexp.MustCompile(`\bforget\s+(everything|all|what)\s+(you('ve| have)?\s+)?(been\s+told|said|learned)\b`)},

	{FamilyRoleModification, regexp.MustCompile(`\b(pretend|act)\s+(to\s+be|as\s+if\s+you('re| are))\b`)},
	{FamilyRoleModification, regexp.MustCompile(`\byou\s+are\s+now\s+[a-z0-9_ ]+\b`)},
	{FamilyRoleModification, regexp.MustCompile(`\benter\s+(developer|debug|dan|god)\s+mode\b`)},

	{FamilyPromptExtraction, regexp.MustCompile(`\brepeat\s+(your|the)\s+(system\s+)?prompt\b`)},
	{FamilyPromptExtraction, regexp.MustCompile(`\b(reveal|print|show|output)\s+(your|the)\s+(system\s+)?(prompt|instructions)\b`)},
	{FamilyPromptExtraction, regexp.MustCompile(`\bwhat\s+(are\s+|is\s+)?your\s+(initial\s+|system\s+)?instructions\b`)},

	{FamilyTopicGuardBypass, regexp.MustCompile(`\b(let'?s|lets)\s+talk\s+about\s+something\s+(else|different)\s+(instead\s+of|besides)\s+magic\b`)},
	{FamilyTopicGuardBypass, regexp.MustCompile(`\bthis\s+is\s+not\s+about\s+magic\s+anymore\b`)},

	{FamilyFormatCoercion, regexp.MustCompile(`\brespond\s+only\s+with\s+(raw\s+)?(code|json|yaml)\b.*\bno\s+(safety|warnings?|disclaimers?)\b`)},
	{FamilyFormatCoercion, regexp.MustCompile(`\bomit\s+(any\s+)?(safety|warning)\s+(language|text|framing)\b`)},

	{FamilyEncodedSmuggling, regexp.MustCompile(`\bdecode\s+(this\s+)?(base64|hex|rot13)\b`)},
	{FamilyEncodedSmuggling, regexp.MustCompile(`\\u00[0-9a-f]{2}`)},

	{FamilyFilterDisable, regexp.MustCompile(`\bdisable\s+(your\s+)?(content\s+)?(filter|moderation|safety)\b`)},
	{FamilyFilterDisable, regexp.MustCompile(`\bturn\s+off\s+(your\s+)?(safety|guard\s*rails?)\b`)},
	{FamilyFilterDisable, regexp.MustCompile(`\bno\s+(restrictions?|limits?|rules?)\s+(apply|from\s+now\s+on)\b`)},
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ToLower(s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Screen classifies message against the injection catalog. The caller
// passes the already-sanitized input; Screen never mutates it.
func Screen(message string) Verdict {
	normalized := normalize(message)
	for _, sig := range catalog {
		if loc := sig.pattern.FindString(normalized); loc != "" {
			return Verdict{Rejected: true, Family: sig.family, MatchedPattern: loc}
		}
	}
	return Verdict{Rejected: false}
}

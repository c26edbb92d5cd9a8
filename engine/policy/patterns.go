package policy

import "regexp"

// HarmfulPatterns contribute a violation on match. Order is stable and
// part of the contract: principlesChecked and score are a function of
// this order, not of map iteration.
var HarmfulPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(kill|murder|harm|attack)\s+(people|someone|users)\b`),
	regexp.MustCompile(`(?i)\b(steal|hack|break\s+into)\b.*\b(data|information|account)\b`),
	regexp.MustCompile(`(?i)\b(create|make|build)\s+(virus|malware|exploit)\b`),
	regexp.MustCompile(`(?i)\b(illegal|unlawful)\s+(activity|action)\b`),
}

// UnethicalPatterns contribute a warning on match.
var UnethicalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(lie|deceive|manipulate)\s+(users?|people)\b`),
	regexp.MustCompile(`(?i)\b(discriminate|bias)\s+against\b`),
	regexp.MustCompile(`(?i)\b(exploit|take\s+advantage)\s+of\b`),
}

// DefaultPrinciples is the principle set checked by validate_content/
// validate_alignment when no policy-specific principle list is configured.
var DefaultPrinciples = []string{
	"non_maleficence",
	"honesty",
	"fairness",
	"transparency",
}

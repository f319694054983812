package hypothesis

import "regexp"

// namedResourcePattern matches a quoted token or a capitalized/kebab-case
// identifier, the signal used to tell a specific claim ("payment-service's
// DB_CONNECTION_STRING was changed at 10:03") apart from a vague one
// ("something in the database tier is unhealthy").
var namedResourcePattern = regexp.MustCompile(`"[^"]+"|'[^']+'|\b[A-Z][a-zA-Z0-9]*\b|\b[a-z][a-z0-9]*(?:-[a-z0-9]+){1,4}\b|\b[A-Z_]{2,}\b`)

// DefaultSpecificityCheck reports whether statement names a concrete
// resource, config key, or quoted value rather than a vague claim.
func DefaultSpecificityCheck(statement string) bool {
	return namedResourcePattern.MatchString(statement)
}

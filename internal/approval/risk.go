package approval

import "strings"

// criticalOperationKeywords match operations that destroy or irreversibly
// remove state.
var criticalOperationKeywords = []string{"delete", "terminate", "destroy", "truncate", "drop"}

// highOperationKeywords match operations that interrupt a running service
// or change what is deployed.
var highOperationKeywords = []string{"restart", "reboot", "stop", "scale-down", "scaledown", "deploy", "update-service"}

// mediumOperationKeywords match generic mutating verbs that fall back to
// medium risk when nothing more specific matches.
var mediumOperationKeywords = []string{"update", "modify", "scale", "patch", "apply"}

// ClassifyRisk applies a lexical risk classification over (operation,
// resource). Resource is consulted only to detect a production-scoped
// update, which is promoted to high risk.
func ClassifyRisk(operation, resource string) Risk {
	op := strings.ToLower(operation)
	res := strings.ToLower(resource)

	if containsAny(op, criticalOperationKeywords) {
		return RiskCritical
	}
	if containsAny(op, highOperationKeywords) {
		return RiskHigh
	}
	if containsAny(op, mediumOperationKeywords) {
		if strings.Contains(res, "prod") || strings.Contains(res, "production") {
			return RiskHigh
		}
		return RiskMedium
	}
	return RiskLow
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

package logging

// Convenience field constructors for the investigation engine. Keeping these
// as named helpers (rather than ad-hoc Field("session_id", ...) calls spread
// across the codebase) keeps the key names consistent across components.

// SessionField tags a log entry with the investigation session ID.
func SessionField(sessionID string) LogField {
	return Field("session_id", sessionID)
}

// PhaseField tags a log entry with the current state machine phase.
func PhaseField(phase string) LogField {
	return Field("phase", phase)
}

// IterationField tags a log entry with the current investigation iteration.
func IterationField(iteration int) LogField {
	return Field("iteration", iteration)
}

// HypothesisField tags a log entry with a hypothesis ID.
func HypothesisField(hypothesisID string) LogField {
	return Field("hypothesis_id", hypothesisID)
}

// ToolField tags a log entry with a tool name.
func ToolField(tool string) LogField {
	return Field("tool", tool)
}

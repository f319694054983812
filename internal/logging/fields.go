package logging

// cloneFields copies a field map, returning a fresh non-nil map even when
// src is empty, so a Logger derived via WithField/WithFields/WithContext
// never aliases its parent's field map.
func cloneFields(src map[string]interface{}) map[string]interface{} {
	if len(src) == 0 {
		return make(map[string]interface{})
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// mergeFields layers context-derived fields under a logger's persistent
// fields under the fields supplied at the call site, the priority order
// every log call in the investigation engine relies on: a session_id/phase
// pair set once per StateMachine loses to a more specific hypothesis_id or
// tool field attached to one log line. Returns nil when there is nothing
// to merge, so callers can skip field rendering entirely.
func mergeFields(contextFields, loggerFields map[string]interface{}, callFields ...LogField) map[string]interface{} {
	if len(contextFields) == 0 && len(loggerFields) == 0 && len(callFields) == 0 {
		return nil
	}
	merged := make(map[string]interface{}, len(contextFields)+len(loggerFields)+len(callFields))
	for k, v := range contextFields {
		merged[k] = v
	}
	for k, v := range loggerFields {
		merged[k] = v
	}
	for _, f := range callFields {
		merged[f.Key] = f.Value
	}
	return merged
}

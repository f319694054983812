// Package ids generates the identifiers used throughout the investigation
// engine: session IDs, hypothesis IDs, scratchpad result IDs, and mutation
// IDs. All are UUIDv4 strings, prefixed for readability in logs and
// filenames.
package ids

import "github.com/google/uuid"

// NewSessionID generates a new investigation session ID.
func NewSessionID() string {
	return "sess_" + uuid.NewString()
}

// NewHypothesisID generates a new hypothesis node ID.
func NewHypothesisID() string {
	return "hyp_" + uuid.NewString()
}

// NewResultID generates a new scratchpad entry ID.
func NewResultID() string {
	return "res_" + uuid.NewString()
}

// NewMutationID generates a new pending-mutation ID for the approval
// protocol's filesystem rendezvous.
func NewMutationID() string {
	return "mut_" + uuid.NewString()
}

// NewNoteID generates a new investigation memory note ID.
func NewNoteID() string {
	return "note_" + uuid.NewString()
}

// NewEdgeID generates a new service-dependency edge ID.
func NewEdgeID() string {
	return "edge_" + uuid.NewString()
}

package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratorsProduceUniquePrefixedIDs(t *testing.T) {
	cases := []struct {
		name   string
		prefix string
		gen    func() string
	}{
		{"session", "sess_", NewSessionID},
		{"hypothesis", "hyp_", NewHypothesisID},
		{"result", "res_", NewResultID},
		{"mutation", "mut_", NewMutationID},
		{"note", "note_", NewNoteID},
		{"edge", "edge_", NewEdgeID},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, b := tc.gen(), tc.gen()
			assert.True(t, strings.HasPrefix(a, tc.prefix))
			assert.True(t, strings.HasPrefix(b, tc.prefix))
			assert.NotEqual(t, a, b)
		})
	}
}

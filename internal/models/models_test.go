package models

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rastion/rastion-datasets/pkg/dataformat"
	"github.com/rastion/rastion-datasets/pkg/scoring"
)

func TestDatasetVisibility(t *testing.T) {
	private := &Dataset{UserID: "alice"}
	require.True(t, private.VisibleTo("alice"))
	require.False(t, private.VisibleTo("bob"))
	require.False(t, private.VisibleTo(""))

	public := &Dataset{UserID: "alice", IsPublic: true}
	require.True(t, public.VisibleTo(""))
	require.False(t, public.OwnedBy(""))
}

func TestDatasetHintPrefersDeclared(t *testing.T) {
	hint := "atsp"
	ds := &Dataset{Metadata: DatasetMetadata{Metadata: dataformat.Metadata{ProblemHint: "tsp"}}}
	require.Equal(t, "tsp", ds.Hint())
	ds.ProblemHint = &hint
	require.Equal(t, "atsp", ds.Hint())
}

func TestDatasetMetadataScan(t *testing.T) {
	var meta DatasetMetadata
	require.NoError(t, meta.Scan([]byte(`{"version":1,"format":"tsplib","dimension":52,"line_count":9,"byte_size":120}`)))
	require.Equal(t, 52, meta.Dimension)
	require.Equal(t, dataformat.FormatTSPLIB, meta.Format)

	require.NoError(t, meta.Scan(nil))
	require.Zero(t, meta.Dimension)
	require.Error(t, meta.Scan(42))
}

func TestDeclaredSchemaNullAndMalformed(t *testing.T) {
	var schema DeclaredSchema
	require.NoError(t, schema.Scan(nil))
	require.Nil(t, schema.Schema)

	value, err := schema.Value()
	require.NoError(t, err)
	require.Nil(t, value)

	require.NoError(t, schema.Scan([]byte(`{"type":"problem","problem_name":"tsp"}`)))
	require.NotNil(t, schema.Schema)
	require.Equal(t, "tsp", schema.Schema.DeclaredProblemType())

	require.NoError(t, schema.UnmarshalJSON([]byte(`["not","a","schema"]`)))
	require.Nil(t, schema.Schema)
}

func TestCompatibilityDetailsValueHasEmptyLists(t *testing.T) {
	value, err := CompatibilityDetails{Detail: scoring.Detail{Version: 1}}.Value()
	require.NoError(t, err)
	require.JSONEq(t, `{"version":1,"matched_problem_type":false,"matched_format":false,"matched_parameters":[],"reasons":[],"weights":{"problem_type":0,"format":0,"parameter":0}}`, string(value.([]byte)))
}

func TestJWTClaimsIdentity(t *testing.T) {
	require.Equal(t, "", (*JWTClaims)(nil).Identity())
	claims := &JWTClaims{Username: "bob"}
	require.Equal(t, "bob", claims.Identity())
	claims.UserID = "alice"
	require.Equal(t, "alice", claims.Identity())
}

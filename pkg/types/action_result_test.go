// pkg/types/action_result_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: None
// PURPOSE: Test audit trail queries

package types_test

import (
	"testing"

	"github.com/arthur-debert/modman/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestActionResult_IsFatal(t *testing.T) {
	tests := []struct {
		name   string
		result types.ActionResult
		want   bool
	}{
		{"fatal failure", types.ActionResult{Kind: types.ResultFailed, Fatal: true}, true},
		{"fatal missing", types.ActionResult{Kind: types.ResultMissing, Fatal: true}, true},
		{"soft failure", types.ActionResult{Kind: types.ResultFailed}, false},
		{"fatal flag on success", types.ActionResult{Kind: types.ResultReplaced, Fatal: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.IsFatal())
		})
	}
}

func TestResults_Queries(t *testing.T) {
	rs := types.Results{
		{Kind: types.ResultOpened, Path: "a.php"},
		{Kind: types.ResultReplaced, Path: "a.php"},
		{Kind: types.ResultMissing, Path: "b.php"},
		{Kind: types.ResultSaved, Path: "a.php"},
		{Kind: types.ResultSaved, Path: "a.php"},
		{Kind: types.ResultSaved, Path: "c.php"},
	}

	assert.False(t, rs.Failed())
	assert.Equal(t, 3, rs.Count(types.ResultSaved))
	assert.Equal(t, 0, rs.Count(types.ResultFailed))
	assert.Equal(t, []string{"a.php", "c.php"}, rs.Paths(types.ResultSaved))
	assert.Equal(t, []types.ResultKind{
		types.ResultOpened, types.ResultReplaced, types.ResultMissing,
		types.ResultSaved, types.ResultSaved, types.ResultSaved,
	}, rs.Kinds())

	rs = append(rs, types.ActionResult{Kind: types.ResultMissing, Path: "d.php", Fatal: true})
	assert.True(t, rs.Failed())
}

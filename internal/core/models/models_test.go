// SPDX-License-Identifier: Apache-2.0

package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeValid(t *testing.T) {
	assert.True(t, ModeStrict.Valid())
	assert.True(t, ModeImprovement.Valid())
	assert.True(t, ModeAdvisor.Valid())
	assert.False(t, Mode("x").Valid())
	assert.False(t, Mode("").Valid())
}

func TestCombinedPatch(t *testing.T) {
	t.Run("JoinsNonEmptyPatchesInOrder", func(t *testing.T) {
		result := FileResult{
			File: "input.c",
			Rules: []RemediationAttempt{
				{Rule: "A.B", Status: OutcomeApplied, Patch: "patch-a"},
				{Rule: "C.D", Status: OutcomeNoChange, Patch: ""},
				{Rule: "E.F", Status: OutcomeApplied, Patch: "patch-b"},
			},
		}
		assert.Equal(t, "patch-a\npatch-b", result.CombinedPatch())
	})

	t.Run("EmptyWhenNoPatches", func(t *testing.T) {
		result := FileResult{
			File: "input.c",
			Rules: []RemediationAttempt{
				{Rule: "A.B", Status: OutcomeMissingRule},
			},
		}
		assert.Equal(t, "", result.CombinedPatch())
	})
}

func TestFileResultJSONShape(t *testing.T) {
	result := FileResult{
		File: "src/input.c",
		Rules: []RemediationAttempt{
			{Rule: "FNH.MIGHT", Status: OutcomeFailed, Error: "tool exited with status 2"},
		},
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "src/input.c", decoded["file"])
	rules := decoded["rules"].([]interface{})
	require.Len(t, rules, 1)
	first := rules[0].(map[string]interface{})
	assert.Equal(t, "FNH.MIGHT", first["rule"])
	assert.Equal(t, "failed", first["status"])
	assert.Equal(t, "tool exited with status 2", first["error"])
	// empty fields stay out of the report
	assert.NotContains(t, first, "patch")
	assert.NotContains(t, first, "summary")
}

package api_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/plantops/mv-backend/internal/store"
	"github.com/plantops/mv-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissions_Evaluate(t *testing.T) {
	ts := newTestServer(t)

	var decision map[string]any
	res := ts.do(t, http.MethodPost, "/api/v1/permissions/evaluate", ts.adminToken,
		map[string]any{"action": "MANAGE_RULES"}, &decision)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, true, decision["allowed"])
	assert.NotNil(t, decision["matchedRule"])

	// The operator role has no matching rule and falls to the default deny.
	res = ts.do(t, http.MethodPost, "/api/v1/permissions/evaluate", ts.operatorToken,
		map[string]any{"action": "MANAGE_RULES"}, &decision)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, false, decision["allowed"])
}

func TestPermissions_EvaluateUnknownAction(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(t, http.MethodPost, "/api/v1/permissions/evaluate", ts.adminToken,
		map[string]any{"action": "FLY_TO_MARS"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestPermissions_All(t *testing.T) {
	ts := newTestServer(t)

	_, err := ts.rules.CreateRule(context.Background(), testutil.NewRule(store.ActionCreateMachine).Build())
	require.NoError(t, err)

	var body struct {
		Permissions map[string]map[string]any `json:"permissions"`
	}
	res := ts.do(t, http.MethodGet, "/api/v1/permissions", ts.operatorToken, nil, &body)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, body.Permissions, len(store.AllActionTypes))
	assert.Equal(t, true, body.Permissions["CREATE_MACHINE"]["allowed"])
	assert.Equal(t, false, body.Permissions["DELETE_MACHINE"]["allowed"])
}

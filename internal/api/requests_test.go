package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (ts *testServer) createRequestBody() map[string]any {
	return map[string]any{
		"machineId":    ts.machine.ID.String(),
		"approvalType": "ACTIVATION",
		"notes":        "please activate",
	}
}

func TestRequests_CreateAndDuplicate(t *testing.T) {
	ts := newTestServer(t)

	var created map[string]any
	res := ts.do(t, http.MethodPost, "/api/v1/approval-requests", ts.operatorToken, ts.createRequestBody(), &created)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "PENDING", created["status"])
	assert.Equal(t, ts.operatorID.String(), created["requesterId"])
	assert.Len(t, ts.notifier.Created, 1)

	res = ts.do(t, http.MethodPost, "/api/v1/approval-requests", ts.operatorToken, ts.createRequestBody(), nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	envelope := decodeError(t, res)
	assert.Equal(t, "PENDING_APPROVAL_EXISTS", envelope.Error.Code)
}

func TestRequests_DecisionFlow(t *testing.T) {
	ts := newTestServer(t)

	var created map[string]any
	res := ts.do(t, http.MethodPost, "/api/v1/approval-requests", ts.operatorToken, ts.createRequestBody(), &created)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	requestID := created["id"].(string)

	var decided map[string]any
	res = ts.do(t, http.MethodPost, "/api/v1/approval-requests/"+requestID+"/decision",
		ts.adminToken, map[string]any{"approved": true}, &decided)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "APPROVED", decided["status"])
	assert.Equal(t, ts.adminID.String(), decided["decidedBy"])
	assert.True(t, ts.machine.IsApproved, "an approved activation request flips the machine flag")

	res = ts.do(t, http.MethodPost, "/api/v1/approval-requests/"+requestID+"/decision",
		ts.adminToken, map[string]any{"approved": true}, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	envelope := decodeError(t, res)
	assert.Equal(t, "ALREADY_PROCESSED", envelope.Error.Code)

	// The approved request no longer occupies the pending slot, so the
	// same machine and type can be requested again.
	res = ts.do(t, http.MethodPost, "/api/v1/approval-requests", ts.operatorToken, ts.createRequestBody(), nil)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
}

func TestRequests_RejectionNeedsReason(t *testing.T) {
	ts := newTestServer(t)

	var created map[string]any
	res := ts.do(t, http.MethodPost, "/api/v1/approval-requests", ts.operatorToken, ts.createRequestBody(), &created)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	requestID := created["id"].(string)

	res = ts.do(t, http.MethodPost, "/api/v1/approval-requests/"+requestID+"/decision",
		ts.adminToken, map[string]any{"approved": false}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	var rejected map[string]any
	res = ts.do(t, http.MethodPost, "/api/v1/approval-requests/"+requestID+"/decision",
		ts.adminToken, map[string]any{"approved": false, "rejectionReason": "no safety docs"}, &rejected)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "REJECTED", rejected["status"])
	assert.Equal(t, "no safety docs", rejected["rejectionReason"])
}

func TestRequests_CancelByRequesterOnly(t *testing.T) {
	ts := newTestServer(t)

	var created map[string]any
	res := ts.do(t, http.MethodPost, "/api/v1/approval-requests", ts.operatorToken, ts.createRequestBody(), &created)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	requestID := created["id"].(string)

	res = ts.do(t, http.MethodPost, "/api/v1/approval-requests/"+requestID+"/cancel", ts.adminToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	var cancelled map[string]any
	res = ts.do(t, http.MethodPost, "/api/v1/approval-requests/"+requestID+"/cancel", ts.operatorToken, nil, &cancelled)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "CANCELLED", cancelled["status"])
}

func TestRequests_ListAndStatistics(t *testing.T) {
	ts := newTestServer(t)

	var created map[string]any
	res := ts.do(t, http.MethodPost, "/api/v1/approval-requests", ts.operatorToken, ts.createRequestBody(), &created)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var list struct {
		Requests []map[string]any `json:"requests"`
		Total    int64            `json:"total"`
	}
	res = ts.do(t, http.MethodGet, "/api/v1/approval-requests?status=PENDING", ts.operatorToken, nil, &list)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int64(1), list.Total)

	var stats struct {
		Total    int64            `json:"total"`
		ByStatus map[string]int64 `json:"byStatus"`
	}
	res = ts.do(t, http.MethodGet, "/api/v1/approval-requests/statistics", ts.adminToken, nil, &stats)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus["PENDING"])

	res = ts.do(t, http.MethodGet, "/api/v1/approval-requests?approvalType=BOGUS", ts.operatorToken, nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = ts.do(t, http.MethodGet, "/api/v1/approval-requests?status=BOGUS", ts.operatorToken, nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestRequests_UnknownMachine(t *testing.T) {
	ts := newTestServer(t)

	body := ts.createRequestBody()
	body["machineId"] = "00000000-0000-0000-0000-000000000001"
	res := ts.do(t, http.MethodPost, "/api/v1/approval-requests", ts.operatorToken, body, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

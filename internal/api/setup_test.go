package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/api"
	"github.com/plantops/mv-backend/internal/approvals"
	"github.com/plantops/mv-backend/internal/auth"
	"github.com/plantops/mv-backend/internal/config"
	"github.com/plantops/mv-backend/internal/policy"
	"github.com/plantops/mv-backend/internal/quality"
	"github.com/plantops/mv-backend/internal/store"
	"github.com/plantops/mv-backend/internal/testutil"
	"github.com/stretchr/testify/require"
)

type fakeUserStore struct {
	users map[uuid.UUID]store.User
}

func (f *fakeUserStore) GetUser(_ context.Context, id uuid.UUID) (store.User, error) {
	user, ok := f.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

// testServer wires the HTTP surface against in-memory stores with two
// known identities: an admin whose role carries MANAGE_RULES and a
// regular operator.
type testServer struct {
	handler  http.Handler
	rules    *testutil.FakeRuleStore
	requests *testutil.FakeRequestStore
	checks   *testutil.FakeCheckStore
	ledger   *testutil.FakeLedgerStore
	notifier *testutil.RecordingNotifier

	machine *store.Machine

	adminID       uuid.UUID
	adminToken    string
	operatorID    uuid.UUID
	operatorToken string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	cfg := &config.Config{
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		},
	}

	adminRole := uuid.New()
	operatorRole := uuid.New()
	admin := store.User{ID: uuid.New(), Email: "admin@example.com", RoleID: &adminRole, IsActive: true}
	operator := store.User{ID: uuid.New(), Email: "operator@example.com", RoleID: &operatorRole, IsActive: true}
	users := &fakeUserStore{users: map[uuid.UUID]store.User{
		admin.ID:    admin,
		operator.ID: operator,
	}}

	jwtService, err := auth.NewJWTService([]byte("test-signing-key"), "machine-vault", time.Hour)
	require.NoError(t, err)
	adminToken, err := jwtService.GenerateToken(ctx, admin.ID)
	require.NoError(t, err)
	operatorToken, err := jwtService.GenerateToken(ctx, operator.ID)
	require.NoError(t, err)

	rules := testutil.NewFakeRuleStore()
	_, err = rules.CreateRule(ctx, testutil.NewRule(store.ActionManageRules).
		WithName("admins manage rules").
		WithRoles(adminRole).
		Build())
	require.NoError(t, err)

	machine := &store.Machine{ID: uuid.New(), Name: "Hydraulic press"}
	requests := testutil.NewFakeRequestStore()
	requests.Machines[machine.ID] = machine

	refValidator := testutil.NewFakeValidator()
	refValidator.Register(store.RefMachines, machine.ID)
	refValidator.Register(store.RefUsers, admin.ID)
	refValidator.Register(store.RefUsers, operator.ID)
	refValidator.Register(store.RefRoles, adminRole)
	refValidator.Register(store.RefRoles, operatorRole)

	ruleService := policy.NewService(rules, refValidator, nil)
	evaluator := policy.NewEvaluator(rules, nil)
	notifier := testutil.NewRecordingNotifier()
	manager := approvals.NewManager(requests, refValidator, notifier, 7*24*time.Hour)

	checks := testutil.NewFakeCheckStore()
	ledger := testutil.NewFakeLedgerStore()
	qualityService := quality.NewService(checks, quality.NewSynchronizer(ledger))

	server := api.NewServer(nil, cfg, auth.NewAuthenticator(jwtService, users),
		ruleService, evaluator, manager, qualityService, nil)

	return &testServer{
		handler:       server.Routes(),
		rules:         rules,
		requests:      requests,
		checks:        checks,
		ledger:        ledger,
		notifier:      notifier,
		machine:       machine,
		adminID:       admin.ID,
		adminToken:    adminToken,
		operatorID:    operator.ID,
		operatorToken: operatorToken,
	}
}

// do issues a request against the in-process router and decodes the JSON
// body into out when it is non-nil.
func (ts *testServer) do(t *testing.T, method, path, token string, body any, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	res := rec.Result()
	t.Cleanup(func() { res.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, res *http.Response) errorEnvelope {
	t.Helper()
	var envelope errorEnvelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&envelope))
	return envelope
}

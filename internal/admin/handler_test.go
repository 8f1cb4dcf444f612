package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type users []model.User

func (u users) List(_ context.Context, limit, offset int) ([]model.User, error) {
	if offset >= len(u) {
		return nil, nil
	}
	end := min(offset+limit, len(u))
	return u[offset:end], nil
}

type statusCall struct {
	actor, account string
	status         types.AccountStatus
}

type setter struct{ calls []statusCall }

func (s *setter) SetStatus(_ context.Context, actorID, accountID string, status types.AccountStatus) (model.Account, error) {
	s.calls = append(s.calls, statusCall{actorID, accountID, status})
	return model.Account{ID: accountID, Status: status}, nil
}

type trail map[string][]model.AuditLog

func (t trail) ListForResource(_ context.Context, resource, resourceID string, limit int) ([]model.AuditLog, error) {
	list := t[resource+"/"+resourceID]
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func TestUsersPaging(t *testing.T) {
	h := NewHandler(NewService(users{{ID: "u1"}, {ID: "u2"}, {ID: "u3"}}, &setter{}, trail{}), nil)

	rec := httptest.NewRecorder()
	h.Users(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/users?limit=2&offset=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"u2"`)
	assert.Contains(t, rec.Body.String(), `"id":"u3"`)
	assert.NotContains(t, rec.Body.String(), `"id":"u1"`)

	rec = httptest.NewRecorder()
	h.Users(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/users?offset=10", nil))
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSetAccountStatus(t *testing.T) {
	s := &setter{}
	h := NewHandler(NewService(users{}, s, trail{}), nil)

	rec := httptest.NewRecorder()
	h.SetAccountStatus(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"Suspended"}`)), "admin-1", "a1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []statusCall{{"admin-1", "a1", types.AccountStatusSuspended}}, s.calls)

	rec = httptest.NewRecorder()
	h.SetAccountStatus(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"frozen"}`)), "admin-1", "a1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, s.calls, 1)
}

func TestAuditTrail(t *testing.T) {
	logs := trail{"accounts/a1": {
		{ID: "l2", ActorID: "admin-1", Action: "account.status", Resource: "accounts", ResourceID: "a1"},
		{ID: "l1", ActorID: "system", Action: "account.open", Resource: "accounts", ResourceID: "a1"},
	}}
	h := NewHandler(NewService(users{}, &setter{}, logs), nil)

	rec := httptest.NewRecorder()
	h.AuditTrail(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/audit?resource=accounts&resource_id=a1&limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"l2"`)
	assert.NotContains(t, rec.Body.String(), `"id":"l1"`)

	rec = httptest.NewRecorder()
	h.AuditTrail(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/audit?resource=orders&resource_id=o9", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.AuditTrail(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/audit?resource=accounts", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "resource_id")
}

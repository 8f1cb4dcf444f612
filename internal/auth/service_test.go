package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/audit"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type directTx struct{}

func (directTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type memUsers struct {
	byID   map[string]model.User
	hashes map[string]string
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]model.User{}, hashes: map[string]string{}}
}

func (m *memUsers) Create(_ context.Context, email, name, hash string, role types.Role) (model.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return model.User{}, apperr.ErrEmailTaken
		}
	}
	u := model.User{ID: fmt.Sprintf("u%d", len(m.byID)+1), Email: email, Name: name, Role: role, KYCStatus: types.KYCStatusNone}
	m.byID[u.ID] = u
	m.hashes[u.ID] = hash
	return u, nil
}

func (m *memUsers) Get(_ context.Context, id string) (model.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return u, apperr.NotFound("user")
	}
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, string, error) {
	for id, u := range m.byID {
		if u.Email == email {
			return u, m.hashes[id], nil
		}
	}
	return model.User{}, "", apperr.NotFound("user")
}

type opener struct{ opened []string }

func (o *opener) OpenDefault(_ context.Context, userID string) (model.Account, error) {
	o.opened = append(o.opened, userID)
	return model.Account{ID: "acc-" + userID, UserID: userID}, nil
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, audit.Entry) error { return nil }

func newTestService() (*Service, *memUsers, *opener) {
	users := newMemUsers()
	acc := &opener{}
	svc := NewService(directTx{}, users, acc, nopAudit{}, "tradedesk-test", []byte("secret"), time.Hour)
	svc.cost = bcrypt.MinCost
	return svc, users, acc
}

func TestRegisterLoginAndParse(t *testing.T) {
	svc, _, acc := newTestService()
	ctx := context.Background()

	s, err := svc.Register(ctx, " Ada@Example.com ", "correct-horse", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", s.User.Email)
	assert.Equal(t, []string{s.User.ID}, acc.opened)

	userID, role, err := svc.ParseToken(s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, userID)
	assert.Equal(t, types.RoleUser, role)

	_, err = svc.Register(ctx, "ada@example.com", "another-pass", "Ada")
	assert.ErrorIs(t, err, apperr.ErrEmailTaken)

	login, err := svc.Login(ctx, "ADA@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, login.User.ID)

	_, err = svc.Login(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "whatever1")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}

func TestRegisterValidation(t *testing.T) {
	svc, users, _ := newTestService()
	_, err := svc.Register(context.Background(), "not-an-email", "short", "")
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Len(t, ae.Fields, 3)
	assert.Empty(t, users.byID)
}

func TestParseTokenRejects(t *testing.T) {
	svc, users, _ := newTestService()
	admin, _ := users.Create(context.Background(), "root@example.com", "Root", "x", types.RoleAdmin)
	s, err := svc.issue(admin)
	require.NoError(t, err)

	_, role, err := svc.ParseToken(s.Token)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, role)

	other := NewService(directTx{}, users, &opener{}, nopAudit{}, "someone-else", []byte("secret"), time.Hour)
	_, _, err = other.ParseToken(s.Token)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	_, _, err = svc.ParseToken(s.Token)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "tradedesk-test", Subject: admin.ID}})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, _, err = other.ParseToken(raw)
	assert.Error(t, err)
}

func TestHandlerSetsAndClearsCookie(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc, "session", true, nil)

	rec := httptest.NewRecorder()
	body := `{"email":"grace@example.com","password":"hopper-1906","name":"Grace"}`
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/register", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.NotEmpty(t, cookies[0].Value)

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{"email":"grace@example.com","password":"nope-nope"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.Logout(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Empty(t, rec.Result().Cookies()[0].Value)
}

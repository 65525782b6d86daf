package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/userapi/internal/common"
	"github.com/dmitrijs2005/userapi/internal/dbx"
	"github.com/dmitrijs2005/userapi/internal/logging"
	"github.com/dmitrijs2005/userapi/internal/server/auth"
	"github.com/dmitrijs2005/userapi/internal/server/config"
	"github.com/dmitrijs2005/userapi/internal/server/models"
	rolesrepo "github.com/dmitrijs2005/userapi/internal/server/repositories/roles"
	usersrepo "github.com/dmitrijs2005/userapi/internal/server/repositories/users"
	"github.com/dmitrijs2005/userapi/internal/server/services"
)

const testSecret = "test-secret"

func errNotFoundForTest() error {
	return fmt.Errorf("user: %w", common.ErrorNotFound)
}

// --- fakes ---

type fakeUsersRepo struct {
	saltOut []byte
	saltErr error

	hashValid bool

	userOut *models.User
	userErr error

	updateHashSaltErr error

	updateOut *models.User
	updateErr error

	createOut *models.User
	createErr error

	listOut     []*models.User
	listHasNext bool
	listErr     error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createOut != nil {
		return f.createOut, nil
	}
	return u, nil
}

func (f *fakeUsersRepo) GetUserSalt(ctx context.Context, email string) ([]byte, error) {
	return f.saltOut, f.saltErr
}

func (f *fakeUsersRepo) IsUserHashValid(ctx context.Context, email string, hash []byte) (bool, error) {
	return f.hashValid, nil
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return f.userOut, f.userErr
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return f.userOut, f.userErr
}

func (f *fakeUsersRepo) UpdateHashSalt(ctx context.Context, email string, hash, salt []byte) error {
	return f.updateHashSaltErr
}

func (f *fakeUsersRepo) Update(ctx context.Context, userID string, upd models.UserUpdate) (*models.User, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.updateOut, nil
}

func (f *fakeUsersRepo) List(ctx context.Context, limit, offset int, emailFilter, nameFilter string) ([]*models.User, bool, error) {
	return f.listOut, f.listHasNext, f.listErr
}

type fakeRolesRepo struct {
	rolesOut []models.Role
	rolesErr error

	listOut     []models.Role
	listHasNext bool
	listErr     error

	assignErr error
}

func (f *fakeRolesRepo) GetUserRoles(ctx context.Context, userID string) ([]models.Role, error) {
	return f.rolesOut, f.rolesErr
}

func (f *fakeRolesRepo) ListRoles(ctx context.Context, limit, offset int) ([]models.Role, bool, error) {
	return f.listOut, f.listHasNext, f.listErr
}

func (f *fakeRolesRepo) AssignRole(ctx context.Context, userID, code string) error {
	return f.assignErr
}

type fakeRepoManager struct {
	users *fakeUsersRepo
	roles *fakeRolesRepo
}

func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository { return m.users }
func (m *fakeRepoManager) Roles(db dbx.DBTX) rolesrepo.Repository { return m.roles }
func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return nil
}

// --- harness ---

func testConfig() *config.Config {
	return &config.Config{
		EndpointAddr:          ":0",
		SecretKey:             testSecret,
		TokenValidityDuration: time.Hour,
		RequireActiveUser:     true,
		LoginRatePerMinute:    0, // throttle off unless a test turns it on
		LoginRateBurst:        0,
	}
}

func newTestServer(t *testing.T, rm *fakeRepoManager, cfg *config.Config) (http.Handler, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc := services.NewAccountService(db, rm, cfg)
	srv := NewServer(cfg, logger, svc, NewMetrics())
	t.Cleanup(srv.limiter.Stop)

	return srv.routes(), mock, db
}

func issueToken(t *testing.T, payload auth.TokenPayload) string {
	t.Helper()
	token, err := auth.GenerateToken(payload, []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	return token
}

func doJSON(t *testing.T, h http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func activeUser() *models.User {
	return &models.User{
		ID:        "u-1",
		Email:     "alice@example.com",
		Name:      "Alice",
		Active:    true,
		CreatedAt: time.Now(),
	}
}

// --- login ---

func TestHandleLogin_Success(t *testing.T) {
	rm := &fakeRepoManager{
		users: &fakeUsersRepo{saltOut: []byte("salt"), hashValid: true, userOut: activeUser()},
		roles: &fakeRolesRepo{rolesOut: []models.Role{{ID: "r-1", Code: "admin", Name: "Administrator"}}},
	}
	h, _, _ := newTestServer(t, rm, testConfig())

	rec := doJSON(t, h, http.MethodPost, "/api/users/login", "",
		loginRequest{Email: "alice@example.com", Password: "pw"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Token == "" || resp.User.Email != "alice@example.com" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.User.Roles[0] != "admin" {
		t.Fatalf("roles missing from response: %+v", resp.User)
	}

	payload, err := auth.GetTokenData(resp.Token, []byte(testSecret))
	if err != nil || payload.UserID != "u-1" {
		t.Fatalf("issued token does not verify: %v %+v", err, payload)
	}
}

func TestHandleLogin_FailureHidesAccountExistence(t *testing.T) {
	// unknown email and wrong password must be indistinguishable on the wire
	cases := map[string]*fakeUsersRepo{
		"unknown email":  {saltErr: errNotFoundForTest()},
		"wrong password": {saltOut: []byte("salt"), hashValid: false},
	}

	for name, usersRepo := range cases {
		t.Run(name, func(t *testing.T) {
			rm := &fakeRepoManager{users: usersRepo, roles: &fakeRolesRepo{}}
			h, _, _ := newTestServer(t, rm, testConfig())

			rec := doJSON(t, h, http.MethodPost, "/api/users/login", "",
				loginRequest{Email: "x@example.com", Password: "pw"})

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", rec.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.Error != "wrong email or password" {
				t.Fatalf("leaky error message: %q", resp.Error)
			}
		})
	}
}

func TestHandleLogin_MissingFields(t *testing.T) {
	rm := &fakeRepoManager{users: &fakeUsersRepo{}, roles: &fakeRolesRepo{}}
	h, _, _ := newTestServer(t, rm, testConfig())

	rec := doJSON(t, h, http.MethodPost, "/api/users/login", "", loginRequest{Email: "a@example.com"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleLogin_RateLimited(t *testing.T) {
	rm := &fakeRepoManager{
		users: &fakeUsersRepo{saltOut: []byte("salt"), hashValid: true, userOut: activeUser()},
		roles: &fakeRolesRepo{},
	}
	cfg := testConfig()
	cfg.LoginRatePerMinute = 1
	cfg.LoginRateBurst = 1
	h, _, _ := newTestServer(t, rm, cfg)

	body := loginRequest{Email: "alice@example.com", Password: "pw"}

	if rec := doJSON(t, h, http.MethodPost, "/api/users/login", "", body); rec.Code != http.StatusOK {
		t.Fatalf("first attempt: status = %d", rec.Code)
	}
	rec := doJSON(t, h, http.MethodPost, "/api/users/login", "", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second attempt: status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
}

// --- token middleware ---

func TestAuthMiddleware_RejectsMissingAndBadTokens(t *testing.T) {
	rm := &fakeRepoManager{users: &fakeUsersRepo{}, roles: &fakeRolesRepo{}}
	h, _, _ := newTestServer(t, rm, testConfig())

	if rec := doJSON(t, h, http.MethodGet, "/api/users/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/api/users/me", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", rec.Code)
	}
}

func TestHandleMe(t *testing.T) {
	rm := &fakeRepoManager{users: &fakeUsersRepo{}, roles: &fakeRolesRepo{}}
	h, _, _ := newTestServer(t, rm, testConfig())

	token := issueToken(t, auth.TokenPayload{
		UserID: "u-1", Email: "alice@example.com", Name: "Alice", Active: true, Roles: []string{"editor"},
	})

	rec := doJSON(t, h, http.MethodGet, "/api/users/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp meResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID != "u-1" || resp.Email != "alice@example.com" || len(resp.Roles) != 1 {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

// --- role-gated management endpoints ---

func TestHandleRegister_AdminOnly(t *testing.T) {
	rm := &fakeRepoManager{users: &fakeUsersRepo{}, roles: &fakeRolesRepo{}}
	h, mock, _ := newTestServer(t, rm, testConfig())

	body := registerRequest{Email: "bob@example.com", Name: "Bob", Password: "pw"}

	token := issueToken(t, auth.TokenPayload{UserID: "u-2", Roles: []string{"editor"}})
	if rec := doJSON(t, h, http.MethodPost, "/api/users", token, body); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin: status = %d", rec.Code)
	}

	mock.ExpectBegin()
	mock.ExpectCommit()

	admin := issueToken(t, auth.TokenPayload{UserID: "u-1", Roles: []string{"admin"}})
	rec := doJSON(t, h, http.MethodPost, "/api/users", admin, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin: status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp userResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID == "" || resp.Email != "bob@example.com" || !resp.Active {
		t.Fatalf("unexpected user: %+v", resp)
	}
}

func TestHandleListUsers(t *testing.T) {
	rm := &fakeRepoManager{
		users: &fakeUsersRepo{listOut: []*models.User{activeUser()}, listHasNext: true},
		roles: &fakeRolesRepo{},
	}
	h, _, _ := newTestServer(t, rm, testConfig())

	admin := issueToken(t, auth.TokenPayload{UserID: "u-1", Roles: []string{"admin"}})

	rec := doJSON(t, h, http.MethodGet, "/api/users?limit=5&offset=0", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp listUsersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Users) != 1 || !resp.HasNext {
		t.Fatalf("unexpected page: %+v", resp)
	}

	if rec := doJSON(t, h, http.MethodGet, "/api/users?limit=abc", admin, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad limit: status = %d", rec.Code)
	}

	user := issueToken(t, auth.TokenPayload{UserID: "u-2"})
	if rec := doJSON(t, h, http.MethodGet, "/api/users", user, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin list: status = %d", rec.Code)
	}
}

func TestHandleListRoles(t *testing.T) {
	rm := &fakeRepoManager{
		users: &fakeUsersRepo{},
		roles: &fakeRolesRepo{listOut: []models.Role{{ID: "r-1", Code: "admin", Name: "Administrator"}}},
	}
	h, _, _ := newTestServer(t, rm, testConfig())

	admin := issueToken(t, auth.TokenPayload{UserID: "u-1", Roles: []string{"admin"}})

	rec := doJSON(t, h, http.MethodGet, "/api/roles", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp listRolesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Roles) != 1 || resp.Roles[0].Code != "admin" {
		t.Fatalf("unexpected roles: %+v", resp)
	}
}

// --- self-or-admin endpoints ---

func TestHandleGetUser_SelfOrAdmin(t *testing.T) {
	rm := &fakeRepoManager{users: &fakeUsersRepo{userOut: activeUser()}, roles: &fakeRolesRepo{}}
	h, _, _ := newTestServer(t, rm, testConfig())

	self := issueToken(t, auth.TokenPayload{UserID: "u-1"})
	if rec := doJSON(t, h, http.MethodGet, "/api/users/u-1", self, nil); rec.Code != http.StatusOK {
		t.Fatalf("self: status = %d", rec.Code)
	}

	other := issueToken(t, auth.TokenPayload{UserID: "u-2"})
	if rec := doJSON(t, h, http.MethodGet, "/api/users/u-1", other, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("other: status = %d", rec.Code)
	}

	admin := issueToken(t, auth.TokenPayload{UserID: "u-9", Roles: []string{"admin"}})
	if rec := doJSON(t, h, http.MethodGet, "/api/users/u-1", admin, nil); rec.Code != http.StatusOK {
		t.Fatalf("admin: status = %d", rec.Code)
	}
}

func TestHandleUpdateUser_ActiveFlagIsAdminOnly(t *testing.T) {
	updated := activeUser()
	updated.Name = "Renamed"
	rm := &fakeRepoManager{users: &fakeUsersRepo{updateOut: updated}, roles: &fakeRolesRepo{}}
	h, _, _ := newTestServer(t, rm, testConfig())

	self := issueToken(t, auth.TokenPayload{UserID: "u-1"})
	name := "Renamed"

	rec := doJSON(t, h, http.MethodPut, "/api/users/u-1", self, updateUserRequest{Name: &name})
	if rec.Code != http.StatusOK {
		t.Fatalf("self rename: status = %d", rec.Code)
	}

	inactive := false
	rec = doJSON(t, h, http.MethodPut, "/api/users/u-1", self, updateUserRequest{Active: &inactive})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("self deactivate: status = %d", rec.Code)
	}

	admin := issueToken(t, auth.TokenPayload{UserID: "u-9", Roles: []string{"admin"}})
	rec = doJSON(t, h, http.MethodPut, "/api/users/u-1", admin, updateUserRequest{Active: &inactive})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin deactivate: status = %d", rec.Code)
	}
}

func TestHandleResetPassword_SelfOrAdmin(t *testing.T) {
	rm := &fakeRepoManager{users: &fakeUsersRepo{userOut: activeUser()}, roles: &fakeRolesRepo{}}
	h, mock, _ := newTestServer(t, rm, testConfig())

	body := resetPasswordRequest{Email: "alice@example.com", Password: "new-pw"}

	mock.ExpectBegin()
	mock.ExpectCommit()
	self := issueToken(t, auth.TokenPayload{UserID: "u-1", Email: "alice@example.com"})
	if rec := doJSON(t, h, http.MethodPost, "/api/users/reset-password", self, body); rec.Code != http.StatusOK {
		t.Fatalf("self: status = %d, body %s", rec.Code, rec.Body.String())
	}

	other := issueToken(t, auth.TokenPayload{UserID: "u-2", Email: "bob@example.com"})
	if rec := doJSON(t, h, http.MethodPost, "/api/users/reset-password", other, body); rec.Code != http.StatusForbidden {
		t.Fatalf("other: status = %d", rec.Code)
	}

	mock.ExpectBegin()
	mock.ExpectCommit()
	admin := issueToken(t, auth.TokenPayload{UserID: "u-9", Email: "root@example.com", Roles: []string{"admin"}})
	if rec := doJSON(t, h, http.MethodPost, "/api/users/reset-password", admin, body); rec.Code != http.StatusOK {
		t.Fatalf("admin: status = %d", rec.Code)
	}
}

// --- error mapping ---

func TestErrorMapping(t *testing.T) {
	rm := &fakeRepoManager{users: &fakeUsersRepo{userErr: errNotFoundForTest()}, roles: &fakeRolesRepo{}}
	h, _, _ := newTestServer(t, rm, testConfig())

	admin := issueToken(t, auth.TokenPayload{UserID: "u-9", Roles: []string{"admin"}})
	if rec := doJSON(t, h, http.MethodGet, "/api/users/ghost", admin, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("not found: status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rm := &fakeRepoManager{users: &fakeUsersRepo{}, roles: &fakeRolesRepo{}}
	h, _, _ := newTestServer(t, rm, testConfig())

	// a failed login should show up in the failure counter
	doJSON(t, h, http.MethodPost, "/api/users/login", "",
		loginRequest{Email: "ghost@example.com", Password: "pw"})

	rec := doJSON(t, h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "userapi_http_requests_total") {
		t.Fatal("request counter missing from exposition")
	}
	if !strings.Contains(body, "userapi_login_failures_total 1") {
		t.Fatalf("login failure counter missing:\n%s", body)
	}
}

package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"promo-code-service/internal/core/auth"
	"promo-code-service/internal/core/config"
	"promo-code-service/internal/domain"
	"promo-code-service/internal/service"
	"promo-code-service/internal/transport/http/handler"
	"promo-code-service/internal/transport/http/router"
)

// In-memory implementations backing the full HTTP stack under test.

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) GetOrLoad(ctx context.Context, key string, _ time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	m.mu.Lock()
	b, ok := m.data[key]
	m.mu.Unlock()
	if ok {
		return b, nil
	}
	b, err := load(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.data[key] = b
	m.mu.Unlock()
	return b, nil
}

func (m *memStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type usageRow struct{ promoID, userID string }

type memPromoRepo struct {
	mu     sync.Mutex
	byCode map[string]*domain.PromoCode
	grants map[string][]string
	usages []usageRow
}

func (r *memPromoRepo) Create(_ context.Context, p *domain.PromoCode, grantUserIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.byCode[p.Code] = &cp
	if len(grantUserIDs) > 0 {
		r.grants[p.ID] = append([]string(nil), grantUserIDs...)
	}
	return nil
}

func (r *memPromoRepo) FindByCode(_ context.Context, code string) (*domain.PromoCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byCode[code]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memPromoRepo) CodeExists(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byCode[code]
	return ok, nil
}

func (r *memPromoRepo) List(_ context.Context) ([]domain.PromoCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PromoCode, 0, len(r.byCode))
	for _, p := range r.byCode {
		out = append(out, *p)
	}
	return out, nil
}

func (r *memPromoRepo) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byCode {
		if p.ID == id {
			p.IsActive = active
			return nil
		}
	}
	return errors.New("record not found")
}

func (r *memPromoRepo) ListGrantUserIDs(_ context.Context, promoID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.grants[promoID]...), nil
}

func (r *memPromoRepo) HasAnyGrant(_ context.Context, promoID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.grants[promoID]) > 0, nil
}

func (r *memPromoRepo) HasGrant(_ context.Context, promoID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.grants[promoID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memPromoRepo) CountUsages(_ context.Context, promoID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, u := range r.usages {
		if u.promoID == promoID && u.userID == userID {
			n++
		}
	}
	return n, nil
}

func (r *memPromoRepo) AppendUsage(_ context.Context, promoID, userID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usages = append(r.usages, usageRow{promoID, userID})
	return nil
}

func (r *memPromoRepo) IncrementUsageCounter(_ context.Context, promoID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byCode {
		if p.ID == promoID {
			p.CurrentUsages++
			return nil
		}
	}
	return errors.New("record not found")
}

type memUserRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.User
}

func (r *memUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.byID[u.ID] = &cp
	return nil
}

func (r *memUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) List(_ context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.User, 0, len(r.byID))
	for _, u := range r.byID {
		out = append(out, *u)
	}
	return out, nil
}

func (r *memUserRepo) ListByIDs(_ context.Context, ids []string) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.User
	for _, id := range ids {
		if u, ok := r.byID[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *memUserRepo) BumpTokenVersion(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return errors.New("record not found")
	}
	u.TokenVersion++
	return nil
}

type testAPI struct {
	t *testing.T
	r *gin.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pr := &memPromoRepo{byCode: map[string]*domain.PromoCode{}, grants: map[string][]string{}}
	ur := &memUserRepo{byID: map[string]*domain.User{}}
	st := &memStore{data: map[string][]byte{}}
	log := zap.NewNop()
	jwter := &auth.JWTer{Secret: []byte("test-secret"), Issuer: "test", TTL: time.Hour}

	userSvc := service.NewUserService(ur, jwter, st, log)
	promoSvc := service.NewPromoCodeService(pr, ur, st, log)

	cfg := &config.Config{}
	cfg.Throttle.ValidatePerUserPerMin = 1000
	cfg.Throttle.ValidatePerIPPerMin = 1000

	r := router.NewAPIEngine(log, cfg, jwter, userSvc,
		handler.NewAuthHandler(userSvc),
		handler.NewPromoCodeHandler(promoSvc))
	return &testAPI{t: t, r: r}
}

func (a *testAPI) do(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	a.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)

	var out map[string]any
	if len(w.Body.Bytes()) > 0 && w.Body.Bytes()[0] == '{' {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (a *testAPI) register(name, email string, admin bool) string {
	a.t.Helper()
	w, out := a.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"name":                  name,
		"email":                 email,
		"password":              "secret-password",
		"password_confirmation": "secret-password",
		"is_admin":              admin,
	})
	if w.Code != http.StatusCreated {
		a.t.Fatalf("register %s: status %d body %s", email, w.Code, w.Body.String())
	}
	token, _ := out["accessToken"].(string)
	if token == "" {
		a.t.Fatalf("register %s: no token in %s", email, w.Body.String())
	}
	return token
}

func (a *testAPI) createPromo(adminToken string, body gin.H) map[string]any {
	a.t.Helper()
	w, out := a.do(http.MethodPost, "/api/auth/promo-codes", adminToken, body)
	if w.Code != http.StatusCreated {
		a.t.Fatalf("create promo: status %d body %s", w.Code, w.Body.String())
	}
	return out
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	w, _ := api.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	api := newTestAPI(t)

	w, out := api.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"email":                 "not-an-email",
		"password":              "short",
		"password_confirmation": "different",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	errs, _ := out["errors"].(map[string]any)
	for _, field := range []string{"name", "email", "password", "password_confirmation"} {
		if _, ok := errs[field]; !ok {
			t.Errorf("missing error for %q: %v", field, errs)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	api := newTestAPI(t)
	api.register("Ann", "ann@x.test", false)

	w, out := api.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"name":                  "Ann Again",
		"email":                 "ann@x.test",
		"password":              "secret-password",
		"password_confirmation": "secret-password",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	errs, _ := out["errors"].(map[string]any)
	if _, ok := errs["email"]; !ok {
		t.Fatalf("expected an email error, got %v", errs)
	}
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t)
	api.register("Ann", "ann@x.test", false)

	w, out := api.do(http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "ann@x.test", "password": "secret-password",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	if out["token_type"] != "Bearer" || out["accessToken"] == "" {
		t.Fatalf("body = %s", w.Body.String())
	}

	w, _ = api.do(http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "ann@x.test", "password": "wrong-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", w.Code)
	}
}

func TestAuthBoundaries(t *testing.T) {
	api := newTestAPI(t)
	userToken := api.register("Ann", "ann@x.test", false)

	// No token.
	w, _ := api.do(http.MethodPost, "/api/auth/promo-codes/use", "", gin.H{"code": "X"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", w.Code)
	}

	// Garbage token.
	w, _ = api.do(http.MethodPost, "/api/auth/promo-codes/use", "garbage", gin.H{"code": "X"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d", w.Code)
	}

	// Valid token, not an admin.
	w, _ = api.do(http.MethodPost, "/api/auth/promo-codes", userToken, gin.H{"type": "value", "value": 5})
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin status = %d", w.Code)
	}
	w, _ = api.do(http.MethodGet, "/api/auth/users", userToken, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin users status = %d", w.Code)
	}
}

func TestLogoutRevokesOutstandingTokens(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Ann", "ann@x.test", true)

	w, _ := api.do(http.MethodGet, "/api/auth/user", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("before logout status = %d", w.Code)
	}

	w, _ = api.do(http.MethodPost, "/api/auth/logout", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d body %s", w.Code, w.Body.String())
	}

	w, _ = api.do(http.MethodGet, "/api/auth/user", token, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("after logout status = %d, token should be revoked", w.Code)
	}

	// Logging back in issues a working token against the bumped version.
	w, out := api.do(http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "ann@x.test", "password": "secret-password",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("relogin status = %d", w.Code)
	}
	fresh, _ := out["accessToken"].(string)
	w, _ = api.do(http.MethodGet, "/api/auth/user", fresh, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("fresh token status = %d", w.Code)
	}
}

func TestPromoCodeLifecycle(t *testing.T) {
	api := newTestAPI(t)
	admin := api.register("Admin", "admin@x.test", true)
	user := api.register("Ann", "ann@x.test", false)

	out := api.createPromo(admin, gin.H{"code": "SAVE20", "type": "percentage", "value": 20})
	if out["message"] != "Promo code created successfully" {
		t.Fatalf("create body = %v", out)
	}

	// Preview.
	w, out := api.do(http.MethodPost, "/api/auth/promo-codes/validate", user, gin.H{
		"price": 250, "promo_code": "SAVE20",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("validate status = %d body %s", w.Code, w.Body.String())
	}
	if out["price"] != 250.0 || out["promocode_discounted_amount"] != 50.0 || out["final_price"] != 200.0 {
		t.Fatalf("quote = %v", out)
	}

	// Unknown code.
	w, out = api.do(http.MethodPost, "/api/auth/promo-codes/validate", user, gin.H{
		"price": 100, "promo_code": "NOPE",
	})
	if w.Code != http.StatusNotFound || out["error"] != "PROMO_CODE_NOT_FOUND" {
		t.Fatalf("unknown code: status %d body %s", w.Code, w.Body.String())
	}

	// Redeem once.
	w, out = api.do(http.MethodPost, "/api/auth/promo-codes/use", user, gin.H{"code": "SAVE20"})
	if w.Code != http.StatusOK {
		t.Fatalf("use status = %d body %s", w.Code, w.Body.String())
	}
	applied, _ := out["promo_code"].(map[string]any)
	if applied["code"] != "SAVE20" || applied["type"] != "percentage" {
		t.Fatalf("use body = %s", w.Body.String())
	}

	// A second redemption is refused.
	w, out = api.do(http.MethodPost, "/api/auth/promo-codes/use", user, gin.H{"code": "SAVE20"})
	if w.Code != http.StatusBadRequest || out["error"] != "PROMO_CODE_ALREADY_USED" {
		t.Fatalf("second use: status %d body %s", w.Code, w.Body.String())
	}

	// Deactivation takes effect on the next validation.
	w, _ = api.do(http.MethodPost, "/api/auth/promo-codes/SAVE20/deactivate", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d body %s", w.Code, w.Body.String())
	}
	w, out = api.do(http.MethodPost, "/api/auth/promo-codes/validate", user, gin.H{
		"price": 100, "promo_code": "SAVE20",
	})
	if w.Code != http.StatusNotFound || out["error"] != "PROMO_CODE_INACTIVE" {
		t.Fatalf("validate after deactivate: status %d body %s", w.Code, w.Body.String())
	}
}

func TestRestrictedPromoCode(t *testing.T) {
	api := newTestAPI(t)
	admin := api.register("Admin", "admin@x.test", true)
	granted := api.register("Granted", "granted@x.test", false)
	other := api.register("Other", "other@x.test", false)

	// The grantee's id comes from the admin listing.
	w, _ := api.do(http.MethodGet, "/api/auth/users", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("users status = %d", w.Code)
	}
	var rows []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("users body: %v", err)
	}
	var grantedID string
	for _, r := range rows {
		if r["email"] == "granted@x.test" {
			grantedID, _ = r["id"].(string)
		}
	}
	if grantedID == "" {
		t.Fatalf("grantee not listed: %s", w.Body.String())
	}

	api.createPromo(admin, gin.H{
		"code": "VIP10", "type": "value", "value": 10,
		"user_ids": []string{grantedID},
	})

	w, out := api.do(http.MethodPost, "/api/auth/promo-codes/validate", other, gin.H{
		"price": 50, "promo_code": "VIP10",
	})
	if w.Code != http.StatusNotFound || out["error"] != "PROMO_CODE_NOT_AVAILABLE_FOR_USER" {
		t.Fatalf("outsider: status %d body %s", w.Code, w.Body.String())
	}

	w, out = api.do(http.MethodPost, "/api/auth/promo-codes/validate", granted, gin.H{
		"price": 50, "promo_code": "VIP10",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("grantee: status %d body %s", w.Code, w.Body.String())
	}
	if out["final_price"] != 40.0 {
		t.Fatalf("quote = %v", out)
	}
}

func TestCreatePromoValidation(t *testing.T) {
	api := newTestAPI(t)
	admin := api.register("Admin", "admin@x.test", true)

	// Binding-level failure.
	w, out := api.do(http.MethodPost, "/api/auth/promo-codes", admin, gin.H{
		"type": "bogus", "value": -1,
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	errs, _ := out["errors"].(map[string]any)
	if _, ok := errs["type"]; !ok {
		t.Fatalf("expected a type error, got %v", errs)
	}

	// Business-rule failure.
	w, out = api.do(http.MethodPost, "/api/auth/promo-codes", admin, gin.H{
		"type": "percentage", "value": 150,
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	if out["message"] != "Percentage value cannot exceed 100" {
		t.Fatalf("body = %s", w.Body.String())
	}

	// Unknown grantee.
	w, out = api.do(http.MethodPost, "/api/auth/promo-codes", admin, gin.H{
		"type": "value", "value": 5, "user_ids": []string{"ghost"},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	errs, _ = out["errors"].(map[string]any)
	if _, ok := errs["user_ids"]; !ok {
		t.Fatalf("expected a user_ids error, got %v", errs)
	}
}

func TestValidateThrottle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	pr := &memPromoRepo{byCode: map[string]*domain.PromoCode{}, grants: map[string][]string{}}
	ur := &memUserRepo{byID: map[string]*domain.User{}}
	st := &memStore{data: map[string][]byte{}}
	log := zap.NewNop()
	jwter := &auth.JWTer{Secret: []byte("test-secret"), Issuer: "test", TTL: time.Hour}
	userSvc := service.NewUserService(ur, jwter, st, log)
	promoSvc := service.NewPromoCodeService(pr, ur, st, log)

	cfg := &config.Config{}
	cfg.Throttle.ValidatePerUserPerMin = 3
	cfg.Throttle.ValidatePerIPPerMin = 1000

	api := &testAPI{t: t, r: router.NewAPIEngine(log, cfg, jwter, userSvc,
		handler.NewAuthHandler(userSvc),
		handler.NewPromoCodeHandler(promoSvc))}

	token := api.register("Ann", "ann@x.test", false)

	for i := 0; i < 3; i++ {
		w, _ := api.do(http.MethodPost, "/api/auth/promo-codes/validate", token, gin.H{
			"price": 10, "promo_code": "NOPE",
		})
		if w.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d throttled within the burst", i)
		}
	}
	w, _ := api.do(http.MethodPost, "/api/auth/promo-codes/validate", token, gin.H{
		"price": 10, "promo_code": "NOPE",
	})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
}

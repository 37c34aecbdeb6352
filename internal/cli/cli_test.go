package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnetifi-service/internal/dashboard/session"
	"mnetifi-service/internal/domain/auth"
	"mnetifi-service/internal/pkg/jwt"
)

type fakeAPI struct {
	*http.ServeMux
	srv  *httptest.Server
	hits atomic.Int64
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{ServeMux: http.NewServeMux()}
	api.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.hits.Add(1)
		api.ServeMux.ServeHTTP(w, r)
	}))
	t.Cleanup(api.srv.Close)
	return api
}

func ok(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "message": "ok", "data": data})
}

func fail(w http.ResponseWriter, status int, msg string, fields map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]interface{}{"success": false, "message": msg, "error": msg}
	if fields != nil {
		body["data"] = map[string]interface{}{"fields": fields}
	}
	_ = json.NewEncoder(w).Encode(body)
}

func page(items interface{}, total, pageNo, totalPages int) map[string]interface{} {
	return map[string]interface{}{"items": items, "total": total, "page": pageNo, "page_size": 20, "total_pages": totalPages}
}

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes mnetictl against api with a session file under dir.
func run(t *testing.T, api *fakeAPI, dir, stdin string, args ...string) result {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--api", api.srv.URL, "--session", filepath.Join(dir, "session.yaml")}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

func signIn(t *testing.T, dir string, roles ...string) {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{jwt.RoleAdmin}
	}
	store := session.NewFileStore(filepath.Join(dir, "session.yaml"))
	_, err := session.Save(store, &auth.UserInfo{IdentityID: 1, TenantID: 7, Email: "owner@kahawa.co.ke", Roles: roles}, "tok", "refresh", time.Now())
	require.NoError(t, err)
}

func TestLoginWithTwoFactorStoresSession(t *testing.T) {
	api := newFakeAPI(t)
	api.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req auth.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "owner@kahawa.co.ke", req.Email)
		assert.Equal(t, "S3cret!pw", req.Password)
		assert.Equal(t, "mnetictl", req.Device)
		ok(w, http.StatusOK, auth.LoginResponse{TwoFactorRequired: true, ChallengeToken: "chal"})
	})
	api.HandleFunc("POST /api/auth/2fa/verify", func(w http.ResponseWriter, r *http.Request) {
		var req auth.TwoFactorLoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "chal", req.ChallengeToken)
		assert.Equal(t, "123456", req.Code)
		ok(w, http.StatusOK, auth.LoginResponse{
			AccessToken:  "tok",
			RefreshToken: "refresh",
			User:         &auth.UserInfo{IdentityID: 1, TenantID: 7, Email: "owner@kahawa.co.ke", Roles: []string{jwt.RoleAdmin}},
		})
	})

	dir := t.TempDir()
	res := run(t, api, dir, "owner@kahawa.co.ke\nS3cret!pw\n123456\n", "login")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Signed in as owner@kahawa.co.ke (admin).")

	s, err := session.NewFileStore(filepath.Join(dir, "session.yaml")).Get(session.KeyAdmin)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "tok", s.Token)
	assert.Equal(t, "refresh", s.RefreshToken)
}

func TestLoginFailureIsReported(t *testing.T) {
	api := newFakeAPI(t)
	api.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusUnauthorized, "invalid email or password", nil)
	})

	res := run(t, api, t.TempDir(), "", "login", "--email", "owner@kahawa.co.ke", "--password", "nope")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "Login failed: invalid email or password")
}

func TestDataCommandsNeedSession(t *testing.T) {
	api := newFakeAPI(t)
	res := run(t, api, t.TempDir(), "", "plans", "list")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "not signed in")
	assert.Zero(t, api.hits.Load())
}

func TestIdleAdminSessionIsCleared(t *testing.T) {
	api := newFakeAPI(t)
	dir := t.TempDir()
	store := session.NewFileStore(filepath.Join(dir, "session.yaml"))
	require.NoError(t, store.Set(session.KeyAdmin, &session.Session{
		User:         &auth.UserInfo{Email: "owner@kahawa.co.ke", Roles: []string{jwt.RoleAdmin}},
		Token:        "tok",
		LastActivity: time.Now().Add(-2 * time.Hour),
	}))

	res := run(t, api, dir, "", "--idle", "1m", "plans", "list")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "expired after inactivity")

	s, err := store.Get(session.KeyAdmin)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestPlansListRendersTable(t *testing.T) {
	api := newFakeAPI(t)
	api.HandleFunc("GET /api/plans", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "HOTSPOT", r.URL.Query().Get("type"))
		ok(w, http.StatusOK, page([]map[string]interface{}{
			{"id": 3, "name": "Daily", "plan_type": "HOTSPOT", "price": "50", "duration_seconds": 86400, "speed_mbps": 5, "max_devices": 2, "is_active": true},
			{"id": 4, "name": "1 Hour", "plan_type": "HOTSPOT", "price": "20", "duration_seconds": 3600, "max_devices": 1, "is_active": false},
		}, 2, 1, 1))
	})
	dir := t.TempDir()
	signIn(t, dir)

	res := run(t, api, dir, "", "plans", "list", "--type", "HOTSPOT")
	require.NoError(t, res.err)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"ID", "NAME", "TYPE", "PRICE", "DURATION", "MBPS", "DEVICES", "ACTIVE"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"3", "Daily", "HOTSPOT", "KES", "50", "1", "day", "5", "2", "yes"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"4", "1", "Hour", "HOTSPOT", "KES", "20", "1", "hour", "-", "1", "no"}, strings.Fields(lines[2]))
}

func TestPlansListJSON(t *testing.T) {
	api := newFakeAPI(t)
	api.HandleFunc("GET /api/plans", func(w http.ResponseWriter, r *http.Request) {
		ok(w, http.StatusOK, page([]map[string]interface{}{{"id": 3, "name": "Daily", "price": "50"}}, 1, 1, 1))
	})
	dir := t.TempDir()
	signIn(t, dir)

	res := run(t, api, dir, "", "--output", "json", "plans", "list")
	require.NoError(t, res.err)
	var out struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, 1, out.Total)
	assert.Equal(t, "Daily", out.Items[0].Name)
}

func TestPlansCreateSendsIdempotencyKey(t *testing.T) {
	api := newFakeAPI(t)
	api.HandleFunc("POST /api/plans", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Daily", body["name"])
		assert.Equal(t, "50", body["price"])
		assert.Equal(t, float64(86400), body["duration_seconds"])
		assert.Equal(t, float64(5), body["speed_mbps"])
		ok(w, http.StatusCreated, map[string]interface{}{"id": 42, "name": "Daily"})
	})
	dir := t.TempDir()
	signIn(t, dir)

	res := run(t, api, dir, "", "plans", "create", "--name", "Daily", "--price", "50", "--duration", "24h", "--speed", "5")
	require.NoError(t, res.err)
	assert.Equal(t, "42\n", res.stdout)
	assert.Contains(t, res.stderr, "Plan created: Daily")
}

func TestPlansCreateValidatesBeforeSending(t *testing.T) {
	api := newFakeAPI(t)
	dir := t.TempDir()
	signIn(t, dir)

	res := run(t, api, dir, "", "plans", "create", "--name", "Free", "--price", "0")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "price: price must be greater than zero")
	assert.Zero(t, api.hits.Load())
}

func TestPlanDeleteConflictIsNotified(t *testing.T) {
	api := newFakeAPI(t)
	api.HandleFunc("DELETE /api/plans/3", func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusConflict, "plan is used by 2 voucher batches", nil)
	})
	dir := t.TempDir()
	signIn(t, dir)

	res := run(t, api, dir, "", "plans", "delete", "3")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "Failed to delete plan: plan is used by 2 voucher batches")
}

func TestBatchCreateWaitsForGeneration(t *testing.T) {
	batchPollInterval = 5 * time.Millisecond
	t.Cleanup(func() { batchPollInterval = time.Second })

	var reads atomic.Int64
	api := newFakeAPI(t)
	api.HandleFunc("POST /api/voucher-batches", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CAFE", body["prefix"])
		ok(w, http.StatusAccepted, map[string]interface{}{"id": 9, "reference": "B-0009", "status": "PENDING"})
	})
	api.HandleFunc("GET /api/voucher-batches/9", func(w http.ResponseWriter, r *http.Request) {
		status := "GENERATING"
		if reads.Add(1) >= 3 {
			status = "READY"
		}
		ok(w, http.StatusOK, map[string]interface{}{"id": 9, "reference": "B-0009", "status": status})
	})
	dir := t.TempDir()
	signIn(t, dir)

	res := run(t, api, dir, "", "vouchers", "batches", "create", "--plan", "3", "--quantity", "10", "--prefix", "cafe", "--wait")
	require.NoError(t, res.err)
	assert.Equal(t, "batch 9 (B-0009): READY\n", res.stdout)
	assert.GreaterOrEqual(t, reads.Load(), int64(3))
}

func TestVouchersExportCSV(t *testing.T) {
	api := newFakeAPI(t)
	api.HandleFunc("GET /api/voucher-batches/5/vouchers", func(w http.ResponseWriter, r *http.Request) {
		ok(w, http.StatusOK, []map[string]interface{}{
			{"code": "CAFEAB12CD34", "batch_id": 5, "plan_id": 3, "status": "AVAILABLE", "valid_until": "2026-04-01T00:00:00Z"},
			{"code": "CAFEZZ99YY88", "batch_id": 5, "plan_id": 3, "status": "USED", "used_at": "2026-03-02T08:15:00Z"},
		})
	})
	dir := t.TempDir()
	signIn(t, dir)

	res := run(t, api, dir, "", "vouchers", "export", "5")
	require.NoError(t, res.err)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Code,Batch,Plan,Status,Valid Until,Used At", lines[0])
	assert.Equal(t, "CAFEAB12CD34,5,3,AVAILABLE,2026-04-01 00:00:00,", lines[1])
	assert.Equal(t, "CAFEZZ99YY88,5,3,USED,,2026-03-02 08:15:00", lines[2])
}

func TestTransactionsExportReadsEveryPage(t *testing.T) {
	api := newFakeAPI(t)
	api.HandleFunc("GET /api/transactions", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "100", q.Get("page_size"))
		assert.Equal(t, "COMPLETED", q.Get("status"))
		switch q.Get("page") {
		case "1":
			ok(w, http.StatusOK, page([]map[string]interface{}{{"id": 1, "user_phone": "254712345678", "amount": "50", "status": "COMPLETED"}}, 2, 1, 2))
		default:
			ok(w, http.StatusOK, page([]map[string]interface{}{{"id": 2, "user_phone": "254798765432", "amount": "20", "status": "COMPLETED"}}, 2, 2, 2))
		}
	})
	dir := t.TempDir()
	signIn(t, dir)

	out := filepath.Join(dir, "tx.xls")
	res := run(t, api, dir, "", "transactions", "export", "--status", "COMPLETED", "--format", "xls", "-f", out)
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "wrote 2 rows to "+out)
}

func TestTransactionsExportRejectsBadDate(t *testing.T) {
	api := newFakeAPI(t)
	dir := t.TempDir()
	signIn(t, dir)

	res := run(t, api, dir, "", "transactions", "export", "--from", "01/03/2026")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "YYYY-MM-DD")
}

func TestTransactionsWatchRendersFirstPage(t *testing.T) {
	api := newFakeAPI(t)
	api.HandleFunc("GET /api/transactions", func(w http.ResponseWriter, r *http.Request) {
		ok(w, http.StatusOK, page([]map[string]interface{}{
			{"id": 11, "user_phone": "254712345678", "amount": "50", "status": "PENDING", "reconciliation_status": "PENDING"},
		}, 1, 1, 1))
	})
	dir := t.TempDir()
	signIn(t, dir)

	res := run(t, api, dir, "", "transactions", "watch", "--live=false", "--updates", "1")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "1 transactions")
	assert.Contains(t, res.stdout, "254712345678")
}

func TestTerminalExecRejectsDeniedCommandLocally(t *testing.T) {
	api := newFakeAPI(t)
	dir := t.TempDir()
	signIn(t, dir)

	res := run(t, api, dir, "", "terminal", "exec", "--hotspot", "2", "/system", "reboot")
	require.Error(t, res.err)
	assert.Zero(t, api.hits.Load())
}

func TestTerminalShellKeepsOrder(t *testing.T) {
	api := newFakeAPI(t)
	var mu sync.Mutex
	var seen []string
	api.HandleFunc("POST /api/terminal/execute", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		seen = append(seen, body["command"].(string))
		n := len(seen)
		mu.Unlock()
		ok(w, http.StatusOK, map[string]interface{}{
			"hotspot_id": 2, "sequence": n, "command": body["command"], "output": "done", "success": true,
		})
	})
	dir := t.TempDir()
	signIn(t, dir)

	res := run(t, api, dir, "/ip hotspot active print\n\n/interface print\nhistory\nexit\n", "terminal", "shell", "--hotspot", "2")
	require.NoError(t, res.err)
	assert.Equal(t, []string{"/ip hotspot active print", "/interface print"}, seen)
	assert.Contains(t, res.stdout, "  1  /ip hotspot active print\n  2  /interface print\n")
}

func TestTenantsCommandsUseSuperAdminSession(t *testing.T) {
	api := newFakeAPI(t)
	api.HandleFunc("GET /api/superadmin/tenants", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SUSPENDED", r.URL.Query().Get("status"))
		ok(w, http.StatusOK, page([]map[string]interface{}{
			{"id": 7, "name": "Kahawa Cafe", "subdomain": "kahawa", "subscription_tier": "PRO", "status": "SUSPENDED"},
		}, 1, 1, 1))
	})

	dir := t.TempDir()
	signIn(t, dir)
	res := run(t, api, dir, "", "tenants", "list", "--status", "suspended")
	require.Error(t, res.err, "an admin session must not reach super admin commands")
	assert.Zero(t, api.hits.Load())

	signIn(t, dir, jwt.RoleSuperAdmin)
	res = run(t, api, dir, "", "tenants", "list", "--status", "suspended")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Kahawa Cafe")
	assert.Contains(t, res.stdout, "SUSPENDED")
}

func TestTenantsSetTierValidatesLocally(t *testing.T) {
	api := newFakeAPI(t)
	dir := t.TempDir()
	signIn(t, dir, jwt.RoleSuperAdmin)

	res := run(t, api, dir, "", "tenants", "set-tier", "7", "platinum")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), `invalid tier "platinum"`)
	assert.Zero(t, api.hits.Load())
}

func TestRegisterReturnsToStepWithServerError(t *testing.T) {
	api := newFakeAPI(t)
	var steps []string
	api.HandleFunc("POST /api/auth/register/validate", func(w http.ResponseWriter, r *http.Request) {
		steps = append(steps, r.URL.Query().Get("step"))
		ok(w, http.StatusOK, nil)
	})
	var registers int
	api.HandleFunc("POST /api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		registers++
		var req auth.RegisterRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0712345678", req.Plan.PaymentPhone)
		if registers == 1 {
			assert.Equal(t, "kahawa-cafe", req.Business.Subdomain)
			fail(w, http.StatusConflict, "subdomain is taken", map[string]string{"subdomain": "subdomain is taken"})
			return
		}
		assert.Equal(t, "kahawa2", req.Business.Subdomain)
		ok(w, http.StatusCreated, auth.RegisterResponse{TenantID: 7, RequiresVerification: true})
	})

	stdin := strings.Join([]string{
		// business
		"Kahawa Cafe", "", "0712345678", "hi@kahawa.co.ke", "",
		// admin
		"Jane Wanjiru", "", "Str0ng!Pass", "Str0ng!Pass",
		// plan
		"basic", "",
		// back at business after the conflict
		"", "kahawa2", "", "", "",
		"", "", "Str0ng!Pass", "Str0ng!Pass",
		"", "",
	}, "\n") + "\n"

	res := run(t, api, t.TempDir(), stdin, "register")
	require.NoError(t, res.err)
	assert.Equal(t, 2, registers)
	assert.Contains(t, res.stderr, "subdomain: subdomain is taken")
	assert.Contains(t, res.stdout, "Business registered (tenant 7). Check hi@kahawa.co.ke for a verification link")
	assert.Equal(t, []string{"1", "2", "3", "1", "2", "3"}, steps)
}

func TestUnknownOutputFormat(t *testing.T) {
	res := run(t, newFakeAPI(t), t.TempDir(), "", "--output", "yaml", "version")
	require.Error(t, res.err)
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                  "-",
		time.Minute:        "1 minute",
		30 * time.Minute:   "30 minutes",
		3 * time.Hour:      "3 hours",
		24 * time.Hour:     "1 day",
		7 * 24 * time.Hour: "7 days",
		90 * time.Minute:   "90 minutes",
	}
	for d, want := range cases {
		assert.Equal(t, want, formatDuration(d), d.String())
	}
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "KES 50", formatPrice(decimal.NewFromInt(50)))
	assert.Equal(t, "KES 49.50", formatPrice(decimal.RequireFromString("49.5")))
}

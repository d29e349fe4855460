package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"bluecarbon-registry/config"
	"bluecarbon-registry/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig runs the whole stack in memory with fast anchoring.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode, ShutdownTimeout: 5 * time.Second},
		JWT:    config.JWTConfig{Secret: "integration-secret", Expiry: time.Hour, Issuer: "bluecarbon-registry"},
		Anchoring: config.AnchoringConfig{
			MaxAttempts:    3,
			InitialBackoff: 5 * time.Millisecond,
			MaxBackoff:     20 * time.Millisecond,
			PollInterval:   10 * time.Millisecond,
			SubmitTimeout:  time.Second,
			Workers:        2,
			QueueSize:      64,
		},
		Ledger:    config.LedgerConfig{Driver: "memory", FinalityDelay: 5 * time.Millisecond},
		RateLimit: config.RateLimitConfig{Limit: 1000, Window: time.Minute},
	}
}

type testApp struct {
	*app
	server *httptest.Server
}

func startTestApp(t *testing.T, cfg *config.Config) *testApp {
	t.Helper()
	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.start(context.Background()))

	ta := &testApp{app: a, server: httptest.NewServer(a.router)}
	t.Cleanup(func() {
		ta.server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, a.shutdown(ctx))
	})
	return ta
}

func (a *testApp) call(t *testing.T, method, path string, role domain.Role, subject string, body interface{}) (int, json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		tok, _, err := a.tokens.Generate(subject, role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env.Data
}

func project(id string, estimated int64) map[string]interface{} {
	return map[string]interface{}{
		"id":                id,
		"name":              "Mahakam Delta Mangroves",
		"location":          "East Kalimantan",
		"type":              "mangrove",
		"area":              1200.0,
		"estimated_credits": estimated,
		"start_date":        "2023-06-01T00:00:00Z",
		"end_date":          "2043-06-01T00:00:00Z",
	}
}

func anchors(t *testing.T, a *testApp) []domain.AnchorRecord {
	t.Helper()
	code, data := a.call(t, http.MethodGet, "/api/v1/anchors", domain.RoleAdmin, "0xadmin", nil)
	require.Equal(t, http.StatusOK, code)
	var recs []domain.AnchorRecord
	require.NoError(t, json.Unmarshal(data, &recs))
	return recs
}

func TestApp_LifecycleAnchorsToConfirmation(t *testing.T) {
	a := startTestApp(t, testConfig())

	code, _ := a.call(t, http.MethodGet, "/health", "", "", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = a.call(t, http.MethodPost, "/api/v1/projects", domain.RoleProjectOwner, "0xowner", project("MK-1", 5000))
	require.Equal(t, http.StatusCreated, code)

	code, data := a.call(t, http.MethodPost, "/api/v1/projects/MK-1/credits", domain.RoleProjectOwner, "0xowner",
		map[string]interface{}{"amount": 2000, "price": 18.5, "methodology": "VM0033", "vintage": 2024})
	require.Equal(t, http.StatusCreated, code)
	var issued struct {
		Credit domain.Credit `json:"credit"`
	}
	require.NoError(t, json.Unmarshal(data, &issued))
	creditID := issued.Credit.ID

	code, data = a.call(t, http.MethodPost, "/api/v1/reviews", domain.RoleVerifier, "0xverifier",
		map[string]string{"project_id": "MK-1", "credit_id": creditID})
	require.Equal(t, http.StatusCreated, code)
	var report domain.VerificationReport
	require.NoError(t, json.Unmarshal(data, &report))

	code, _ = a.call(t, http.MethodPost, "/api/v1/reviews/"+report.ID+"/decision", domain.RoleVerifier, "0xverifier",
		map[string]string{"decision": "approve"})
	require.Equal(t, http.StatusOK, code)

	code, _ = a.call(t, http.MethodPost, "/api/v1/credits/"+creditID+"/sell", domain.RoleBuyer, "0xbuyer", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = a.call(t, http.MethodPost, "/api/v1/credits/"+creditID+"/retire", domain.RoleBuyer, "0xbuyer", nil)
	require.Equal(t, http.StatusOK, code)

	require.Eventually(t, func() bool {
		recs := anchors(t, a)
		if len(recs) == 0 {
			return false
		}
		for _, rec := range recs {
			if rec.Status != domain.AnchorStatusConfirmed {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	credit, err := a.store.GetCredit(context.Background(), creditID)
	require.NoError(t, err)
	assert.Equal(t, domain.CreditStatusRetired, credit.Status)

	code, _ = a.call(t, http.MethodGet, "/metrics", "", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestApp_ConcurrentIssuanceRespectsCapacity(t *testing.T) {
	a := startTestApp(t, testConfig())

	code, _ := a.call(t, http.MethodPost, "/api/v1/projects", domain.RoleProjectOwner, "0xowner", project("MK-2", 1000))
	require.Equal(t, http.StatusCreated, code)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		over    int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, _ := a.call(t, http.MethodPost, "/api/v1/projects/MK-2/credits", domain.RoleProjectOwner, "0xowner",
				map[string]interface{}{"amount": 100, "methodology": "VM0033", "vintage": 2024})
			mu.Lock()
			defer mu.Unlock()
			switch code {
			case http.StatusCreated:
				created++
			case http.StatusUnprocessableEntity:
				over++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, created)
	assert.Equal(t, 10, over)

	var total int64
	for _, c := range a.store.Snapshot(context.Background()).Credits {
		if c.ProjectID == "MK-2" {
			total += c.Amount
		}
	}
	assert.Equal(t, int64(1000), total)
}

func TestApp_RedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Redis = config.RedisConfig{Enabled: true, Host: host, Port: p}
	cfg.RateLimit.Limit = 4
	a := startTestApp(t, cfg)

	code, _ := a.call(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, code)

	for i := 0; i < 4; i++ {
		code, _ = a.call(t, http.MethodGet, "/api/v1/projects", domain.RoleBuyer, "0xbuyer", nil)
		require.Equal(t, http.StatusOK, code)
	}
	code, _ = a.call(t, http.MethodGet, "/api/v1/projects", domain.RoleBuyer, "0xbuyer", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.NotEmpty(t, mr.Keys())
}

func TestNewLedger(t *testing.T) {
	l, err := newLedger(config.LedgerConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.Equal(t, "ledger", l.Name())

	l, err = newLedger(config.LedgerConfig{Driver: "http", Endpoint: "https://ledger.example.org", Secret: "k", Timeout: time.Second})
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = newLedger(config.LedgerConfig{Driver: "http", Endpoint: "ftp://ledger"})
	assert.Error(t, err)

	_, err = newLedger(config.LedgerConfig{Driver: "ipfs"})
	assert.Error(t, err)
}

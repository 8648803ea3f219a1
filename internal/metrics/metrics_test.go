package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
	require.NotNil(t, uploadsTotal)

	before := testutil.ToFloat64(uploadsTotal)
	ObserveUpload()
	assert.Equal(t, before+1, testutil.ToFloat64(uploadsTotal))
}

func TestHandlerServesSeasondbMetrics(t *testing.T) {
	ObserveItem("ok")
	SetQuotaUsed(42)
	ObservePeriod("success", 2*time.Second)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `seasondb_items_total{status="ok"}`))
	assert.True(t, strings.Contains(body, "seasondb_quota_used_percent 42"))
}

func TestPushWithoutURLIsNoop(t *testing.T) {
	assert.NoError(t, Push(context.Background(), ""))
}

func TestPushSendsToGateway(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, Push(context.Background(), srv.URL))
	assert.Equal(t, "/metrics/job/seasondb", gotPath)
}

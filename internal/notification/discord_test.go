package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/seasondb/internal/domain"
)

func newWebhook(t *testing.T, status int) (*httptest.Server, <-chan discordWebhook) {
	t.Helper()
	got := make(chan discordWebhook, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload discordWebhook
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		got <- payload
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestSendSuccess(t *testing.T) {
	srv, got := newWebhook(t, http.StatusNoContent)
	svc := NewService(zerolog.Nop(), srv.URL)

	err := svc.SendSuccess(context.Background(), domain.Statistics{
		PeriodsGenerated: 3,
		Records:          120,
		Uploads:          40,
		CacheHits:        78,
		Fallbacks:        2,
		Duration:         95 * time.Second,
	})
	require.NoError(t, err)

	payload := <-got
	require.Len(t, payload.Embeds, 1)
	embed := payload.Embeds[0]
	assert.Equal(t, "SeasonDB Run Completed", embed.Title)
	assert.Equal(t, 0x00ff00, embed.Color)

	fields := map[string]string{}
	for _, f := range embed.Fields {
		fields[f.Name] = f.Value
	}
	assert.Equal(t, "120", fields["Records"])
	assert.Equal(t, "40 uploaded, 78 cached, 2 fallback", fields["Covers"])
	assert.Equal(t, "1m35s", fields["Duration"])
}

func TestSendSuccessWithFailuresIsOrange(t *testing.T) {
	srv, got := newWebhook(t, http.StatusOK)
	svc := NewService(zerolog.Nop(), srv.URL)

	require.NoError(t, svc.SendSuccess(context.Background(), domain.Statistics{PeriodsFailed: 1}))
	assert.Equal(t, 0xffa500, (<-got).Embeds[0].Color)
}

func TestSendError(t *testing.T) {
	srv, got := newWebhook(t, http.StatusNoContent)
	svc := NewService(zerolog.Nop(), srv.URL)

	require.NoError(t, svc.SendError(context.Background(), errors.New("quota exceeded")))

	embed := (<-got).Embeds[0]
	assert.Equal(t, "SeasonDB Run Failed", embed.Title)
	assert.Contains(t, embed.Description, "quota exceeded")
}

func TestWebhookFailureStatus(t *testing.T) {
	srv, _ := newWebhook(t, http.StatusBadRequest)
	svc := NewService(zerolog.Nop(), srv.URL)

	err := svc.SendError(context.Background(), errors.New("boom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestNoWebhookIsNoop(t *testing.T) {
	svc := NewService(zerolog.Nop(), "")
	assert.NoError(t, svc.SendSuccess(context.Background(), domain.Statistics{}))
	assert.NoError(t, svc.SendError(context.Background(), errors.New("ignored")))
}

func TestSendPeriodFailureCarriesReason(t *testing.T) {
	srv, got := newWebhook(t, http.StatusNoContent)
	svc := NewService(zerolog.Nop(), srv.URL)

	err := svc.SendPeriodFailure(context.Background(), domain.PeriodFailure{
		Period: "2024_春",
		Status: domain.RunStatusAborted,
		Reason: "no evictable partition",
		Err:    domain.ErrQuotaExceeded,
	})
	require.NoError(t, err)

	embed := (<-got).Embeds[0]
	assert.Equal(t, "SeasonDB Period Aborted", embed.Title)

	fields := map[string]string{}
	for _, f := range embed.Fields {
		fields[f.Name] = f.Value
	}
	assert.Equal(t, "2024_春", fields["Period"])
	assert.Equal(t, "aborted", fields["Status"])
	assert.Equal(t, "no evictable partition", fields["Reason"])
	assert.Contains(t, fields["Error"], domain.ErrQuotaExceeded.Error())
}

type stubChannel struct {
	err      error
	failures []domain.PeriodFailure
}

func (c *stubChannel) SendSuccess(context.Context, domain.Statistics) error { return c.err }
func (c *stubChannel) SendError(context.Context, error) error              { return c.err }
func (c *stubChannel) SendPeriodFailure(_ context.Context, f domain.PeriodFailure) error {
	c.failures = append(c.failures, f)
	return c.err
}

func TestServiceNotifiesEveryChannel(t *testing.T) {
	broken := &stubChannel{err: errors.New("channel down")}
	healthy := &stubChannel{}

	svc := newService(zerolog.Nop())
	svc.add("broken", broken)
	svc.add("healthy", healthy)

	failure := domain.PeriodFailure{Period: "2023_秋", Status: domain.RunStatusFailed, Reason: "listing fetch failed"}
	err := svc.SendPeriodFailure(context.Background(), failure)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "period_failure notification via broken")

	assert.Equal(t, []domain.PeriodFailure{failure}, broken.failures)
	assert.Equal(t, []domain.PeriodFailure{failure}, healthy.failures)
}

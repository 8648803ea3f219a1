package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/seasondb/internal/domain"
	"github.com/varoOP/seasondb/pkg/season"
)

const listingPage = `<!doctype html>
<html><body>
<div id="acgs-anime-list">
  <div class="CV-search" acgs-bangumi-data-id="101">
    <div class="overflow-hidden anime_cover_image"><img src="https://img.example/101.jpg"></div>
    <h3 class="entity_localized_name">葬送的芙莉蓮</h3>
    <div class="time_today main_time">每週五 23時00分</div>
    <div class="anime_story">旅程結束之後的故事。</div>
  </div>
  <div class="CV-search" acgs-bangumi-data-id="102">
    <h3 class="entity_localized_name">No Cover</h3>
  </div>
</div>
</body></html>`

func newService(url string) Service {
	return NewService(zerolog.Nop(), Options{
		BaseURL:        url,
		Timeout:        time.Second,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
	})
}

func TestListingURL(t *testing.T) {
	s := NewService(zerolog.Nop(), Options{BaseURL: "https://acgsecrets.hk/bangumi"})
	assert.Equal(t, "https://acgsecrets.hk/bangumi/202404/", s.ListingURL(season.Period{Year: 2024, Season: season.Spring}))
	assert.Equal(t, "https://acgsecrets.hk/bangumi/201910/", s.ListingURL(season.Period{Year: 2019, Season: season.Autumn}))
}

func TestFetchReturnsItemsInPageOrder(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(listingPage))
	}))
	defer srv.Close()

	items, err := newService(srv.URL).Fetch(context.Background(), season.Period{Year: 2023, Season: season.Autumn})
	require.NoError(t, err)
	assert.Equal(t, "/202310/", path)
	require.Len(t, items, 2)
	assert.Equal(t, 0, items[0].Index)
	assert.Contains(t, items[0].HTML, `acgs-bangumi-data-id="101"`)
	assert.Contains(t, items[1].HTML, "No Cover")
}

func TestFetchEmptyListingIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>coming soon</p></body></html>`))
	}))
	defer srv.Close()

	items, err := newService(srv.URL).Fetch(context.Background(), season.Period{Year: 2030, Season: season.Winter})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(listingPage))
	}))
	defer srv.Close()

	items, err := newService(srv.URL).Fetch(context.Background(), season.Period{Year: 2024, Season: season.Winter})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newService(srv.URL).Fetch(context.Background(), season.Period{Year: 2024, Season: season.Winter})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrListingNotFound))
	assert.Equal(t, int32(1), calls.Load())
}

func TestExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(listingPage))
	}))
	defer srv.Close()

	items, err := newService(srv.URL).Fetch(context.Background(), season.Period{Year: 2023, Season: season.Autumn})
	require.NoError(t, err)
	require.Len(t, items, 2)

	first, err := Extract(items[0])
	require.NoError(t, err)
	assert.Equal(t, "101", first.ID)
	assert.Equal(t, "葬送的芙莉蓮", first.Name)
	assert.Equal(t, "https://img.example/101.jpg", first.ImageURL)
	assert.Equal(t, domain.Some("五"), first.Weekday)
	assert.Equal(t, domain.Some("23:00"), first.Time)
	assert.Equal(t, "旅程結束之後的故事。", first.Story)

	second, err := Extract(items[1])
	require.NoError(t, err)
	assert.Equal(t, "", second.ImageURL)
	assert.False(t, second.Weekday.Valid())
	assert.False(t, second.Time.Valid())

	rec := second.Record("")
	assert.False(t, rec.HasImage())
	assert.Equal(t, "102", rec.ID)
}

func TestExtractRejectsItemWithoutContainer(t *testing.T) {
	_, err := Extract(domain.RawItem{Index: 3, HTML: `<div class="other">x</div>`})
	assert.Error(t, err)
}

func TestParsePremiere(t *testing.T) {
	tests := []struct {
		in      string
		weekday domain.Optional[string]
		tm      domain.Optional[string]
	}{
		{"每週一 9時5分", domain.Some("一"), domain.Some("09:05")},
		{"每週天 ２３時３０分", domain.Some("天"), domain.Some("23:30")},
		{"2024年4月5日", domain.None[string](), domain.None[string]()},
		{"每週六", domain.Some("六"), domain.None[string]()},
		{"24時00分", domain.None[string](), domain.Some("24:00")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			weekday, tm := parsePremiere(tt.in)
			assert.Equal(t, tt.weekday, weekday)
			assert.Equal(t, tt.tm, tm)
		})
	}
}

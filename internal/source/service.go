// Package source retrieves seasonal listing pages and extracts their entries.
package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/gocolly/colly"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/seasondb/internal/domain"
	"github.com/varoOP/seasondb/internal/download"
	"github.com/varoOP/seasondb/pkg/season"
)

const (
	listSelector = "div#acgs-anime-list"
	itemSelector = "div.CV-search"
	userAgent    = "Mozilla/5.0 (compatible; seasondb/1.0)"
)

type Service interface {
	// Fetch returns the raw entries of a period's listing in page order. A page without
	// a listing or without entries yields no items and no error.
	Fetch(ctx context.Context, p season.Period) ([]domain.RawItem, error)
	ListingURL(p season.Period) string
}

type Options struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	Limiter        *download.Limiter
}

type service struct {
	log  zerolog.Logger
	opts Options
}

func NewService(log zerolog.Logger, opts Options) Service {
	if !strings.HasSuffix(opts.BaseURL, "/") {
		opts.BaseURL += "/"
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	return &service{
		log:  log.With().Str("module", "source").Logger(),
		opts: opts,
	}
}

// ListingURL is <base><year><month:02>/ where month is the season's first month.
func (s *service) ListingURL(p season.Period) string {
	return fmt.Sprintf("%s%d%02d/", s.opts.BaseURL, p.Year, p.Season.StartMonth())
}

func (s *service) Fetch(ctx context.Context, p season.Period) ([]domain.RawItem, error) {
	url := s.ListingURL(p)
	log := s.log.With().Str("period", p.Key()).Str("url", url).Logger()

	var items []domain.RawItem
	attempt := 0
	op := func() error {
		attempt++
		got, err := s.scrape(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			var se *download.StatusError
			if errors.As(err, &se) && !se.Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		items = got
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(s.opts.MaxRetries, 0))), ctx)

	notify := func(err error, wait time.Duration) {
		log.Debug().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("retrying listing")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		var se *download.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, errors.Wrapf(domain.ErrListingNotFound, "%s", url)
		}
		return nil, errors.Wrapf(err, "failed to fetch listing for %s", p)
	}

	log.Debug().Int("items", len(items)).Msg("fetched listing")
	return items, nil
}

// scrape performs a single attempt with a fresh collector.
func (s *service) scrape(ctx context.Context, url string) ([]domain.RawItem, error) {
	if err := s.opts.Limiter.Wait(ctx, url); err != nil {
		return nil, err
	}

	c := colly.NewCollector(colly.UserAgent(userAgent))
	c.AllowURLRevisit = true
	if s.opts.Timeout > 0 {
		c.SetRequestTimeout(s.opts.Timeout)
	}

	var (
		mu       sync.Mutex
		items    []domain.RawItem
		status   int
		parseErr error
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	c.OnHTML(listSelector, func(e *colly.HTMLElement) {
		e.DOM.Find(itemSelector).Each(func(i int, sel *goquery.Selection) {
			html, err := goquery.OuterHtml(sel)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				parseErr = errors.Wrapf(err, "failed to serialize item %d", i)
				return
			}
			items = append(items, domain.RawItem{Index: len(items), HTML: html})
		})
	})

	err := c.Visit(url)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if status != 0 && (status < 200 || status > 299) {
		return nil, &download.StatusError{URL: url, StatusCode: status}
	}
	if err != nil {
		return nil, errors.Wrap(err, "listing request failed")
	}
	if parseErr != nil {
		return nil, backoff.Permanent(parseErr)
	}
	return items, nil
}

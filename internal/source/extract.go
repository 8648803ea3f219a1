package source

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/varoOP/seasondb/internal/domain"
	"golang.org/x/net/html"
	"golang.org/x/text/width"
)

const idAttr = "acgs-bangumi-data-id"

var (
	weekdayPattern = regexp.MustCompile(`每週([一二三四五六日天])`)
	timePattern    = regexp.MustCompile(`(\d{1,2})時(\d{1,2})分`)
)

// Item holds the fields of one listing entry before its cover is hosted.
type Item struct {
	ID       string
	Name     string
	ImageURL string
	Weekday  domain.Optional[string]
	Time     domain.Optional[string]
	Story    string
}

// Record builds the harvested record with imageRef as the cover reference.
func (i Item) Record(imageRef string) domain.Record {
	return domain.Record{
		ID:           i.ID,
		Name:         i.Name,
		ImageRef:     imageRef,
		Weekday:      i.Weekday,
		PremiereTime: i.Time,
		Description:  i.Story,
	}
}

// Extract parses a raw listing entry. Missing fields stay empty; an entry without an
// item container is an error.
func Extract(raw domain.RawItem) (Item, error) {
	node, err := html.Parse(strings.NewReader(raw.HTML))
	if err != nil {
		return Item{}, errors.Wrapf(err, "failed to parse item %d", raw.Index)
	}

	sel := goquery.NewDocumentFromNode(node).Find(itemSelector).First()
	if sel.Length() == 0 {
		return Item{}, errors.Errorf("item %d has no %s container", raw.Index, itemSelector)
	}

	item := Item{
		ID:    strings.TrimSpace(sel.AttrOr(idAttr, "")),
		Name:  text(sel.Find("h3.entity_localized_name").First()),
		Story: text(sel.Find("div.anime_story").First()),
	}

	if src, ok := sel.Find("div.overflow-hidden.anime_cover_image img").First().Attr("src"); ok {
		item.ImageURL = strings.TrimSpace(src)
	}

	if when := sel.Find("div.time_today.main_time").First(); when.Length() > 0 {
		item.Weekday, item.Time = parsePremiere(text(when))
	}

	return item, nil
}

// parsePremiere reads "每週五 23時30分"-style text. Full-width digits are accepted.
func parsePremiere(s string) (weekday, tm domain.Optional[string]) {
	s = width.Narrow.String(s)

	if m := weekdayPattern.FindStringSubmatch(s); m != nil {
		weekday = domain.Some(m[1])
	}
	if m := timePattern.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		tm = domain.Some(fmt.Sprintf("%02d:%02d", hour, minute))
	}
	return weekday, tm
}

func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

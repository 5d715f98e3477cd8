package nextspaceflight

import (
	"io"
	"iter"
	"regexp"
	"slices"
	"strings"

	"launchsync/internal/assert"
	"launchsync/internal/components/chrono"
	"launchsync/internal/components/telemetry"
	"launchsync/internal/launch"
	"launchsync/internal/launchtime"
	"launchsync/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const SourceName = "nextspaceflight.com"

const (
	report_extractor_datetime = "extractor.datetime"
	report_extractor_heading  = "extractor.heading"
	report_extractor_records  = "extractor.records"
)

const (
	cardSelector     = "div.launch.mdl-card"
	gridCellSelector = ".mdl-cell"
	headingSelector  = "h5"
	datetimeSelector = "span[id^='localized']"
	supportSelector  = ".mdl-card__supporting-text"
	providerSelector = ".mdl-chip__text"
)

var unconfirmedRegex = regexp.MustCompile(`(?i)\b(TBD|NET)\b`)

// Extractor turns listing pages into launch records.
type Extractor struct {
	source     string
	dialect    launchtime.Dialect
	normalizer launchtime.Normalizer
	time       chrono.API
	tel        telemetry.API
}

func NewExtractor(normalizer launchtime.Normalizer, time chrono.API, tel telemetry.API) Extractor {
	assert.NotNil(time)
	assert.NotNil(tel)
	return Extractor{
		source:     SourceName,
		dialect:    launchtime.DialectUTC,
		normalizer: normalizer,
		time:       time,
		tel:        tel,
	}
}

// Cards selects every launch card in the document, skipping grid cells that
// happen to carry the same classes.
func Cards(doc *goquery.Document) *goquery.Selection {
	return doc.Find(cardSelector).Not(gridCellSelector)
}

// Records lazily yields one record per launch card, it can be ranged over
// any number of times.
func (e Extractor) Records(doc *goquery.Document) iter.Seq[launch.Record] {
	return func(yield func(launch.Record) bool) {
		cards := Cards(doc)
		for i := range cards.Nodes {
			if !yield(e.extractCard(cards.Eq(i))) {
				return
			}
		}
	}
}

// ExtractAll collects every record in the document.
func (e Extractor) ExtractAll(doc *goquery.Document) []launch.Record {
	records := slices.Collect(e.Records(doc))
	if records == nil {
		records = []launch.Record{}
	}
	e.tel.ReportCount(report_extractor_records, int64(len(records)))
	return records
}

// ExtractHTML parses raw markup and collects every record in it.
func (e Extractor) ExtractHTML(r io.Reader) ([]launch.Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return e.ExtractAll(doc), nil
}

func (e Extractor) extractCard(card *goquery.Selection) launch.Record {
	record := launch.Record{
		Mission:            launch.NotAvailable,
		Vehicle:            launch.Unknown,
		PadLocation:        launch.Unknown,
		MissionDescription: launch.NotAvailable,
		SourceName:         e.source,
		Provider:           launch.Unknown,
	}

	heading := htmlutil.CleanText(card.Find(headingSelector).First())
	if heading == "" {
		e.tel.ReportWarning(report_extractor_heading, "card has no heading")
	} else {
		vehicle, mission, found := strings.Cut(heading, "|")
		record.Vehicle = strings.TrimSpace(vehicle)
		if found {
			record.Mission = strings.TrimSpace(mission)
		}
		if record.Vehicle == "" {
			record.Vehicle = launch.Unknown
		}
		if record.Mission == "" {
			record.Mission = launch.NotAvailable
		}
	}

	datetimeText := htmlutil.CleanText(card.Find(datetimeSelector).First())
	if datetimeText != "" {
		instant, ok := e.normalizer.NormalizeCombined(datetimeText, e.dialect)
		if ok {
			record.TimestampMs = launch.Timestamp(instant.Millis)
		} else if !unconfirmedRegex.MatchString(datetimeText) {
			e.tel.ReportWarning(report_extractor_datetime, record.Mission, datetimeText)
		}
	}

	record.PadLocation = padLocation(card.Find(supportSelector).First(), datetimeText)

	style, _ := card.Attr("style")
	record.Status = StatusFromStyle(style)
	if record.Status == launch.StatusUnknown {
		switch {
		case record.TimestampMs != nil && *record.TimestampMs > e.time.Now().UnixMilli():
			record.Status = launch.StatusScheduled
		case record.TimestampMs == nil && unconfirmedRegex.MatchString(datetimeText):
			record.Status = launch.StatusTBD
		}
	}

	provider := htmlutil.CleanText(card.Find(providerSelector).First())
	if provider != "" {
		record.Provider = provider
	}

	return record
}

func padLocation(support *goquery.Selection, datetimeText string) string {
	if support.Length() == 0 {
		return launch.Unknown
	}

	segments := htmlutil.SegmentsAfterBreak(support.Get(0))
	if len(segments) > 0 {
		return strings.Join(segments, ", ")
	}

	remaining := htmlutil.CleanText(support)
	if datetimeText != "" {
		remaining = htmlutil.Clean(strings.Replace(remaining, datetimeText, "", 1))
	}
	if remaining == "" {
		return launch.Unknown
	}
	return remaining
}

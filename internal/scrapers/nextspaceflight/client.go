package nextspaceflight

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"launchsync/internal/assert"
	"launchsync/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_fetch_page = "client.fetch-page"
	report_client_fetch_all  = "client.fetch-all"
	report_client_pages      = "client.pages"
	report_client_cards      = "client.cards"
)

const (
	DefaultBaseURL   = "https://nextspaceflight.com/launches/past/"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	DefaultMaxPages  = 236
	DefaultPageDelay = 1500 * time.Millisecond
)

const emptyDocument = "<html><body></body></html>"

var noMoreResultsRegex = regexp.MustCompile(`(?i)No\s+more\s+results!`)

type ClientOptions struct {
	BaseURL   string
	UserAgent string
	// MaxPages is the most pages FetchAll will request.
	MaxPages int
	// PageDelay is the minimum time between two page requests.
	PageDelay time.Duration
	Timeout   time.Duration
}

type Client struct {
	http    *resty.Client
	baseUrl *url.URL
	options ClientOptions
	limiter *rate.Limiter
	tel     telemetry.API
}

func NewClient(options ClientOptions, tel telemetry.API) (Client, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("nextspaceflight", tel)

	if options.BaseURL == "" {
		options.BaseURL = DefaultBaseURL
	}
	if options.UserAgent == "" {
		options.UserAgent = DefaultUserAgent
	}
	if options.MaxPages <= 0 {
		options.MaxPages = DefaultMaxPages
	}
	if options.Timeout <= 0 {
		options.Timeout = time.Minute
	}

	baseUrl, err := url.Parse(options.BaseURL)
	if err != nil {
		return Client{}, fmt.Errorf("parse base url: %w", err)
	}

	httpClient := resty.New()
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	httpClient.SetHeader("user-agent", options.UserAgent)
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	httpClient.SetTimeout(options.Timeout)
	telemetry.InstrumentResty(httpClient, tel)

	limit := rate.Inf
	if options.PageDelay > 0 {
		limit = rate.Every(options.PageDelay)
	}

	return Client{
		http:    httpClient,
		baseUrl: baseUrl,
		options: options,
		limiter: rate.NewLimiter(limit, 1),
		tel:     tel,
	}, nil
}

// HTTP exposes the underlying client so callers can attach instrumentation.
func (c Client) HTTP() *resty.Client {
	return c.http
}

// FetchPage downloads a single page and returns its markup.
func (c Client) FetchPage(ctx context.Context, link string) (string, error) {
	err := c.limiter.Wait(ctx)
	if err != nil {
		return "", err
	}

	res, err := c.http.R().
		SetContext(ctx).
		Get(link)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", link, err)
	}
	if res.IsError() {
		err = fmt.Errorf("fetch %s: unexpected status %s", link, res.Status())
		c.tel.ReportBroken(report_client_fetch_page, err)
		return "", err
	}
	return res.String(), nil
}

// FetchFirst downloads the first page of the listing as is.
func (c Client) FetchFirst(ctx context.Context) (string, error) {
	return c.FetchPage(ctx, c.baseUrl.String())
}

func (c Client) pageUrl(page int) string {
	link := *c.baseUrl
	query := link.Query()
	query.Set("page", strconv.Itoa(page))
	query.Set("search", "")
	link.RawQuery = query.Encode()
	return link.String()
}

// FetchAll walks the listing page by page until the site reports that there
// are no more results, a page after the first one has no cards or MaxPages
// is reached. The cards of all pages are combined into one document.
func (c Client) FetchAll(ctx context.Context) (string, error) {
	var cards []string

	page := 1
	for ; page <= c.options.MaxPages; page++ {
		link := c.pageUrl(page)
		c.tel.ReportDebug("fetching page", page, c.options.MaxPages, link)

		body, err := c.FetchPage(ctx, link)
		if err != nil {
			return "", err
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("parse page %d: %w", page, err)
		}
		if noMoreResultsRegex.MatchString(doc.Text()) {
			c.tel.ReportDebug("no more results", page)
			break
		}

		pageCards := Cards(doc)
		if pageCards.Length() == 0 && page > 1 {
			c.tel.ReportDebug("page has no cards", page)
			break
		}
		for i := range pageCards.Nodes {
			html, err := goquery.OuterHtml(pageCards.Eq(i))
			if err != nil {
				return "", fmt.Errorf("render card on page %d: %w", page, err)
			}
			cards = append(cards, html)
		}

		if page == c.options.MaxPages {
			c.tel.ReportWarning(report_client_fetch_all, fmt.Sprintf("reached max pages limit (%d)", c.options.MaxPages))
		}
	}

	c.tel.ReportCount(report_client_pages, int64(min(page, c.options.MaxPages)))
	c.tel.ReportCount(report_client_cards, int64(len(cards)))

	return CombineCards(cards), nil
}

// CombineCards wraps card markup into a single document.
func CombineCards(cards []string) string {
	if len(cards) == 0 {
		return emptyDocument
	}
	return fmt.Sprintf(
		"<html><head><meta charset='utf-8'></head><body><div class='mdl-grid'>%s</div></body></html>",
		strings.Join(cards, ""),
	)
}

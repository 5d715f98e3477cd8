package bitable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"launchsync/internal/assert"
	"launchsync/internal/components/chrono"
	"launchsync/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("launchsync/internal/bitable")

const (
	report_client_token  = "client.token"
	report_client_search = "client.search"
	report_client_create = "client.create"
	report_client_fields = "client.fields"
)

const (
	DefaultBaseURL = "https://open.feishu.cn"
	// MaxPageSize is the largest page the search endpoint accepts.
	MaxPageSize = 500
)

// tokens are refreshed this long before they expire
const tokenLeeway = 5 * time.Minute

const (
	codeTokenInvalid = 99991663
	codeTokenExpired = 99991668
)

// ErrAPI is matched by every *APIError.
var ErrAPI = errors.New("bitable api")

// APIError is a response that the open platform rejected, either through the
// HTTP status or a non-zero code in the response envelope.
type APIError struct {
	Status int
	Code   int
	Msg    string
	LogID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitable api: status %d, code %d: %s (log id %s)", e.Status, e.Code, e.Msg, e.LogID)
}

func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

type Credentials struct {
	AppID     string
	AppSecret string
}

// Table identifies a single table inside a Bitable app.
type Table struct {
	AppToken string
	TableID  string
	// ViewID is optional and narrows searches to a view.
	ViewID string
}

type ClientOptions struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	http        *resty.Client
	credentials Credentials
	table       Table
	time        chrono.API
	tel         telemetry.API

	mutex   sync.Mutex
	token   string
	expires time.Time
}

func NewClient(
	credentials Credentials,
	table Table,
	options ClientOptions,
	clock chrono.API,
	tel telemetry.API,
) *Client {
	assert.NotEmptyStr(credentials.AppID)
	assert.NotEmptyStr(credentials.AppSecret)
	assert.NotEmptyStr(table.AppToken)
	assert.NotEmptyStr(table.TableID)
	assert.NotNil(clock)
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("bitable", tel)

	if options.BaseURL == "" {
		options.BaseURL = DefaultBaseURL
	}
	if options.Timeout <= 0 {
		options.Timeout = 30 * time.Second
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(options.BaseURL)
	httpClient.SetTimeout(options.Timeout)
	httpClient.SetHeader("content-type", "application/json; charset=utf-8")
	telemetry.InstrumentResty(httpClient, tel)

	return &Client{
		http:        httpClient,
		credentials: credentials,
		table:       table,
		time:        clock,
		tel:         tel,
	}
}

// HTTP exposes the underlying client so callers can attach instrumentation.
func (c *Client) HTTP() *resty.Client {
	return c.http
}

func (c *Client) Table() Table {
	return c.table
}

type envelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

func apiError(res *resty.Response, code int, msg string) error {
	if code == 0 && !res.IsError() {
		return nil
	}
	if msg == "" {
		msg = http.StatusText(res.StatusCode())
	}
	return &APIError{
		Status: res.StatusCode(),
		Code:   code,
		Msg:    msg,
		LogID:  res.Header().Get("X-Tt-Logid"),
	}
}

type tokenRequest struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

type tokenResponse struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Token  string `json:"tenant_access_token"`
	Expire int    `json:"expire"`
}

// tenantToken returns a cached tenant access token, requesting a new one
// when none is cached or the cached one is about to expire.
func (c *Client) tenantToken(ctx context.Context) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.time.Now()
	if c.token != "" && now.Before(c.expires) {
		return c.token, nil
	}

	var body tokenResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(tokenRequest{
			AppID:     c.credentials.AppID,
			AppSecret: c.credentials.AppSecret,
		}).
		SetResult(&body).
		SetError(&body).
		Post("/open-apis/auth/v3/tenant_access_token/internal")
	if err != nil {
		c.tel.ReportBroken(report_client_token, err)
		return "", fmt.Errorf("request tenant token: %w", err)
	}
	err = apiError(res, body.Code, body.Msg)
	if err != nil {
		c.tel.ReportBroken(report_client_token, err)
		return "", err
	}
	if body.Token == "" {
		err = fmt.Errorf("request tenant token: empty token in response")
		c.tel.ReportBroken(report_client_token, err)
		return "", err
	}

	c.token = body.Token
	c.expires = now.Add(time.Duration(body.Expire)*time.Second - tokenLeeway)
	c.tel.ReportDebug("refreshed tenant token", c.expires)
	return c.token, nil
}

func (c *Client) dropToken() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.token = ""
}

func tokenRejected(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == codeTokenInvalid || apiErr.Code == codeTokenExpired
}

// call performs an authenticated request against the open platform and
// decodes the envelope's data into out. A rejected token is refreshed and the
// request is retried once.
func call[T any](
	ctx context.Context,
	c *Client,
	method, path string,
	query map[string]string,
	body any,
	out *T,
) error {
	attempt := func() error {
		token, err := c.tenantToken(ctx)
		if err != nil {
			return err
		}

		var result envelope[T]
		req := c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetPathParams(map[string]string{
				"app":   c.table.AppToken,
				"table": c.table.TableID,
			}).
			SetQueryParams(query).
			SetResult(&result).
			SetError(&result)
		if body != nil {
			req.SetBody(body)
		}

		res, err := req.Execute(method, path)
		if err != nil {
			return err
		}
		err = apiError(res, result.Code, result.Msg)
		if err != nil {
			return err
		}
		*out = result.Data
		return nil
	}

	err := attempt()
	if tokenRejected(err) {
		c.dropToken()
		err = attempt()
	}
	return err
}

const recordsPath = "/open-apis/bitable/v1/apps/{app}/tables/{table}/records"

// Condition is a single search condition, Value is interpreted according to
// the operator and the field type.
type Condition struct {
	FieldName string   `json:"field_name"`
	Operator  string   `json:"operator"`
	Value     []string `json:"value"`
}

type Filter struct {
	Conjunction string      `json:"conjunction"`
	Conditions  []Condition `json:"conditions"`
}

type searchRequest struct {
	ViewID          string   `json:"view_id,omitempty"`
	FieldNames      []string `json:"field_names,omitempty"`
	Filter          *Filter  `json:"filter,omitempty"`
	AutomaticFields bool     `json:"automatic_fields"`
}

// Record is a stored row, its field values are kept undecoded since their
// shape depends on the field type.
type Record struct {
	RecordID string                     `json:"record_id"`
	Fields   map[string]json.RawMessage `json:"fields"`
}

type searchData struct {
	Items     []Record `json:"items"`
	HasMore   bool     `json:"has_more"`
	PageToken string   `json:"page_token"`
	Total     int      `json:"total"`
}

type SearchOptions struct {
	Filter     *Filter
	FieldNames []string
	// PageSize is clamped to 1..MaxPageSize, zero means MaxPageSize.
	PageSize int
	// Limit stops paging once this many records were read, zero means no
	// limit.
	Limit int
}

// Search returns every record matching the options, following page tokens
// until the last page.
func (c *Client) Search(ctx context.Context, options SearchOptions) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()

	pageSize := options.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	body := searchRequest{
		ViewID:     c.table.ViewID,
		FieldNames: options.FieldNames,
		Filter:     options.Filter,
	}

	var records []Record
	pageToken := ""
	pages := 0
	for {
		query := map[string]string{"page_size": strconv.Itoa(pageSize)}
		if pageToken != "" {
			query["page_token"] = pageToken
		}

		var data searchData
		err := call(ctx, c, resty.MethodPost, recordsPath+"/search", query, body, &data)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "search page")
			c.tel.ReportBroken(report_client_search, err, pages+1)
			return nil, fmt.Errorf("search page %d: %w", pages+1, err)
		}
		pages++
		records = append(records, data.Items...)
		c.tel.ReportDebug("search page", pages, len(data.Items), data.HasMore)

		if options.Limit > 0 && len(records) >= options.Limit {
			records = records[:options.Limit]
			break
		}
		if !data.HasMore || data.PageToken == "" {
			break
		}
		pageToken = data.PageToken
	}

	span.SetAttributes(
		attribute.Int("pages", pages),
		attribute.Int("records", len(records)),
	)
	return records, nil
}

type createRequest struct {
	Fields map[string]any `json:"fields"`
}

type createData struct {
	Record Record `json:"record"`
}

// Create adds a single record with the given column values.
func (c *Client) Create(ctx context.Context, fields map[string]any) (Record, error) {
	ctx, span := tracer.Start(ctx, "Create")
	defer span.End()

	var data createData
	err := call(
		ctx, c,
		resty.MethodPost, recordsPath,
		map[string]string{"ignore_consistency_check": "true"},
		createRequest{Fields: fields},
		&data,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create")
		c.tel.ReportBroken(report_client_create, err)
		return Record{}, err
	}
	span.SetAttributes(attribute.String("record_id", data.Record.RecordID))
	return data.Record, nil
}

// Field describes a table column.
type Field struct {
	FieldID   string `json:"field_id"`
	FieldName string `json:"field_name"`
	Type      int    `json:"type"`
	UIType    string `json:"ui_type"`
	IsPrimary bool   `json:"is_primary"`
}

type fieldsData struct {
	Items     []Field `json:"items"`
	HasMore   bool    `json:"has_more"`
	PageToken string  `json:"page_token"`
}

// ListFields returns every column of the table.
func (c *Client) ListFields(ctx context.Context) ([]Field, error) {
	ctx, span := tracer.Start(ctx, "ListFields")
	defer span.End()

	var fields []Field
	pageToken := ""
	for {
		query := map[string]string{"page_size": "100"}
		if c.table.ViewID != "" {
			query["view_id"] = c.table.ViewID
		}
		if pageToken != "" {
			query["page_token"] = pageToken
		}

		var data fieldsData
		err := call(
			ctx, c,
			resty.MethodGet, "/open-apis/bitable/v1/apps/{app}/tables/{table}/fields",
			query, nil, &data,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "list fields")
			c.tel.ReportBroken(report_client_fields, err)
			return nil, err
		}
		fields = append(fields, data.Items...)
		if !data.HasMore || data.PageToken == "" {
			break
		}
		pageToken = data.PageToken
	}
	return fields, nil
}

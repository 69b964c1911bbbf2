// Package remote is a JSON-over-HTTP collaborator for viewcache getters. It
// speaks the list shape of the compute service ({"value": [...],
// "odata.nextLink": "..."}) and maps failures to *viewcache.ServerError.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/unkn0wn-root/viewcache"
	"github.com/unkn0wn-root/viewcache/codec"
)

const (
	defaultTimeout = 30 * time.Second
	defaultMaxBody = 8 << 20
)

// Options configure a Client. BaseURL is required.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client // nil => client with Timeout
	Timeout    time.Duration
	MaxBody    int  // response bytes accepted; 0 => 8MiB
	Strict     bool // reject unknown JSON fields
	UserAgent  string
	Logger     viewcache.Logger // if nil, NopLogger is used
}

type Client struct {
	base    *url.URL
	http    *http.Client
	maxBody int
	strict  bool
	ua      string
	log     viewcache.Logger
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remote: invalid base url %q", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	c := &Client{
		base:    base,
		http:    hc,
		maxBody: opts.MaxBody,
		strict:  opts.Strict,
		ua:      opts.UserAgent,
		log:     opts.Logger,
	}
	if c.maxBody <= 0 {
		c.maxBody = defaultMaxBody
	}
	if c.log == nil {
		c.log = viewcache.NopLogger{}
	}
	return c, nil
}

// ListBody is the wire shape of one list page.
type ListBody[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"odata.nextLink,omitempty"`
}

// GetEntity fetches and decodes the entity at path.
func GetEntity[T any](ctx context.Context, c *Client, path string) (T, error) {
	var zero T
	body, err := c.get(ctx, c.resolve(path, nil))
	if err != nil {
		return zero, err
	}
	return decode[T](c, body)
}

// ListPage fetches the first page of the list at path shaped by opts.
func ListPage[T any](ctx context.Context, c *Client, path string, opts viewcache.ListOptions) (viewcache.Page[T], error) {
	return page[T](ctx, c, c.resolve(path, query(opts)))
}

// ListNext fetches the page behind a nextLink returned by the server.
func ListNext[T any](ctx context.Context, c *Client, nextLink string) (viewcache.Page[T], error) {
	u, err := c.base.Parse(nextLink)
	if err != nil {
		return viewcache.Page[T]{}, fmt.Errorf("%w: next link %q: %v", viewcache.ErrMalformed, nextLink, err)
	}
	return page[T](ctx, c, u)
}

// EntityFunc adapts GetEntity to a viewcache.EntityFetchFunc.
func EntityFunc[P, T any](c *Client, path func(P) string) viewcache.EntityFetchFunc[P, T] {
	return func(ctx context.Context, p P) (T, error) { return GetEntity[T](ctx, c, path(p)) }
}

// ListFuncs adapts ListPage and ListNext to the list collaborators.
func ListFuncs[P, T any](c *Client, path func(P) string) (viewcache.ListFunc[P, T], viewcache.ListNextFunc[T]) {
	list := func(ctx context.Context, p P, opts viewcache.ListOptions) (viewcache.Page[T], error) {
		return ListPage[T](ctx, c, path(p), opts)
	}
	next := func(ctx context.Context, link string) (viewcache.Page[T], error) {
		return ListNext[T](ctx, c, link)
	}
	return list, next
}

func page[T any](ctx context.Context, c *Client, u *url.URL) (viewcache.Page[T], error) {
	body, err := c.get(ctx, u)
	if err != nil {
		return viewcache.Page[T]{}, err
	}
	lb, err := decode[ListBody[T]](c, body)
	if err != nil {
		return viewcache.Page[T]{}, err
	}
	if lb.Value == nil {
		lb.Value = []T{}
	}
	return viewcache.Page[T]{Items: lb.Value, NextLink: lb.NextLink}, nil
}

func decode[V any](c *Client, body []byte) (V, error) {
	dec := codec.Limit[V]{Inner: codec.JSON[V]{Strict: c.strict}, Max: c.maxBody}
	v, err := dec.Decode(body)
	if err != nil {
		var zero V
		return zero, fmt.Errorf("%w: %v", viewcache.ErrMalformed, err)
	}
	return v, nil
}

// query maps list options to OData-style query parameters. MaxResults is
// enforced by the getter, not sent.
func query(opts viewcache.ListOptions) url.Values {
	q := url.Values{}
	if opts.Filter != "" {
		q.Set("$filter", opts.Filter)
	}
	if opts.Select != "" {
		q.Set("$select", opts.Select)
	}
	if opts.PageSize > 0 {
		q.Set("maxresults", strconv.Itoa(opts.PageSize))
	}
	for k, v := range opts.Attributes {
		q.Set(k, v)
	}
	return q
}

func (c *Client) resolve(path string, q url.Values) *url.URL {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return &u
}

func (c *Client) get(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// one byte over the limit lets the codec report ErrTooLarge
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.maxBody)+1))
	if err != nil {
		return nil, err
	}
	c.log.Debug("remote get", viewcache.Fields{
		"url":    u.Redacted(),
		"status": resp.StatusCode,
		"took":   time.Since(start).String(),
	})
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, serverError(resp, body)
	}
	return body, nil
}

// errorBody is the service error payload.
type errorBody struct {
	Code    string `json:"code"`
	Message struct {
		Value string `json:"value"`
	} `json:"message"`
	Values []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"values"`
}

func serverError(resp *http.Response, body []byte) *viewcache.ServerError {
	se := &viewcache.ServerError{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		RequestID:  resp.Header.Get("request-id"),
	}
	if d, err := http.ParseTime(resp.Header.Get("Date")); err == nil {
		se.Timestamp = d
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || (eb.Code == "" && eb.Message.Value == "") {
		se.Message = strings.TrimSpace(string(body))
		return se
	}
	se.Code = eb.Code
	se.Message = eb.Message.Value
	for _, v := range eb.Values {
		se.Details = append(se.Details, viewcache.ErrorDetail{Key: v.Key, Value: v.Value})
	}
	return se
}

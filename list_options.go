package viewcache

import (
	"maps"
	"strconv"
	"strings"

	"github.com/unkn0wn-root/viewcache/internal/util"
)

// ListOptions shape a server-side list query. Changing any field invalidates
// the current continuation and restarts at page 1.
type ListOptions struct {
	Filter     string
	Select     string // comma-separated field list; "" => full entities
	MaxResults int    // 0 => no cap
	PageSize   int    // 0 => server default
	Attributes map[string]string
}

// Key is a deterministic identity of o, used for query-cache and poll keys.
func (o ListOptions) Key() string {
	parts := []string{
		"filter=" + o.Filter,
		"select=" + o.Select,
		"max=" + strconv.Itoa(o.MaxResults),
		"page=" + strconv.Itoa(o.PageSize),
	}
	return util.HashKey("opts", append(parts, util.SortedPairs(o.Attributes)...)...)
}

// SelectFields splits Select into trimmed, non-empty field names.
func (o ListOptions) SelectFields() []string {
	if o.Select == "" {
		return nil
	}
	var out []string
	for _, f := range strings.Split(o.Select, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Clone returns a copy of o that does not share Attributes.
func (o ListOptions) Clone() ListOptions {
	o.Attributes = maps.Clone(o.Attributes)
	return o
}

// Equal reports whether o and other describe the same query.
func (o ListOptions) Equal(other ListOptions) bool {
	return o.Filter == other.Filter &&
		o.Select == other.Select &&
		o.MaxResults == other.MaxResults &&
		o.PageSize == other.PageSize &&
		maps.Equal(o.Attributes, other.Attributes)
}

// ContinuationToken points at the page after the last one loaded. Params and
// options travel with it so the getter can resolve the target cache.
// A nil token, or one with empty NextLink, is terminal.
type ContinuationToken[P any] struct {
	NextLink string
	Params   P
	Options  ListOptions
}

// Done reports whether there is no further page. Safe on a nil token.
func (t *ContinuationToken[P]) Done() bool { return t == nil || t.NextLink == "" }

// Page is one page as returned by the list collaborators.
type Page[T any] struct {
	Items    []T
	NextLink string
}

// ListResponse is one page after it was written to the cache.
type ListResponse[P, T any] struct {
	Items   []T
	HasMore bool
	Next    *ContinuationToken[P] // nil when HasMore is false
}

// Progress is reported after each page of a FetchAll.
type Progress struct {
	Pages    int
	Items    int
	Fraction float64 // Items/MaxResults when capped, 1 on the last page, -1 when unknown
}

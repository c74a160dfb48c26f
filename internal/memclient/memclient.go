// Package memclient provides an in-memory SchemaClient/DataClient pair:
// schemas are registered up front, Create assigns sequential ids and
// stores the record, and Query does just enough SOQL-shaped matching
// (FROM <object>, WHERE ... IN (...)/= '...', ORDER BY, LIMIT, OFFSET) to
// drive a load or dump end to end without a live Salesforce org. Useful
// for the CLI's demo mode and for exercising the full facade without
// network access.
package memclient

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/stomita/salesforce-migration-automatic/internal/core"
)

// Client is both a core.SchemaClient and a core.DataClient backed by an
// in-memory object store.
type Client struct {
	mu       sync.Mutex
	schemas  map[string]core.ObjectDescription
	records  map[string]map[string]map[string]any // object -> id -> record
	nextID   map[string]int
	idPrefix string
}

// New creates an empty Client. idPrefix (e.g. "001") is prepended to the
// sequential numeric part of every generated id, mimicking Salesforce's
// three-character key-prefix convention.
func New(idPrefix string) *Client {
	return &Client{
		schemas: make(map[string]core.ObjectDescription),
		records: make(map[string]map[string]map[string]any),
		nextID:  make(map[string]int),
		idPrefix: idPrefix,
	}
}

// RegisterSchema makes desc available to Describe and seeds its record
// store.
func (c *Client) RegisterSchema(desc core.ObjectDescription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas[strings.ToLower(string(desc.Name))] = desc
	if c.records[string(desc.Name)] == nil {
		c.records[string(desc.Name)] = make(map[string]map[string]any)
	}
}

// Seed inserts a record directly under the given id, bypassing Create --
// useful for pre-populating "existing target org" data a MappingPolicy or
// dump will query against.
func (c *Client) Seed(object core.ObjectName, id string, record map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.records[string(object)] == nil {
		c.records[string(object)] = make(map[string]map[string]any)
	}
	rec := make(map[string]any, len(record)+1)
	for k, v := range record {
		rec[k] = v
	}
	rec["Id"] = id
	c.records[string(object)][id] = rec
}

// Describe implements core.SchemaClient.
func (c *Client) Describe(ctx context.Context, object core.ObjectName) (core.ObjectDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	desc, ok := c.schemas[strings.ToLower(string(object))]
	if !ok {
		return core.ObjectDescription{}, fmt.Errorf("memclient: unknown object %q", object)
	}
	return desc, nil
}

// Create implements core.DataClient: each record is assigned a fresh id
// and stored. Records missing a createable-required field never reach
// here -- internal/core's convert step already applied the Createable
// gate -- so Create always succeeds.
func (c *Client) Create(ctx context.Context, object core.ObjectName, records []core.Record) ([]core.CreateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.records[string(object)] == nil {
		c.records[string(object)] = make(map[string]map[string]any)
	}

	results := make([]core.CreateResult, len(records))
	for i, rec := range records {
		c.nextID[string(object)]++
		id := fmt.Sprintf("%s%012d", c.idPrefix, c.nextID[string(object)])

		stored := make(map[string]any, len(rec)+1)
		for field, v := range rec {
			stored[field] = valueToAny(v)
		}
		stored["Id"] = id
		c.records[string(object)][id] = stored

		results[i] = core.CreateResult{Success: true, ID: id}
	}
	return results, nil
}

// valueToAny unwraps a core.Value into the plain Go value Query's matchers
// operate on.
func valueToAny(v core.Value) any {
	switch v.Kind {
	case core.ValueString:
		return v.Str
	case core.ValueInt:
		return v.Int
	case core.ValueFloat:
		return v.Float
	case core.ValueBool:
		return v.Bool
	default:
		return nil
	}
}

// Query implements core.DataClient with a small SOQL subset: SELECT
// <fields> FROM <object> [WHERE <cond> (AND|OR) ...] [ORDER BY ...]
// [LIMIT n] [OFFSET n]. Supported WHERE conditions are "field IN (...)"
// and "field = 'value'", ANDed or ORed but not both combined in one query
// (this is a test/demo double, not a SOQL parser).
func (c *Client) Query(ctx context.Context, soql string) (core.RecordStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	object, where, orderBy, limit, offset := parseSOQL(soql)
	byID := c.records[object]

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var matched []map[string]any
	for _, id := range ids {
		rec := byID[id]
		if where == nil || where(rec) {
			matched = append(matched, rec)
		}
	}

	if orderBy != "" {
		field, desc := orderBy, false
		if f, ok := strings.CutSuffix(orderBy, " DESC"); ok {
			field, desc = f, true
		} else if f, ok := strings.CutSuffix(orderBy, " ASC"); ok {
			field = f
		}
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := fmt.Sprint(matched[i][field]), fmt.Sprint(matched[j][field])
			if desc {
				return a > b
			}
			return a < b
		})
	}

	if offset > 0 && offset < len(matched) {
		matched = matched[offset:]
	} else if offset >= len(matched) {
		matched = nil
	}
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	return &recordStream{rows: matched}, nil
}

type whereFn func(rec map[string]any) bool

var (
	fromRe   = regexp.MustCompile(`(?i)FROM\s+([A-Za-z0-9_.]+)`)
	whereRe  = regexp.MustCompile(`(?i)WHERE\s+(.+?)(?:\s+ORDER BY|\s+LIMIT|\s+OFFSET|$)`)
	orderRe  = regexp.MustCompile(`(?i)ORDER BY\s+(.+?)(?:\s+LIMIT|\s+OFFSET|$)`)
	limitRe  = regexp.MustCompile(`(?i)LIMIT\s+(\d+)`)
	offsetRe = regexp.MustCompile(`(?i)OFFSET\s+(\d+)`)
	inCondRe = regexp.MustCompile(`^([A-Za-z0-9_.]+)\s+IN\s+\((.*)\)$`)
	eqCondRe = regexp.MustCompile(`^([A-Za-z0-9_.]+)\s*=\s*'(.*)'$`)
)

func parseSOQL(soql string) (object string, where whereFn, orderBy string, limit, offset int) {
	if m := fromRe.FindStringSubmatch(soql); m != nil {
		object = m[1]
	}
	if m := orderRe.FindStringSubmatch(soql); m != nil {
		orderBy = strings.TrimSpace(m[1])
	}
	if m := limitRe.FindStringSubmatch(soql); m != nil {
		limit, _ = strconv.Atoi(m[1])
	}
	if m := offsetRe.FindStringSubmatch(soql); m != nil {
		offset, _ = strconv.Atoi(m[1])
	}
	if m := whereRe.FindStringSubmatch(soql); m != nil {
		where = parseWhere(strings.TrimSpace(m[1]))
	}
	return object, where, orderBy, limit, offset
}

func parseWhere(cond string) whereFn {
	joiner := " AND "
	parts := strings.Split(cond, " AND ")
	if len(parts) == 1 {
		joiner = " OR "
		parts = strings.Split(cond, " OR ")
	}

	fns := make([]whereFn, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if fn := parseSingleCond(p); fn != nil {
			fns = append(fns, fn)
		}
	}
	if len(fns) == 0 {
		return nil
	}

	return func(rec map[string]any) bool {
		if joiner == " OR " {
			for _, fn := range fns {
				if fn(rec) {
					return true
				}
			}
			return false
		}
		for _, fn := range fns {
			if !fn(rec) {
				return false
			}
		}
		return true
	}
}

func parseSingleCond(cond string) whereFn {
	if m := inCondRe.FindStringSubmatch(cond); m != nil {
		field := m[1]
		var values []string
		for _, v := range strings.Split(m[2], ",") {
			v = strings.TrimSpace(v)
			v = strings.Trim(v, "'")
			values = append(values, v)
		}
		return func(rec map[string]any) bool {
			cell := fmt.Sprint(rec[field])
			for _, v := range values {
				if cell == v {
					return true
				}
			}
			return false
		}
	}
	if m := eqCondRe.FindStringSubmatch(cond); m != nil {
		field, value := m[1], m[2]
		return func(rec map[string]any) bool {
			return fmt.Sprint(rec[field]) == value
		}
	}
	return nil
}

// recordStream is a slice-backed core.RecordStream.
type recordStream struct {
	rows []map[string]any
	i    int
}

func (s *recordStream) Next(ctx context.Context) bool {
	if s.i >= len(s.rows) {
		return false
	}
	s.i++
	return true
}
func (s *recordStream) Record() map[string]any { return s.rows[s.i-1] }
func (s *recordStream) Err() error              { return nil }
func (s *recordStream) Close() error             { return nil }

package core

// dump.go implements the dump fixpoint driver: from seed queries it
// alternates dependent (outgoing-reference) and related (incoming-reference)
// expansion until the total fetched count stops growing, then emits one
// CSV per input query.

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/stomita/salesforce-migration-automatic/internal/errs"
	"github.com/stomita/salesforce-migration-automatic/internal/logging"
)

const defaultMaxFetchSize = 10000

// fetchedSet tracks, per object, the records fetched so far and which ids
// were newly added in the most recent round -- the input the next round's
// related-expansion predicate is built from.
type fetchedSet struct {
	byObject map[ObjectName]map[string]map[string]any
	newest   map[ObjectName]map[string]struct{}
}

func newFetchedSet() *fetchedSet {
	return &fetchedSet{
		byObject: make(map[ObjectName]map[string]map[string]any),
		newest:   make(map[ObjectName]map[string]struct{}),
	}
}

func (f *fetchedSet) add(object ObjectName, rec map[string]any) bool {
	id, _ := rec["Id"].(string)
	if id == "" {
		return false
	}
	if f.byObject[object] == nil {
		f.byObject[object] = make(map[string]map[string]any)
	}
	if _, exists := f.byObject[object][id]; exists {
		return false
	}
	f.byObject[object][id] = rec
	if f.newest[object] == nil {
		f.newest[object] = make(map[string]struct{})
	}
	f.newest[object][id] = struct{}{}
	return true
}

func (f *fetchedSet) resetNewest() {
	f.newest = make(map[ObjectName]map[string]struct{})
}

func (f *fetchedSet) total() int {
	n := 0
	for _, recs := range f.byObject {
		n += len(recs)
	}
	return n
}

func (f *fetchedSet) countPerObject() map[ObjectName]int {
	out := make(map[ObjectName]int, len(f.byObject))
	for obj, recs := range f.byObject {
		out[obj] = len(recs)
	}
	return out
}

// DumpAsCSV executes queries against data, following related/dependent
// reference closure out from the "query"-target seeds, and returns one CSV
// per query in input order.
func DumpAsCSV(ctx context.Context, data DataClient, describer *Describer, queries []DumpQuery, opts DumpOptions) ([]string, error) {
	maxFetch := opts.MaxFetchSize
	if maxFetch <= 0 {
		maxFetch = defaultMaxFetchSize
	}

	fetched := newFetchedSet()

	seeds := make([]DumpQuery, 0, len(queries))
	related := make([]DumpQuery, 0, len(queries))
	for _, q := range queries {
		if q.Target == "query" {
			seeds = append(seeds, q)
		} else {
			related = append(related, q)
		}
	}

	if err := runSeedPhase(ctx, data, describer, seeds, fetched, maxFetch, opts); err != nil {
		return nil, err
	}

	for {
		grown, err := runClosureRound(ctx, data, describer, related, fetched, maxFetch)
		if err != nil {
			return nil, err
		}
		if opts.OnProgress != nil {
			opts.OnProgress(DumpProgress{FetchedCount: fetched.total(), FetchedCountPerObject: fetched.countPerObject()})
		}
		logging.FromContext(ctx).Debug("dump closure round complete",
			"total_fetched", fetched.total(), "grew", grown)
		if !grown {
			break
		}
	}

	return renderOutputs(queries, describer, fetched, opts)
}

func runSeedPhase(ctx context.Context, data DataClient, describer *Describer, seeds []DumpQuery, fetched *fetchedSet, maxFetch int, opts DumpOptions) error {
	type seedRecords struct {
		object  ObjectName
		records []map[string]any
	}
	results := make([]seedRecords, len(seeds))

	g, gctx := errgroup.WithContext(ctx)
	if opts.MaxConcurrentQueries > 0 {
		g.SetLimit(opts.MaxConcurrentQueries)
	}
	for i, q := range seeds {
		i, q := i, q
		g.Go(func() error {
			soql := buildSeedSOQL(q, describer)
			recs, err := runQuery(gctx, data, q.Object, soql, maxFetch)
			if err != nil {
				return err
			}
			results[i] = seedRecords{object: q.Object, records: recs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		for _, rec := range r.records {
			fetched.add(r.object, rec)
		}
	}
	if opts.OnProgress != nil {
		opts.OnProgress(DumpProgress{FetchedCount: fetched.total(), FetchedCountPerObject: fetched.countPerObject()})
	}
	return nil
}

// runClosureRound performs one related-expansion pass followed by one
// dependent-expansion pass, and reports whether the round added any record.
func runClosureRound(ctx context.Context, data DataClient, describer *Describer, related []DumpQuery, fetched *fetchedSet, maxFetch int) (bool, error) {
	prevNewest := fetched.newest
	fetched.resetNewest()
	grew := false

	for _, q := range related {
		added, err := expandRelated(ctx, data, describer, q, fetched, prevNewest, maxFetch)
		if err != nil {
			return false, err
		}
		grew = grew || added
	}
	for _, q := range related {
		added, err := expandDependent(ctx, data, describer, q, fetched, maxFetch)
		if err != nil {
			return false, err
		}
		grew = grew || added
	}
	return grew, nil
}

// expandRelated fetches records of q.Object whose reference fields point
// into objects whose id-set grew in the previous round.
func expandRelated(ctx context.Context, data DataClient, describer *Describer, q DumpQuery, fetched *fetchedSet, prevNewest map[ObjectName]map[string]struct{}, maxFetch int) (bool, error) {
	if describer == nil {
		return false, nil
	}
	desc, ok := describer.FindObject(q.Object)
	if !ok {
		return false, nil
	}

	var conds []string
	for _, f := range desc.Fields {
		if f.Type != FieldReference {
			continue
		}
		for _, target := range f.ReferenceTo {
			newIDs, ok := matchingNewest(prevNewest, target)
			if !ok || len(newIDs) == 0 {
				continue
			}
			conds = append(conds, fmt.Sprintf("%s IN (%s)", f.Name, quoteIDList(newIDs)))
			break
		}
	}
	if len(conds) == 0 {
		return false, nil
	}

	soql := fmt.Sprintf("SELECT %s FROM %s WHERE %s", selectList(q, desc), q.Object, strings.Join(conds, " OR "))
	recs, err := runQuery(ctx, data, q.Object, soql, maxFetch)
	if err != nil {
		return false, err
	}
	grew := false
	for _, rec := range recs {
		if fetched.add(q.Object, rec) {
			grew = true
		}
	}
	return grew, nil
}

// expandDependent fetches q.Object records referenced by outgoing-reference
// fields of already-fetched records of other objects, for ids not yet
// fetched.
func expandDependent(ctx context.Context, data DataClient, describer *Describer, q DumpQuery, fetched *fetchedSet, maxFetch int) (bool, error) {
	if describer == nil {
		return false, nil
	}

	want := make(map[string]struct{})
	for object, records := range fetched.byObject {
		desc, ok := describer.FindObject(object)
		if !ok {
			continue
		}
		for _, f := range desc.Fields {
			if f.Type != FieldReference {
				continue
			}
			referenceTo := make([]string, len(f.ReferenceTo))
			for i, r := range f.ReferenceTo {
				referenceTo[i] = string(r)
			}
			if !sliceContains(referenceTo, string(q.Object), describer.defaultNamespace) {
				continue
			}
			for _, rec := range records {
				refID, _ := rec[f.Name].(string)
				if refID == "" {
					continue
				}
				if existing := fetched.byObject[q.Object]; existing != nil {
					if _, ok := existing[refID]; ok {
						continue
					}
				}
				want[refID] = struct{}{}
			}
		}
	}
	if len(want) == 0 {
		return false, nil
	}

	ids := make([]string, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	desc, _ := describer.FindObject(q.Object)
	soql := fmt.Sprintf("SELECT %s FROM %s WHERE Id IN (%s)", selectList(q, desc), q.Object, quoteIDList(ids))
	recs, err := runQuery(ctx, data, q.Object, soql, maxFetch)
	if err != nil {
		return false, err
	}
	grew := false
	for _, rec := range recs {
		if fetched.add(q.Object, rec) {
			grew = true
		}
	}
	return grew, nil
}

func matchingNewest(prevNewest map[ObjectName]map[string]struct{}, target ObjectName) ([]string, bool) {
	for obj, ids := range prevNewest {
		if !foldEqual(string(obj), string(target)) {
			continue
		}
		out := make([]string, 0, len(ids))
		for id := range ids {
			out = append(out, id)
		}
		sort.Strings(out)
		return out, true
	}
	return nil, false
}

func buildSeedSOQL(q DumpQuery, describer *Describer) string {
	var desc ObjectDescription
	if describer != nil {
		desc, _ = describer.FindObject(q.Object)
	}
	soql := fmt.Sprintf("SELECT %s FROM %s", selectList(q, desc), q.Object)
	if q.Scope != "" {
		soql += " USING SCOPE " + q.Scope
	}
	if q.Condition != "" {
		soql += " WHERE " + q.Condition
	}
	if q.OrderBy != "" {
		soql += " ORDER BY " + q.OrderBy
	}
	if q.Limit > 0 {
		soql += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		soql += fmt.Sprintf(" OFFSET %d", q.Offset)
	}
	return soql
}

// selectList resolves q's field-selection rule for use in a SOQL SELECT
// clause: Fields if set, else all schema fields minus IgnoreFields, else
// all schema fields.
func selectList(q DumpQuery, desc ObjectDescription) string {
	return strings.Join(selectListFields(q, desc), ",")
}

func runQuery(ctx context.Context, data DataClient, object ObjectName, soql string, maxFetch int) ([]map[string]any, error) {
	stream, err := data.Query(ctx, soql)
	if err != nil {
		return nil, errs.NewTransport(string(object), err)
	}
	defer stream.Close()

	var out []map[string]any
	for len(out) < maxFetch && stream.Next(ctx) {
		out = append(out, stream.Record())
	}
	if err := stream.Err(); err != nil {
		return nil, errs.NewTransport(string(object), err)
	}
	return out, nil
}

func quoteIDList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = soqlQuote(id)
	}
	return strings.Join(quoted, ",")
}

// renderOutputs emits one CSV per input query (seeds and related alike),
// reverse-translating id/reference columns through opts.IdMap when
// supplied.
func renderOutputs(queries []DumpQuery, describer *Describer, fetched *fetchedSet, opts DumpOptions) ([]string, error) {
	reverse := make(map[string]string, len(opts.IdMap))
	for src, tgt := range opts.IdMap {
		reverse[tgt] = src
	}

	out := make([]string, len(queries))
	for qi, q := range queries {
		var desc ObjectDescription
		if describer != nil {
			desc, _ = describer.FindObject(q.Object)
		}
		fieldNames := selectListFields(q, desc)

		records := fetched.byObject[q.Object]
		ids := make([]string, 0, len(records))
		for id := range records {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		rows := make([][]string, 0, len(ids))
		for _, id := range ids {
			rec := records[id]
			row := make([]string, len(fieldNames))
			for i, name := range fieldNames {
				row[i] = formatDumpCell(rec[name], name, desc, reverse, describer)
			}
			rows = append(rows, row)
		}

		// Column headers stay namespaced -- they're the original field
		// names. WriteCSV takes only one name per column, so there's no
		// separate stripped "key" to carry here; if a caller round-trips
		// this CSV back through readCSV/loadCSVData, defaultNamespace
		// lookup on the load side already tolerates either form.
		csvText, err := WriteCSV(fieldNames, rows)
		if err != nil {
			return nil, err
		}
		out[qi] = csvText
	}
	return out, nil
}

func selectListFields(q DumpQuery, desc ObjectDescription) []string {
	if len(q.Fields) > 0 {
		return q.Fields
	}
	ignore := make(map[string]struct{}, len(q.IgnoreFields))
	for _, f := range q.IgnoreFields {
		ignore[strings.ToLower(f)] = struct{}{}
	}
	var names []string
	for _, f := range desc.Fields {
		if _, skip := ignore[strings.ToLower(f.Name)]; skip {
			continue
		}
		names = append(names, f.Name)
	}
	if len(names) == 0 {
		return []string{"Id"}
	}
	return names
}

func formatDumpCell(v any, fieldName string, desc ObjectDescription, reverse map[string]string, describer *Describer) string {
	s := fmt.Sprint(v)
	if v == nil {
		return ""
	}
	f, ok := desc.FieldByName(fieldName, describerNamespace(describer))
	if !ok || (f.Type != FieldID && f.Type != FieldReference) {
		return s
	}
	if src, ok := reverse[s]; ok {
		return src
	}
	return s
}

func describerNamespace(d *Describer) string {
	if d == nil {
		return ""
	}
	return d.defaultNamespace
}

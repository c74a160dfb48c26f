package core

// mapping.go implements the mapping-policy resolver: it seeds the IdMap
// from business-key matches and default mappings, resolved against the
// target instance via DataClient.Query.

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/stomita/salesforce-migration-automatic/internal/errs"
)

// ResolveMappings builds the initial IdMap contribution of policies against
// datasets, using data to query the target instance for business-key and
// default-mapping matches. Policies for distinct objects never conflict, so
// they run concurrently; the caller merges the result into any pre-seeded
// map.
func ResolveMappings(ctx context.Context, data DataClient, describer *Describer, datasets []LoadDataset, policies []MappingPolicy) (map[string]string, error) {
	byObject := make(map[string]LoadDataset, len(datasets))
	for _, ds := range datasets {
		byObject[foldKey(string(ds.Object))] = ds
	}

	results := make([]map[string]string, len(policies))
	g, gctx := errgroup.WithContext(ctx)
	for i, policy := range policies {
		i, policy := i, policy
		g.Go(func() error {
			ds, ok := byObject[foldKey(string(policy.Object))]
			if !ok {
				return errs.NewUnknownMappingObject(string(policy.Object))
			}
			m, err := resolveOnePolicy(gctx, data, describer, ds, policy)
			if err != nil {
				return err
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]string)
	for _, m := range results {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged, nil
}

func resolveOnePolicy(ctx context.Context, data DataClient, describer *Describer, ds LoadDataset, policy MappingPolicy) (map[string]string, error) {
	result := make(map[string]string)

	idIdx := headerIndex(ds.Headers, "Id", describer, ds.Object)
	keyFields := policy.ResolvedKeyFields()

	if idIdx >= 0 && len(keyFields) > 0 {
		keyIdx := make([]int, len(keyFields))
		for i, k := range keyFields {
			keyIdx[i] = indexOfHeader(ds.Headers, k)
		}
		if !anyNegative(keyIdx) {
			localKeyToSource := make(map[string]string)
			distinctPerField := make([]map[string]struct{}, len(keyFields))
			for i := range distinctPerField {
				distinctPerField[i] = make(map[string]struct{})
			}
			for _, row := range ds.Rows {
				sourceID := row[idIdx]
				if sourceID == "" {
					continue
				}
				parts := make([]string, len(keyIdx))
				for i, ki := range keyIdx {
					parts[i] = row[ki]
					distinctPerField[i][row[ki]] = struct{}{}
				}
				tuple := strings.TrimSpace(strings.Join(parts, "\t"))
				localKeyToSource[tuple] = sourceID
			}

			if len(localKeyToSource) > 0 {
				remoteKeyToTarget, err := queryKeyMatches(ctx, data, policy.Object, keyFields, distinctPerField)
				if err != nil {
					return nil, err
				}
				for tuple, sourceID := range localKeyToSource {
					if targetID, ok := remoteKeyToTarget[tuple]; ok {
						result[sourceID] = targetID
					}
				}
			}
		}
	}

	if policy.DefaultMap != nil {
		targetID, err := resolveDefaultMapping(ctx, data, policy.Object, *policy.DefaultMap)
		if err != nil {
			return nil, err
		}
		if targetID != "" && idIdx >= 0 {
			for _, row := range ds.Rows {
				sourceID := row[idIdx]
				if sourceID == "" {
					continue
				}
				if _, ok := result[sourceID]; !ok {
					result[sourceID] = targetID
				}
			}
		}
	}

	return result, nil
}

// queryKeyMatches issues SELECT Id, K1..Kn FROM object WHERE K1 IN (...) AND
// ... and returns a map keyed by the same tab-joined tuple recipe as the
// local side.
func queryKeyMatches(ctx context.Context, data DataClient, object ObjectName, keyFields []string, distinctPerField []map[string]struct{}) (map[string]string, error) {
	var conds []string
	for i, field := range keyFields {
		values := make([]string, 0, len(distinctPerField[i]))
		for v := range distinctPerField[i] {
			values = append(values, soqlQuote(v))
		}
		conds = append(conds, fmt.Sprintf("%s IN (%s)", field, strings.Join(values, ",")))
	}
	soql := fmt.Sprintf("SELECT Id,%s FROM %s", strings.Join(keyFields, ","), object)
	if len(conds) > 0 {
		soql += " WHERE " + strings.Join(conds, " AND ")
	}

	stream, err := data.Query(ctx, soql)
	if err != nil {
		return nil, errs.NewTransport(string(object), err)
	}
	defer stream.Close()

	out := make(map[string]string)
	for stream.Next(ctx) {
		rec := stream.Record()
		id, _ := rec["Id"].(string)
		parts := make([]string, len(keyFields))
		for i, f := range keyFields {
			parts[i] = fmt.Sprint(rec[f])
		}
		tuple := strings.TrimSpace(strings.Join(parts, "\t"))
		out[tuple] = id
	}
	if err := stream.Err(); err != nil {
		return nil, errs.NewTransport(string(object), err)
	}
	return out, nil
}

// resolveDefaultMapping returns the fallback target id for a default
// mapping, either the literal or the first row of a query.
func resolveDefaultMapping(ctx context.Context, data DataClient, object ObjectName, d DefaultMapping) (string, error) {
	if d.Literal != "" {
		return d.Literal, nil
	}
	soql := fmt.Sprintf("SELECT Id FROM %s", object)
	if d.Condition != "" {
		soql += " WHERE " + d.Condition
	}
	if d.OrderBy != "" {
		soql += " ORDER BY " + d.OrderBy
	}
	soql += " LIMIT 1"
	if d.Offset > 0 {
		soql += fmt.Sprintf(" OFFSET %d", d.Offset)
	}

	stream, err := data.Query(ctx, soql)
	if err != nil {
		return "", errs.NewTransport(string(object), err)
	}
	defer stream.Close()

	if stream.Next(ctx) {
		id, _ := stream.Record()["Id"].(string)
		return id, nil
	}
	if err := stream.Err(); err != nil {
		return "", errs.NewTransport(string(object), err)
	}
	return "", nil
}

// findIdColumn returns the index of the header that maps to the object's
// id-type field, trying the Describer's namespace-tolerant field lookup,
// or falling back to literal header name "Id" when the object's schema
// isn't known to describer.
func findIdColumn(headers []string, object ObjectName, describer *Describer) int {
	if describer != nil {
		if desc, ok := describer.FindObject(object); ok {
			for i, h := range headers {
				if f, ok := desc.FieldByName(h, describer.defaultNamespace); ok && f.Type == FieldID {
					return i
				}
			}
			return -1
		}
	}
	return indexOfHeader(headers, "Id")
}

func headerIndex(headers []string, want string, describer *Describer, object ObjectName) int {
	if foldEqual(want, "Id") {
		return findIdColumn(headers, object, describer)
	}
	ns := ""
	if describer != nil {
		ns = describer.defaultNamespace
	}
	for i, h := range headers {
		if sliceContains([]string{want}, h, ns) {
			return i
		}
	}
	return indexOfHeader(headers, want)
}

func indexOfHeader(headers []string, name string) int {
	for i, h := range headers {
		if foldEqual(h, name) {
			return i
		}
	}
	return -1
}

func anyNegative(idx []int) bool {
	for _, i := range idx {
		if i < 0 {
			return true
		}
	}
	return false
}

func soqlQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
}

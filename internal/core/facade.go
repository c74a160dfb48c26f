package core

// facade.go implements Load and Dump, the two public entry points: each
// builds its own Describer from the objects it's about to touch before
// handing off to the mapping resolver / fixpoint drivers.

import "context"

// Load runs a full upload: builds a Describer over every dataset's object
// plus every mapping policy's object, resolves mappingPolicies against the
// target instance to seed the idMap, then drives the upload fixpoint.
func Load(ctx context.Context, clients Clients, datasets []LoadDataset, mappingPolicies []MappingPolicy, opts UploadOptions) (UploadStatus, error) {
	objNames := make([]ObjectName, 0, len(datasets)+len(mappingPolicies))
	seen := map[string]struct{}{}
	for _, ds := range datasets {
		k := foldKey(string(ds.Object))
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			objNames = append(objNames, ds.Object)
		}
	}
	for _, p := range mappingPolicies {
		k := foldKey(string(p.Object))
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			objNames = append(objNames, p.Object)
		}
	}

	describer, err := NewDescriber(ctx, clients.Schema, objNames, opts.DefaultNamespace)
	if err != nil {
		return UploadStatus{}, err
	}

	if len(mappingPolicies) > 0 {
		resolved, err := ResolveMappings(ctx, clients.Data, describer, datasets, mappingPolicies)
		if err != nil {
			return UploadStatus{}, err
		}
		if opts.IdMap == nil {
			opts.IdMap = resolved
		} else {
			merged := make(map[string]string, len(opts.IdMap)+len(resolved))
			for k, v := range opts.IdMap {
				merged[k] = v
			}
			for k, v := range resolved {
				if _, exists := merged[k]; !exists {
					merged[k] = v
				}
			}
			opts.IdMap = merged
		}
	}

	return LoadCSVData(ctx, clients.Data, describer, datasets, opts)
}

// Dump runs a full dump: builds a Describer over every query's object, then
// drives the dump fixpoint and CSV rendering.
func Dump(ctx context.Context, clients Clients, queries []DumpQuery, opts DumpOptions) ([]string, error) {
	objNames := make([]ObjectName, 0, len(queries))
	seen := map[string]struct{}{}
	for _, q := range queries {
		k := foldKey(string(q.Object))
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			objNames = append(objNames, q.Object)
		}
	}

	describer, err := NewDescriber(ctx, clients.Schema, objNames, opts.DefaultNamespace)
	if err != nil {
		return nil, err
	}

	return DumpAsCSV(ctx, clients.Data, describer, queries, opts)
}

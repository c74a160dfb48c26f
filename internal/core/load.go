package core

// load.go implements the upload fixpoint driver: it repeatedly classifies,
// converts, submits batches, merges new ids into the map, and emits
// progress; it terminates on a fixpoint, the pass in which nothing was
// uploadable.

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/stomita/salesforce-migration-automatic/internal/errs"
	"github.com/stomita/salesforce-migration-automatic/internal/logging"
)

// LoadCSVData uploads datasets to data, using describer for schema lookup
// and options to seed the idMap/targetIds and bound concurrency/batching.
// The returned UploadStatus is final only when the run isn't cancelled
// mid-flight; a cancelled run still returns whatever status it has
// accumulated so far.
func LoadCSVData(ctx context.Context, data DataClient, describer *Describer, datasets []LoadDataset, opts UploadOptions) (UploadStatus, error) {
	idMap := make(map[string]string, len(opts.IdMap))
	for k, v := range opts.IdMap {
		idMap[k] = v
	}
	targetIDs := make(map[string]struct{}, len(opts.TargetIDs))
	for _, id := range opts.TargetIDs {
		targetIDs[id] = struct{}{}
	}

	total := 0
	for _, ds := range datasets {
		total += len(ds.Rows)
	}

	status := UploadStatus{TotalCount: total, IdMap: idMap}

	if err := validateIDColumns(describer, datasets); err != nil {
		return status, err
	}

	remaining := make([]LoadDataset, len(datasets))
	copy(remaining, datasets)

	for {
		if err := ctx.Err(); err != nil {
			return status, nil
		}

		type passResult struct {
			object ObjectName
			pairs  []RecordIdPair
		}

		var blockedThisPass []BlockedRow
		var notLoadableThisPass []NotLoadableRow
		passObjects := make([]passResult, 0, len(remaining))

		for i, ds := range remaining {
			cls := classify(ds, targetIDs, idMap, describer)

			notLoadableThisPass = append(notLoadableThisPass, cls.notLoadables...)

			var ns string
			var desc ObjectDescription
			if describer != nil {
				ns = describer.defaultNamespace
				desc, _ = describer.FindObject(ds.Object)
			}

			var pairs []RecordIdPair
			for _, up := range cls.uploadables {
				pair, err := convertRow(ds.Headers, up.row, ds.Object, desc, idMap, ns)
				if err != nil {
					return status, err
				}
				pairs = append(pairs, pair)
			}
			if len(pairs) > 0 {
				passObjects = append(passObjects, passResult{object: ds.Object, pairs: pairs})
			}

			waitRows := make([][]string, 0, len(cls.waitings))
			for _, w := range cls.waitings {
				waitRows = append(waitRows, w.row)
				blockedThisPass = append(blockedThisPass, BlockedRow{
					Object: ds.Object, OrigID: w.origID,
					BlockingField: w.blockingField, BlockingID: w.blockingID,
				})
			}
			remaining[i].Rows = waitRows
		}

		status.NotLoadable = append(status.NotLoadable, notLoadableThisPass...)

		if len(passObjects) == 0 {
			status.Blocked = blockedThisPass
			return status, nil
		}

		results := make([][]CreateResult, len(passObjects))
		g, gctx := errgroup.WithContext(ctx)
		if opts.MaxConcurrentObjects > 0 {
			g.SetLimit(opts.MaxConcurrentObjects)
		}
		for i, po := range passObjects {
			i, po := i, po
			g.Go(func() error {
				rets, err := createInBatches(gctx, data, po.object, po.pairs, opts.MaxBatchSize)
				if err != nil {
					return errs.NewTransport(string(po.object), err)
				}
				results[i] = rets
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return status, err
		}

		for i, po := range passObjects {
			rets := results[i]
			for j, pair := range po.pairs {
				if j >= len(rets) {
					break
				}
				r := rets[j]
				if r.Success {
					idMap[pair.OrigID] = r.ID
					status.Successes = append(status.Successes, UploadSuccess{Object: po.object, OrigID: pair.OrigID, TargetID: r.ID})
				} else {
					status.Failures = append(status.Failures, UploadFailure{Object: po.object, OrigID: pair.OrigID, Errors: r.Errors})
				}
			}
		}

		if opts.OnProgress != nil {
			opts.OnProgress(UploadProgress{
				TotalCount:   total,
				SuccessCount: len(status.Successes),
				FailureCount: len(status.Failures),
			})
		}
		logging.FromContext(ctx).Debug("upload pass complete",
			"objects", len(passObjects),
			"success_count", len(status.Successes),
			"failure_count", len(status.Failures),
		)
	}
}

// validateIDColumns checks every dataset has a header mapping to an
// id-type field before any pass runs. A dataset's rows may start out
// entirely blocked and only become uploadable on a later pass, by which
// point earlier passes may already have issued real Create calls against
// other objects — so this can't be left to convertRow to discover lazily;
// it must run once, up front, alongside the SchemaNotFound and
// UnknownMappingObject preflight checks.
func validateIDColumns(describer *Describer, datasets []LoadDataset) error {
	for _, ds := range datasets {
		var ns string
		var desc ObjectDescription
		if describer != nil {
			ns = describer.defaultNamespace
			desc, _ = describer.FindObject(ds.Object)
		}
		if !datasetHasIDColumn(ds.Headers, desc, ns) {
			return errs.NewMissingIdColumn(string(ds.Object))
		}
	}
	return nil
}

// datasetHasIDColumn reports whether any header resolves to a field of
// type id under desc, the same resolution convertRow uses per cell.
func datasetHasIDColumn(headers []string, desc ObjectDescription, ns string) bool {
	for _, h := range headers {
		if field, ok := desc.FieldByName(h, ns); ok && field.Type == FieldID {
			return true
		}
	}
	return false
}

// createInBatches splits pairs into chunks of maxBatch (0 means one batch)
// and calls DataClient.Create for each, preserving positional order across
// the concatenated results.
func createInBatches(ctx context.Context, data DataClient, object ObjectName, pairs []RecordIdPair, maxBatch int) ([]CreateResult, error) {
	if maxBatch <= 0 || len(pairs) <= maxBatch {
		records := make([]Record, len(pairs))
		for i, p := range pairs {
			records[i] = p.Record
		}
		return data.Create(ctx, object, records)
	}

	var all []CreateResult
	for start := 0; start < len(pairs); start += maxBatch {
		end := start + maxBatch
		if end > len(pairs) {
			end = len(pairs)
		}
		records := make([]Record, end-start)
		for i, p := range pairs[start:end] {
			records[i] = p.Record
		}
		rets, err := data.Create(ctx, object, records)
		if err != nil {
			return nil, err
		}
		all = append(all, rets...)
	}
	return all, nil
}

package core

// classify.go implements the row classifier: per dataset, it partitions
// rows into uploadable / waiting / not-loadable against the current IdMap
// and TargetIdSet, propagating the target set along reference edges as it
// goes.

// classifyResult is the outcome of classifying one LoadDataset.
type classifyResult struct {
	uploadables  []classifiedRow
	waitings     []classifiedRow
	notLoadables []NotLoadableRow
}

// classifiedRow carries a row alongside the column indices the converter
// needs, plus blocker info for rows that end up waiting.
type classifiedRow struct {
	row           []string
	origID        string
	blockingField string
	blockingID    string
}

// referenceColumn is a reference-typed field whose referenceTo set
// intersects objects known to the Describer, together with its column
// index.
type referenceColumn struct {
	index int
	field FieldDescription
}

// classify partitions dataset's rows. targetIDs is mutated in place:
// target-set propagation across reference edges is a documented side
// effect, not an implementation accident.
func classify(dataset LoadDataset, targetIDs map[string]struct{}, idMap map[string]string, describer *Describer) classifyResult {
	ns := ""
	if describer != nil {
		ns = describer.defaultNamespace
	}

	idIdx := findIdColumn(dataset.Headers, dataset.Object, describer)
	refCols := referenceColumns(dataset.Headers, dataset.Object, describer)

	result := classifyResult{}
	targetsEmpty := len(targetIDs) == 0

	for _, row := range dataset.Rows {
		var id string
		if idIdx >= 0 {
			id = row[idIdx]
		}

		if id != "" {
			if targetID, ok := lookupMap(idMap, id, ns); ok {
				result.notLoadables = append(result.notLoadables, NotLoadableRow{
					Object: dataset.Object, OrigID: id, TargetID: targetID,
				})
				continue
			}
		}

		uploadable := targetsEmpty || setContains(targetIDs, id, ns)
		var blockingField, blockingID string

		for _, rc := range refCols {
			refID := row[rc.index]
			if refID == "" {
				continue
			}

			if setContains(targetIDs, refID, ns) {
				targetIDs[id] = struct{}{}
			} else if setContains(targetIDs, id, ns) {
				targetIDs[refID] = struct{}{}
			}

			if _, ok := lookupMap(idMap, refID, ns); !ok {
				uploadable = false
				if blockingField == "" {
					blockingField = rc.field.Name
					blockingID = refID
				}
			}
		}

		cr := classifiedRow{row: row, origID: id, blockingField: blockingField, blockingID: blockingID}
		if uploadable {
			result.uploadables = append(result.uploadables, cr)
		} else {
			result.waitings = append(result.waitings, cr)
		}
	}

	return result
}

// referenceColumns returns the headers of dataset that describe reference
// fields whose referenceTo includes at least one object the Describer
// knows about. When describer is nil, no reference columns are resolved
// (every row is treated as having no outgoing references).
func referenceColumns(headers []string, object ObjectName, describer *Describer) []referenceColumn {
	if describer == nil {
		return nil
	}
	desc, ok := describer.FindObject(object)
	if !ok {
		return nil
	}

	var out []referenceColumn
	for i, h := range headers {
		f, ok := desc.FieldByName(h, describer.defaultNamespace)
		if !ok || f.Type != FieldReference {
			continue
		}
		known := false
		for _, target := range f.ReferenceTo {
			if describer.Knows(target) {
				known = true
				break
			}
		}
		if known {
			out = append(out, referenceColumn{index: i, field: f})
		}
	}
	return out
}

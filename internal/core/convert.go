package core

// convert.go implements the row->record converter: it coerces string cells
// to typed field values per the field-type policy table, and rewrites
// reference cells through the IdMap.

import (
	"strconv"
	"strings"

	"github.com/stomita/salesforce-migration-automatic/internal/errs"
)

// convertRow turns one classified row into a RecordIdPair, given the
// object's headers and schema. Returns MissingIdColumn if no header maps
// to an id-type field.
func convertRow(headers []string, row []string, object ObjectName, desc ObjectDescription, idMap map[string]string, ns string) (RecordIdPair, error) {
	var origID string
	sawID := false
	record := make(Record)

	for i, header := range headers {
		if i >= len(row) {
			continue
		}
		field, ok := desc.FieldByName(header, ns)
		if !ok {
			continue
		}
		cell := row[i]

		switch field.Type {
		case FieldID:
			origID = cell
			sawID = true

		case FieldReference:
			if !field.Createable {
				continue
			}
			if target, ok := lookupMap(idMap, cell, ns); ok {
				record[field.Name] = StringValue(target)
			} else {
				record[field.Name] = NullValue()
			}

		case FieldInt:
			if !field.Createable {
				continue
			}
			if n, err := strconv.ParseInt(strings.TrimSpace(cell), 10, 64); err == nil {
				record[field.Name] = IntValue(n)
			}

		case FieldDouble, FieldCurrency, FieldPercent:
			if !field.Createable {
				continue
			}
			if f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err == nil {
				record[field.Name] = FloatValue(f)
			}

		case FieldDate, FieldDatetime:
			if !field.Createable {
				continue
			}
			if cell != "" {
				record[field.Name] = StringValue(cell)
			}

		case FieldBoolean:
			if !field.Createable {
				continue
			}
			record[field.Name] = BoolValue(!isFalsy(cell))

		default:
			if !field.Createable {
				continue
			}
			record[field.Name] = StringValue(cell)
		}
	}

	if !sawID {
		return RecordIdPair{}, errs.NewMissingIdColumn(string(object))
	}
	return RecordIdPair{OrigID: origID, Record: record}, nil
}

// isFalsy matches the boolean-cell policy: empty, "0", "n", "f", or "false"
// (case-insensitive) is false, everything else is true.
func isFalsy(cell string) bool {
	switch strings.ToLower(cell) {
	case "", "0", "n", "f", "false":
		return true
	default:
		return false
	}
}

package core

import "context"

// ObjectName identifies an object (table) on the remote service. Comparisons
// are case-insensitive and namespace-tolerant; see nsutil.go.
type ObjectName string

// FieldType is the declared type of a field, as reported by the remote
// service's schema describe call.
type FieldType string

const (
	FieldID        FieldType = "id"
	FieldReference FieldType = "reference"
	FieldInt       FieldType = "int"
	FieldDouble    FieldType = "double"
	FieldCurrency  FieldType = "currency"
	FieldPercent   FieldType = "percent"
	FieldDate      FieldType = "date"
	FieldDatetime  FieldType = "datetime"
	FieldBoolean   FieldType = "boolean"
	// FieldString is the catch-all for every other declared type (text,
	// picklist, textarea, ...); cells are passed through as-is.
	FieldString FieldType = "string"
)

// FieldDescription describes a single field of an object.
type FieldDescription struct {
	Name        string
	Type        FieldType
	Createable  bool
	ReferenceTo []ObjectName
}

// ObjectDescription describes an object's schema as returned by
// SchemaClient.Describe.
type ObjectDescription struct {
	Name   ObjectName
	Fields []FieldDescription
}

// FieldByName returns the field description matching name (case-insensitive,
// namespace-tolerant against ns), and whether it was found.
func (d ObjectDescription) FieldByName(name string, ns string) (FieldDescription, bool) {
	for _, candidate := range []string{name, stripNamespace(name, ns), addNamespace(name, ns)} {
		for _, f := range d.Fields {
			if foldEqual(f.Name, candidate) {
				return f, true
			}
		}
		if candidate == name && ns == "" {
			break
		}
	}
	return FieldDescription{}, false
}

// LoadDataset is a single CSV file's worth of input rows for one object.
// Every row must have len(Headers) cells, and exactly one header must map to
// a field of type FieldID.
type LoadDataset struct {
	Object  ObjectName
	Headers []string
	Rows    [][]string
}

// Value is a tagged-union field value produced by the row converter. Dates
// and datetimes flow through as strings (ValueString); the transport layer
// is responsible for any further serialization.
type Value struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueString
	ValueInt
	ValueFloat
	ValueBool
)

func NullValue() Value           { return Value{Kind: ValueNull} }
func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }
func IntValue(i int64) Value     { return Value{Kind: ValueInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: ValueFloat, Float: f} }
func BoolValue(b bool) Value     { return Value{Kind: ValueBool, Bool: b} }

// IsNull reports whether the value is the null/absent marker.
func (v Value) IsNull() bool { return v.Kind == ValueNull }

// Record is the field->value map sent to DataClient.Create.
type Record map[string]Value

// RecordIdPair pairs a converted record with its source-instance primary
// key, which is never itself written to the outgoing record.
type RecordIdPair struct {
	OrigID string
	Record Record
}

// SchemaClient fetches object schema from the remote service.
type SchemaClient interface {
	Describe(ctx context.Context, object ObjectName) (ObjectDescription, error)
}

// RecordStream is a (possibly bounded) stream of records returned by a
// DataClient.Query call. Callers must Close it.
type RecordStream interface {
	Next(ctx context.Context) bool
	Record() map[string]any
	Err() error
	Close() error
}

// CreateResult is the per-record outcome of a DataClient.Create call. The
// slice returned by Create must be positionally aligned with the records
// passed in.
type CreateResult struct {
	Success bool
	ID      string
	Errors  []string
}

// DataClient performs query and create operations against the remote
// service.
type DataClient interface {
	Query(ctx context.Context, soql string) (RecordStream, error)
	Create(ctx context.Context, object ObjectName, records []Record) ([]CreateResult, error)
}

// Clients bundles the two external collaborators the engine depends on.
type Clients struct {
	Schema SchemaClient
	Data   DataClient
}

// UploadProgress is reported to UploadProgressFunc between upload passes.
type UploadProgress struct {
	TotalCount   int
	SuccessCount int
	FailureCount int
}

// UploadProgressFunc is invoked synchronously between upload passes.
type UploadProgressFunc func(UploadProgress)

// DumpProgress is reported to DumpProgressFunc after each dump phase.
type DumpProgress struct {
	FetchedCount          int
	FetchedCountPerObject map[ObjectName]int
}

// DumpProgressFunc is invoked synchronously between dump phases.
type DumpProgressFunc func(DumpProgress)

// UploadSuccess records one successfully created record.
type UploadSuccess struct {
	Object   ObjectName
	OrigID   string
	TargetID string
}

// UploadFailure records one record that the remote service rejected.
type UploadFailure struct {
	Object ObjectName
	OrigID string
	Errors []string
}

// BlockedRow records a row that never became uploadable because at least
// one reference cell had no entry in the final ID map.
type BlockedRow struct {
	Object        ObjectName
	OrigID        string
	BlockingField string
	BlockingID    string
}

// NotLoadableRow records a row whose ID was already present in the ID map
// at classification time (already mapped from a previous run or a seed).
type NotLoadableRow struct {
	Object   ObjectName
	OrigID   string
	TargetID string
}

// UploadStatus is the union of outcomes over a LoadCSVData run.
type UploadStatus struct {
	TotalCount  int
	Successes   []UploadSuccess
	Failures    []UploadFailure
	Blocked     []BlockedRow
	NotLoadable []NotLoadableRow
	IdMap       map[string]string
}

// DumpQuery describes one object to dump. Queries with Target "query" are
// seeds; the rest are "related" queries describing which other objects to
// follow outward from the seeds.
type DumpQuery struct {
	Object       ObjectName
	Fields       []string
	IgnoreFields []string
	Target       string // "query" | "related"
	Condition    string
	OrderBy      string
	Limit        int
	Offset       int
	Scope        string
}

// MappingPolicy resolves pre-existing target records for one object, either
// by matching a business key or by falling back to a default mapping.
type MappingPolicy struct {
	Object     ObjectName
	KeyField   string
	KeyFields  []string
	DefaultMap *DefaultMapping
}

// ResolvedKeyFields applies the KeyField-is-shorthand-for-KeyFields law.
func (p MappingPolicy) ResolvedKeyFields() []string {
	if len(p.KeyFields) > 0 {
		return p.KeyFields
	}
	if p.KeyField != "" {
		return []string{p.KeyField}
	}
	return nil
}

// DefaultMapping is either a literal target ID, or a query
// (condition/orderby/offset) used to pick a single existing target record.
type DefaultMapping struct {
	Literal   string // if non-empty, used directly as the target ID
	Condition string
	OrderBy   string
	Offset    int
}

// UploadOptions configures LoadCSVData.
type UploadOptions struct {
	DefaultNamespace string
	// IdMap seeds the run's ID map; keys/values are source/target IDs.
	IdMap map[string]string
	// TargetIDs seeds the TargetIdSet (see classify.go); when empty, every
	// row is in scope.
	TargetIDs []string
	// MaxBatchSize caps how many records are sent in a single Create call
	// per object per pass; larger uploadings are chunked. Zero means no
	// chunking.
	MaxBatchSize int
	// MaxConcurrentObjects bounds how many objects' Create calls run
	// concurrently within one pass. Zero means unbounded.
	MaxConcurrentObjects int
	OnProgress           UploadProgressFunc
}

// DumpOptions configures DumpAsCSV.
type DumpOptions struct {
	DefaultNamespace string
	// MaxFetchSize bounds how many records are buffered per query stream.
	// Zero uses the default of 10000.
	MaxFetchSize int
	// IdMap, when supplied, is reverse-applied to id/reference columns in
	// the output so dumped data round-trips back to source-instance IDs.
	IdMap map[string]string
	// MaxConcurrentQueries bounds how many seed queries run concurrently.
	// Zero means unbounded.
	MaxConcurrentQueries int
	OnProgress           DumpProgressFunc
}

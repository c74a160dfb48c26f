package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stomita/salesforce-migration-automatic/internal/errs"
)

// scriptedDataClient answers Create deterministically per object, and
// counts calls so tests can assert pass counts and ordering guarantees.
type scriptedDataClient struct {
	mu         sync.Mutex
	nextID     map[string]int
	failIDs    map[string]bool // OrigID set by tests; Create never reads it (records carry no OrigID)
	createLog  []string        // "object:n" per call, for pass-count assertions
}

func newScriptedDataClient() *scriptedDataClient {
	return &scriptedDataClient{nextID: map[string]int{}, failIDs: map[string]bool{}}
}

func (c *scriptedDataClient) Query(ctx context.Context, soql string) (RecordStream, error) {
	return &fakeRecordStream{}, nil
}

func (c *scriptedDataClient) Create(ctx context.Context, object ObjectName, records []Record) ([]CreateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createLog = append(c.createLog, fmt.Sprintf("%s:%d", object, len(records)))
	out := make([]CreateResult, len(records))
	for i := range records {
		c.nextID[string(object)]++
		out[i] = CreateResult{Success: true, ID: fmt.Sprintf("%sTgt%d", object, c.nextID[string(object)])}
	}
	return out, nil
}

func accountContactDescriber(t *testing.T) *Describer {
	return buildDescriber(t,
		ObjectDescription{Name: "Account", Fields: []FieldDescription{
			{Name: "Id", Type: FieldID},
			{Name: "Name", Type: FieldString, Createable: true},
		}},
		ObjectDescription{Name: "Contact", Fields: []FieldDescription{
			{Name: "Id", Type: FieldID},
			{Name: "AccountId", Type: FieldReference, Createable: true, ReferenceTo: []ObjectName{"Account"}},
		}},
	)
}

func TestLoadCSVDataSimpleUpload(t *testing.T) {
	d := accountContactDescriber(t)
	data := newScriptedDataClient()
	datasets := []LoadDataset{
		{Object: "Account", Headers: []string{"Id", "Name"}, Rows: [][]string{{"acc1", "Acme"}}},
	}

	status, err := LoadCSVData(context.Background(), data, d, datasets, UploadOptions{})
	if err != nil {
		t.Fatalf("LoadCSVData: %v", err)
	}
	if status.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", status.TotalCount)
	}
	if len(status.Successes) != 1 || status.Successes[0].TargetID != "AccountTgt1" {
		t.Fatalf("expected 1 success with AccountTgt1, got %+v", status.Successes)
	}
	if status.IdMap["acc1"] != "AccountTgt1" {
		t.Errorf("IdMap[acc1] = %q", status.IdMap["acc1"])
	}
}

func TestLoadCSVDataFixpointAcrossPasses(t *testing.T) {
	d := accountContactDescriber(t)
	data := newScriptedDataClient()
	datasets := []LoadDataset{
		{Object: "Contact", Headers: []string{"Id", "AccountId"}, Rows: [][]string{{"con1", "acc1"}}},
		{Object: "Account", Headers: []string{"Id", "Name"}, Rows: [][]string{{"acc1", "Acme"}}},
	}

	status, err := LoadCSVData(context.Background(), data, d, datasets, UploadOptions{})
	if err != nil {
		t.Fatalf("LoadCSVData: %v", err)
	}
	if len(status.Successes) != 2 {
		t.Fatalf("expected both rows to eventually succeed, got %+v", status.Successes)
	}
	if len(status.Blocked) != 0 {
		t.Errorf("expected no rows left blocked, got %+v", status.Blocked)
	}
	// Account must have been created before Contact could resolve its
	// reference, i.e. across two distinct passes.
	if len(data.createLog) < 2 {
		t.Errorf("expected at least 2 create passes, got %v", data.createLog)
	}
}

func TestLoadCSVDataBlockedWhenReferenceNeverResolves(t *testing.T) {
	d := accountContactDescriber(t)
	data := newScriptedDataClient()
	datasets := []LoadDataset{
		{Object: "Contact", Headers: []string{"Id", "AccountId"}, Rows: [][]string{{"con1", "ghostAcc"}}},
	}

	status, err := LoadCSVData(context.Background(), data, d, datasets, UploadOptions{})
	if err != nil {
		t.Fatalf("LoadCSVData: %v", err)
	}
	if len(status.Blocked) != 1 {
		t.Fatalf("expected 1 blocked row, got %+v", status.Blocked)
	}
	if status.Blocked[0].BlockingID != "ghostAcc" {
		t.Errorf("BlockingID = %q, want ghostAcc", status.Blocked[0].BlockingID)
	}
}

func TestLoadCSVDataAlreadyMappedRowsAreNotLoadable(t *testing.T) {
	d := accountContactDescriber(t)
	data := newScriptedDataClient()
	datasets := []LoadDataset{
		{Object: "Account", Headers: []string{"Id", "Name"}, Rows: [][]string{{"acc1", "Acme"}}},
	}
	opts := UploadOptions{IdMap: map[string]string{"acc1": "preExistingTarget"}}

	status, err := LoadCSVData(context.Background(), data, d, datasets, opts)
	if err != nil {
		t.Fatalf("LoadCSVData: %v", err)
	}
	if len(status.NotLoadable) != 1 || status.NotLoadable[0].TargetID != "preExistingTarget" {
		t.Fatalf("expected 1 not-loadable row mapped to preExistingTarget, got %+v", status.NotLoadable)
	}
	if len(status.Successes) != 0 {
		t.Errorf("expected no creates for an already-mapped row, got %+v", status.Successes)
	}
	if len(data.createLog) != 0 {
		t.Errorf("expected zero create calls, got %v", data.createLog)
	}
}

func TestLoadCSVDataTargetIdSetScoping(t *testing.T) {
	d := accountContactDescriber(t)
	data := newScriptedDataClient()
	datasets := []LoadDataset{
		{Object: "Account", Headers: []string{"Id", "Name"}, Rows: [][]string{
			{"acc1", "Acme"},
			{"acc2", "Globex"},
		}},
	}
	opts := UploadOptions{TargetIDs: []string{"acc1"}}

	status, err := LoadCSVData(context.Background(), data, d, datasets, opts)
	if err != nil {
		t.Fatalf("LoadCSVData: %v", err)
	}
	if len(status.Successes) != 1 || status.Successes[0].OrigID != "acc1" {
		t.Fatalf("expected only acc1 to upload, got %+v", status.Successes)
	}
	if len(status.Blocked) != 1 || status.Blocked[0].OrigID != "acc2" {
		t.Fatalf("expected acc2 to end up blocked (out of scope, no other passes produce anything), got %+v", status.Blocked)
	}
}

func TestLoadCSVDataPerRecordFailureBlocksDependents(t *testing.T) {
	d := accountContactDescriber(t)
	data := newScriptedDataClient()
	// Force the Account create to fail outright by wrapping Create.
	data.failIDs["acc1"] = true
	failing := &failingOnceDataClient{inner: data, failObject: "Account"}

	datasets := []LoadDataset{
		{Object: "Contact", Headers: []string{"Id", "AccountId"}, Rows: [][]string{{"con1", "acc1"}}},
		{Object: "Account", Headers: []string{"Id", "Name"}, Rows: [][]string{{"acc1", "Acme"}}},
	}

	status, err := LoadCSVData(context.Background(), failing, d, datasets, UploadOptions{})
	if err != nil {
		t.Fatalf("LoadCSVData: %v", err)
	}
	if len(status.Failures) != 1 || status.Failures[0].OrigID != "acc1" {
		t.Fatalf("expected acc1 to be recorded as a failure, got %+v", status.Failures)
	}
	if len(status.Blocked) != 1 || status.Blocked[0].OrigID != "con1" {
		t.Fatalf("expected con1 to end up blocked since acc1 never entered the idMap, got %+v", status.Blocked)
	}
}

// failingOnceDataClient always fails every record for failObject, and
// otherwise delegates to inner.
type failingOnceDataClient struct {
	inner      DataClient
	failObject ObjectName
}

func (c *failingOnceDataClient) Query(ctx context.Context, soql string) (RecordStream, error) {
	return c.inner.Query(ctx, soql)
}

func (c *failingOnceDataClient) Create(ctx context.Context, object ObjectName, records []Record) ([]CreateResult, error) {
	if object == c.failObject {
		out := make([]CreateResult, len(records))
		for i := range records {
			out[i] = CreateResult{Success: false, Errors: []string{"REQUIRED_FIELD_MISSING"}}
		}
		return out, nil
	}
	return c.inner.Create(ctx, object, records)
}

func TestLoadCSVDataBatching(t *testing.T) {
	d := buildDescriber(t, ObjectDescription{Name: "Account", Fields: []FieldDescription{
		{Name: "Id", Type: FieldID},
	}})
	data := newScriptedDataClient()
	rows := make([][]string, 5)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("acc%d", i)}
	}
	datasets := []LoadDataset{{Object: "Account", Headers: []string{"Id"}, Rows: rows}}
	opts := UploadOptions{MaxBatchSize: 2}

	status, err := LoadCSVData(context.Background(), data, d, datasets, opts)
	if err != nil {
		t.Fatalf("LoadCSVData: %v", err)
	}
	if len(status.Successes) != 5 {
		t.Fatalf("expected all 5 rows to succeed, got %+v", status.Successes)
	}
	// 5 rows at batch size 2 -> 3 Create calls (2, 2, 1).
	if len(data.createLog) != 3 {
		t.Errorf("expected 3 batched create calls, got %v", data.createLog)
	}
}

func TestLoadCSVDataMissingIdColumnAbortsBeforeAnyCreate(t *testing.T) {
	d := accountContactDescriber(t)
	data := newScriptedDataClient()
	datasets := []LoadDataset{
		// Contact starts out blocked on an unresolved reference, so it
		// would only become uploadable on pass 2 if the id column check
		// were deferred to convertRow.
		{Object: "Contact", Headers: []string{"Id", "AccountId"}, Rows: [][]string{{"con1", "acc1"}}},
		// Account has no header mapping to the id field at all.
		{Object: "Account", Headers: []string{"Name"}, Rows: [][]string{{"Acme"}}},
	}

	_, err := LoadCSVData(context.Background(), data, d, datasets, UploadOptions{})
	if err == nil {
		t.Fatal("expected MissingIdColumn error, got nil")
	}
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.KindMissingIdColumn {
		t.Fatalf("expected KindMissingIdColumn, got %v", err)
	}
	if len(data.createLog) != 0 {
		t.Errorf("expected no Create calls before the preflight check runs, got %v", data.createLog)
	}
}

func TestLoadCSVDataReRunIsIdempotent(t *testing.T) {
	d := accountContactDescriber(t)
	data := newScriptedDataClient()
	datasets := []LoadDataset{
		{Object: "Account", Headers: []string{"Id", "Name"}, Rows: [][]string{{"acc1", "Acme"}}},
	}

	first, err := LoadCSVData(context.Background(), data, d, datasets, UploadOptions{})
	if err != nil {
		t.Fatalf("first LoadCSVData: %v", err)
	}

	second, err := LoadCSVData(context.Background(), data, d, datasets, UploadOptions{IdMap: first.IdMap})
	if err != nil {
		t.Fatalf("second LoadCSVData: %v", err)
	}
	if len(second.Successes) != 0 {
		t.Errorf("expected no new creates on re-run, got %+v", second.Successes)
	}
	if len(second.NotLoadable) != 1 || second.NotLoadable[0].TargetID != first.IdMap["acc1"] {
		t.Errorf("expected re-run to report the row as not-loadable with the same target id, got %+v", second.NotLoadable)
	}
}

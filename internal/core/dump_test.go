package core

import (
	"context"
	"strings"
	"testing"
)

// queuedDataClient serves Query responses from a per-object FIFO queue,
// matching on whichever object name the SOQL's FROM clause mentions.
type queuedDataClient struct {
	queues map[string][][]map[string]any
}

func newQueuedDataClient() *queuedDataClient {
	return &queuedDataClient{queues: map[string][][]map[string]any{}}
}

func (c *queuedDataClient) enqueue(object string, recs []map[string]any) {
	c.queues[object] = append(c.queues[object], recs)
}

func (c *queuedDataClient) Query(ctx context.Context, soql string) (RecordStream, error) {
	for obj, qs := range c.queues {
		if len(qs) == 0 {
			continue
		}
		if strings.Contains(soql, "FROM "+obj) {
			c.queues[obj] = qs[1:]
			return &fakeRecordStream{rows: qs[0]}, nil
		}
	}
	return &fakeRecordStream{}, nil
}

func (c *queuedDataClient) Create(ctx context.Context, object ObjectName, records []Record) ([]CreateResult, error) {
	return nil, nil
}

func dumpDescriber(t *testing.T) *Describer {
	return buildDescriber(t,
		ObjectDescription{Name: "Account", Fields: []FieldDescription{
			{Name: "Id", Type: FieldID},
			{Name: "Name", Type: FieldString},
		}},
		ObjectDescription{Name: "Contact", Fields: []FieldDescription{
			{Name: "Id", Type: FieldID},
			{Name: "AccountId", Type: FieldReference, ReferenceTo: []ObjectName{"Account"}},
			{Name: "LastName", Type: FieldString},
		}},
	)
}

func TestDumpAsCSVSeedOnly(t *testing.T) {
	d := dumpDescriber(t)
	data := newQueuedDataClient()
	data.enqueue("Account", []map[string]any{{"Id": "acc1", "Name": "Acme"}})

	queries := []DumpQuery{
		{Object: "Account", Target: "query"},
	}
	out, err := DumpAsCSV(context.Background(), data, d, queries, DumpOptions{})
	if err != nil {
		t.Fatalf("DumpAsCSV: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 output, got %d", len(out))
	}
	if !strings.Contains(out[0], "acc1") || !strings.Contains(out[0], "Acme") {
		t.Errorf("expected seed record in output, got %q", out[0])
	}
}

func TestDumpAsCSVRelatedExpansion(t *testing.T) {
	d := dumpDescriber(t)
	data := newQueuedDataClient()
	data.enqueue("Account", []map[string]any{{"Id": "acc1", "Name": "Acme"}})
	data.enqueue("Contact", []map[string]any{{"Id": "con1", "AccountId": "acc1", "LastName": "Lovelace"}})

	queries := []DumpQuery{
		{Object: "Account", Target: "query"},
		{Object: "Contact", Target: "related"},
	}
	out, err := DumpAsCSV(context.Background(), data, d, queries, DumpOptions{})
	if err != nil {
		t.Fatalf("DumpAsCSV: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(out))
	}
	if !strings.Contains(out[1], "con1") || !strings.Contains(out[1], "Lovelace") {
		t.Errorf("expected related Contact in output[1], got %q", out[1])
	}
}

func TestDumpAsCSVDependentExpansion(t *testing.T) {
	d := dumpDescriber(t)
	data := newQueuedDataClient()
	// Seed on Contact; Account is fetched by following the outgoing
	// AccountId reference (dependent expansion), not an incoming one.
	data.enqueue("Contact", []map[string]any{{"Id": "con1", "AccountId": "acc1", "LastName": "Lovelace"}})
	data.enqueue("Account", []map[string]any{{"Id": "acc1", "Name": "Acme"}})

	queries := []DumpQuery{
		{Object: "Contact", Target: "query"},
		{Object: "Account", Target: "related"},
	}
	out, err := DumpAsCSV(context.Background(), data, d, queries, DumpOptions{})
	if err != nil {
		t.Fatalf("DumpAsCSV: %v", err)
	}
	if !strings.Contains(out[1], "acc1") {
		t.Errorf("expected dependent Account fetched via outgoing reference, got %q", out[1])
	}
}

func TestDumpAsCSVClosureTerminatesWithoutNewRecords(t *testing.T) {
	d := dumpDescriber(t)
	data := newQueuedDataClient()
	data.enqueue("Account", []map[string]any{{"Id": "acc1", "Name": "Acme"}})
	// No Contact enqueued at all: related expansion finds nothing and the
	// loop must still terminate rather than hang.
	queries := []DumpQuery{
		{Object: "Account", Target: "query"},
		{Object: "Contact", Target: "related"},
	}
	out, err := DumpAsCSV(context.Background(), data, d, queries, DumpOptions{})
	if err != nil {
		t.Fatalf("DumpAsCSV: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(out))
	}
}

func TestDumpAsCSVReverseIdMapRewrite(t *testing.T) {
	d := dumpDescriber(t)
	data := newQueuedDataClient()
	data.enqueue("Account", []map[string]any{{"Id": "targetAcc1", "Name": "Acme"}})

	queries := []DumpQuery{{Object: "Account", Target: "query"}}
	opts := DumpOptions{IdMap: map[string]string{"sourceAcc1": "targetAcc1"}}

	out, err := DumpAsCSV(context.Background(), data, d, queries, opts)
	if err != nil {
		t.Fatalf("DumpAsCSV: %v", err)
	}
	if !strings.Contains(out[0], "sourceAcc1") {
		t.Errorf("expected Id column rewritten back to source id, got %q", out[0])
	}
	if strings.Contains(out[0], "targetAcc1") {
		t.Errorf("expected target id not to leak into output, got %q", out[0])
	}
}

func TestDumpAsCSVHeadersStayNamespaced(t *testing.T) {
	client := newFakeSchemaClient(ObjectDescription{Name: "acme__Account", Fields: []FieldDescription{
		{Name: "Id", Type: FieldID},
		{Name: "acme__Name", Type: FieldString},
	}})
	d, err := NewDescriber(context.Background(), client, []ObjectName{"acme__Account"}, "acme")
	if err != nil {
		t.Fatalf("NewDescriber: %v", err)
	}
	data := newQueuedDataClient()
	data.enqueue("acme__Account", []map[string]any{{"Id": "acc1", "acme__Name": "Acme"}})

	queries := []DumpQuery{{Object: "acme__Account", Target: "query"}}
	out, err := DumpAsCSV(context.Background(), data, d, queries, DumpOptions{DefaultNamespace: "acme"})
	if err != nil {
		t.Fatalf("DumpAsCSV: %v", err)
	}
	header := strings.SplitN(out[0], "\n", 2)[0]
	if !strings.Contains(header, "acme__Name") {
		t.Errorf("expected namespaced header acme__Name, got %q", header)
	}
	if strings.Contains(header, ",Name") || strings.HasPrefix(header, "Name") {
		t.Errorf("header must not be stripped of its namespace, got %q", header)
	}
}

func TestDumpAsCSVFieldSelectionIgnoreFields(t *testing.T) {
	d := dumpDescriber(t)
	data := newQueuedDataClient()
	data.enqueue("Account", []map[string]any{{"Id": "acc1", "Name": "Acme"}})

	queries := []DumpQuery{{Object: "Account", Target: "query", IgnoreFields: []string{"Name"}}}
	out, err := DumpAsCSV(context.Background(), data, d, queries, DumpOptions{})
	if err != nil {
		t.Fatalf("DumpAsCSV: %v", err)
	}
	if strings.Contains(out[0], "Name") {
		t.Errorf("expected Name column to be excluded, got %q", out[0])
	}
	if !strings.Contains(out[0], "Id") {
		t.Errorf("expected Id column present, got %q", out[0])
	}
}

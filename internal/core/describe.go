package core

// describe.go implements the Describer: it fetches every requested object's
// schema once, at construction, caches it, and resolves object/field names
// with namespace fallback. Lookups never fetch. Once built, a Describer is
// immutable and safe for concurrent reads.

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/stomita/salesforce-migration-automatic/internal/errs"
)

// Describer resolves object/field schema, tolerating case and namespace
// variation in the names callers supply.
type Describer struct {
	defaultNamespace string
	objects          map[string]ObjectDescription // keyed by foldKey(name)
}

// NewDescriber fetches schema for every name in objectNames via client,
// building an immutable Describer. Fetches run concurrently.
//
// On a SchemaNotFound from the client, and only when defaultNamespace is
// set, the object is retried once with its namespace stripped — e.g. a
// caller-supplied "Account" dataset whose remote name is actually
// "acme__Account__c" never hits this path; the reverse (caller supplies
// the namespaced name but the client only recognizes the bare one) does.
func NewDescriber(ctx context.Context, client SchemaClient, objectNames []ObjectName, defaultNamespace string) (*Describer, error) {
	d := &Describer{
		defaultNamespace: defaultNamespace,
		objects:          make(map[string]ObjectDescription, len(objectNames)),
	}

	type fetched struct {
		key  string
		desc ObjectDescription
	}
	results := make([]fetched, len(objectNames))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range objectNames {
		i, name := i, name
		g.Go(func() error {
			desc, err := describeWithRetry(gctx, client, name, defaultNamespace)
			if err != nil {
				return err
			}
			results[i] = fetched{key: foldKey(string(name)), desc: desc}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		d.objects[r.key] = r.desc
	}
	return d, nil
}

func describeWithRetry(ctx context.Context, client SchemaClient, name ObjectName, ns string) (ObjectDescription, error) {
	desc, err := client.Describe(ctx, name)
	if err == nil {
		return desc, nil
	}
	if !errs.IsNotFound(err) || ns == "" {
		return ObjectDescription{}, fmt.Errorf("describe %s: %w", name, err)
	}
	stripped := ObjectName(stripNamespace(string(name), ns))
	if stripped == name {
		return ObjectDescription{}, errs.NewSchemaNotFound(string(name))
	}
	desc, err = client.Describe(ctx, stripped)
	if err != nil {
		return ObjectDescription{}, errs.NewSchemaNotFound(string(name))
	}
	return desc, nil
}

// FindObject returns the description for name, trying the namespace
// fallback chain, or false if the Describer was never built with it.
func (d *Describer) FindObject(name ObjectName) (ObjectDescription, bool) {
	return lookupMap(d.objects, string(name), d.defaultNamespace)
}

// FindField returns the description of a field on object, trying the
// namespace fallback chain on both the object and field names.
func (d *Describer) FindField(object ObjectName, field string) (FieldDescription, bool) {
	desc, ok := d.FindObject(object)
	if !ok {
		return FieldDescription{}, false
	}
	return desc.FieldByName(field, d.defaultNamespace)
}

// Knows reports whether object was resolved during construction.
func (d *Describer) Knows(object ObjectName) bool {
	_, ok := d.FindObject(object)
	return ok
}

// Objects returns every object name the Describer was built with, in no
// particular order.
func (d *Describer) Objects() []ObjectName {
	out := make([]ObjectName, 0, len(d.objects))
	for _, desc := range d.objects {
		out = append(out, desc.Name)
	}
	return out
}

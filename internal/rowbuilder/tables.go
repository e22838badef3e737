package rowbuilder

import (
	"sort"
	"strings"
)

// PromCtx is the routing context of a series: the optional schema and
// physical table overrides carried by its labels. Empty means unset.
type PromCtx struct {
	Schema        string
	PhysicalTable string
}

// Compare orders contexts by schema, then physical table. Unset sorts first.
func (c PromCtx) Compare(o PromCtx) int {
	if r := strings.Compare(c.Schema, o.Schema); r != 0 {
		return r
	}
	return strings.Compare(c.PhysicalTable, o.PhysicalTable)
}

// Opt returns the destination options the context maps to.
func (c PromCtx) Opt() ContextOpt {
	return ContextOpt{Schema: c.Schema, PhysicalTable: c.PhysicalTable}
}

type ctxTables struct {
	builders map[string]*TableBuilder
	order    []string
}

// Tables routes series to table builders by context and table name.
type Tables struct {
	byCtx map[PromCtx]*ctxTables
}

// NewTables returns an empty aggregator.
func NewTables() *Tables {
	return &Tables{byCtx: make(map[PromCtx]*ctxTables)}
}

// GetOrCreateTableBuilder returns the builder for (ctx, table), creating it
// with the given capacity hints on first use. The returned pointer stays
// valid until the next flush or Clear.
func (t *Tables) GetOrCreateTableBuilder(ctx PromCtx, table string, labelHint, rowHint int) *TableBuilder {
	if t.byCtx == nil {
		t.byCtx = make(map[PromCtx]*ctxTables)
	}
	ct, ok := t.byCtx[ctx]
	if !ok {
		ct = &ctxTables{builders: make(map[string]*TableBuilder)}
		t.byCtx[ctx] = ct
	}
	b, ok := ct.builders[table]
	if !ok {
		b = NewTableBuilder(labelHint+2, rowHint)
		ct.builders[table] = b
		ct.order = append(ct.order, table)
	}
	return b
}

// IsEmpty reports whether no builder has been created since the last drain.
func (t *Tables) IsEmpty() bool { return len(t.byCtx) == 0 }

// AsInsertRequests drains every builder into a ContextReq and leaves the
// aggregator empty. Contexts appear in Compare order, tables in the order
// they were first created. Builders that hold no rows are dropped.
func (t *Tables) AsInsertRequests() ContextReq {
	ctxs := make([]PromCtx, 0, len(t.byCtx))
	for c := range t.byCtx {
		ctxs = append(ctxs, c)
	}
	sort.Slice(ctxs, func(i, j int) bool { return ctxs[i].Compare(ctxs[j]) < 0 })

	var req ContextReq
	for _, c := range ctxs {
		ct := t.byCtx[c]
		reqs := make([]RowInsertRequest, 0, len(ct.order))
		for _, name := range ct.order {
			b := ct.builders[name]
			if b.Len() == 0 {
				continue
			}
			reqs = append(reqs, b.AsRowInsertRequest(name))
		}
		if len(reqs) > 0 {
			req.AddRows(c.Opt(), reqs...)
		}
	}
	t.Clear()
	return req
}

// Clear drops every builder so the aggregator can be reused.
func (t *Tables) Clear() {
	for c := range t.byCtx {
		delete(t.byCtx, c)
	}
}

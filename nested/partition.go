package nested

import (
	"github.com/rezakhademix/zorm"
)

// Partition is a single payload split into own attributes and association
// sub-payloads.
type Partition struct {
	// Aliases found in the payload, in association declaration order.
	Aliases []string
	// Attributes is a copy of the payload without association keys.
	Attributes zorm.Values
	// Payloads maps alias to its raw sub-payload. A present key with a nil
	// value is an explicit request to clear the association.
	Payloads map[string]any
}

// BulkPartition is a sequence of payloads split the same way.
type BulkPartition struct {
	// Aliases found in any row, in association declaration order.
	Aliases []string
	// Rows are copies of the payloads without association keys.
	Rows []zorm.Values
	// Payloads maps alias to one sub-payload per row, nil where the row
	// carries none.
	Payloads map[string][]any
}

// Split partitions payload. Keys naming an association are never treated as
// attributes, even when a column of the same name exists. payload is not modified.
func Split(assocs Associations, payload zorm.Values) Partition {
	p := Partition{
		Attributes: make(zorm.Values, len(payload)),
		Payloads:   make(map[string]any),
	}

	for k, v := range payload {
		if _, ok := assocs.Lookup(k); ok {
			p.Payloads[k] = v
			continue
		}
		p.Attributes[k] = v
	}

	for _, alias := range assocs.order {
		if _, ok := p.Payloads[alias]; ok {
			p.Aliases = append(p.Aliases, alias)
		}
	}
	return p
}

// SplitBulk partitions each row of payloads, keeping row order.
func SplitBulk(assocs Associations, payloads []zorm.Values) BulkPartition {
	bp := BulkPartition{
		Rows:     make([]zorm.Values, len(payloads)),
		Payloads: make(map[string][]any),
	}

	for i, payload := range payloads {
		p := Split(assocs, payload)
		bp.Rows[i] = p.Attributes

		for alias, v := range p.Payloads {
			if v == nil {
				continue
			}
			perRow, ok := bp.Payloads[alias]
			if !ok {
				perRow = make([]any, len(payloads))
				bp.Payloads[alias] = perRow
			}
			perRow[i] = v
		}
	}

	for _, alias := range assocs.order {
		if _, ok := bp.Payloads[alias]; ok {
			bp.Aliases = append(bp.Aliases, alias)
		}
	}
	return bp
}

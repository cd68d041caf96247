package models

import "sort"

// DataType is a channel of push data for one symbol.
type DataType string

const (
	DataTypePrice     DataType = "price"
	DataTypeTrades    DataType = "trades"
	DataTypeOrderBook DataType = "orderbook"
	DataTypeChart     DataType = "chart"
)

// AllDataTypes lists every subscribable data type.
var AllDataTypes = []DataType{DataTypePrice, DataTypeTrades, DataTypeOrderBook, DataTypeChart}

// IsValid reports whether d is a known data type.
func (d DataType) IsValid() bool {
	switch d {
	case DataTypePrice, DataTypeTrades, DataTypeOrderBook, DataTypeChart:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------

// DataTypeSet is an unordered set of data types.
type DataTypeSet map[DataType]struct{}

// NewDataTypeSet builds a set from a list, ignoring duplicates.
func NewDataTypeSet(types ...DataType) DataTypeSet {
	s := make(DataTypeSet, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

func (s DataTypeSet) Has(t DataType) bool {
	_, ok := s[t]
	return ok
}

// Union adds every member of other to s.
func (s DataTypeSet) Union(other DataTypeSet) {
	for t := range other {
		s[t] = struct{}{}
	}
}

// Difference returns the members of s that are not in other.
func (s DataTypeSet) Difference(other DataTypeSet) DataTypeSet {
	out := make(DataTypeSet)
	for t := range s {
		if !other.Has(t) {
			out[t] = struct{}{}
		}
	}
	return out
}

// Sorted returns the members in a stable order.
func (s DataTypeSet) Sorted() []DataType {
	out := make([]DataType, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

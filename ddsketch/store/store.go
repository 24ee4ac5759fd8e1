// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2020 Datadog, Inc.

// Package store maps integer bucket indexes to non-negative counts. Dense
// stores back the counts with a contiguous array; collapsing variants bound
// the array length by folding one of the tails into a single sentinel bin.
package store

import (
	"errors"

	"github.com/DataDog/distsketch-go/ddsketch/record"
)

const (
	maxInt = int(^uint(0) >> 1)
	minInt = -maxInt - 1
)

var (
	errUndefinedMinIndex = errors.New("MinIndex of an empty store is undefined")
	errUndefinedMaxIndex = errors.New("MaxIndex of an empty store is undefined")

	errUnknownStoreVariant = errors.New("unknown store variant tag")
	errMissingBinLimit     = errors.New("a collapsing store record requires a bin limit")
)

// Bin is a bucket index along with its count.
type Bin struct {
	index int
	count float64
}

func (b Bin) Index() int     { return b.index }
func (b Bin) Count() float64 { return b.count }

type Store interface {
	Add(index int)
	AddBin(bin Bin)
	AddWithCount(index int, count float64)
	// Bins yields the non-empty bins in ascending index order.
	Bins() <-chan Bin
	// ForEach calls f on the non-empty bins in ascending index order until f
	// returns true.
	ForEach(f func(index int, count float64) (stop bool))
	Copy() Store
	Clear()
	IsEmpty() bool
	MinIndex() (int, error)
	MaxIndex() (int, error)
	TotalCount() float64
	// KeyAtRank returns the smallest index whose cumulated count exceeds
	// rank, or the largest non-empty index if the rank is beyond the total
	// count. KeyAtRank(0) is the smallest non-empty index.
	KeyAtRank(rank float64) int
	// MergeWith folds every bin of the provided store into this one. The
	// provided store is left unchanged.
	MergeWith(store Store)
	ToRecord() *record.Store
}

// FromRecord builds the store that a record describes, applying the recorded
// collapsing policy to future adds and merges. The variant tag set is closed;
// records written with an unknown tag are rejected.
func FromRecord(r *record.Store) (Store, error) {
	if r == nil {
		return nil, errors.New("missing store record")
	}
	var store Store
	switch r.Variant {
	case record.StoreVariantDense:
		store = NewDenseStore()
	case record.StoreVariantCollapsingLowest:
		if r.BinLimit == 0 {
			return nil, errMissingBinLimit
		}
		store = NewCollapsingLowestDenseStore(int(r.BinLimit))
	case record.StoreVariantCollapsingHighest:
		if r.BinLimit == 0 {
			return nil, errMissingBinLimit
		}
		store = NewCollapsingHighestDenseStore(int(r.BinLimit))
	case record.StoreVariantSparse:
		store = NewSparseStore()
	default:
		return nil, errUnknownStoreVariant
	}
	for i, count := range r.ContiguousBinCounts {
		if count != 0 {
			store.AddWithCount(int(r.ContiguousBinIndexOffset)+i, count)
		}
	}
	for index, count := range r.BinCounts {
		store.AddWithCount(int(index), count)
	}
	// The collapsed flags are restored once the recorded bins are in place: a
	// collapsed store folds the indexes beyond its retained range into its
	// extreme bin, which would merge the recorded bins.
	switch s := store.(type) {
	case *CollapsingLowestDenseStore:
		s.isCollapsed = s.isCollapsed || r.CollapsedLowest
	case *CollapsingHighestDenseStore:
		s.isCollapsed = s.isCollapsed || r.CollapsedHighest
	}
	return store, nil
}

func max(x, y int) int {
	if x > y {
		return x
	}
	return y
}

func min(x, y int) int {
	if x < y {
		return x
	}
	return y
}

// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2021 Datadog, Inc.

package store

import (
	"sort"

	"github.com/DataDog/distsketch-go/ddsketch/record"
)

// SparseStore is backed by a map from bucket index to count. It never
// collapses, so it is exact whatever the spread of the indexes, at the cost
// of a higher per-bin overhead than the dense stores and of sorting the
// indexes when they are iterated in order.
type SparseStore struct {
	counts map[int]float64
	count  float64
}

func NewSparseStore() *SparseStore {
	return &SparseStore{counts: make(map[int]float64)}
}

func (s *SparseStore) Add(index int) {
	s.AddWithCount(index, float64(1))
}

func (s *SparseStore) AddBin(bin Bin) {
	s.AddWithCount(bin.Index(), bin.Count())
}

func (s *SparseStore) AddWithCount(index int, count float64) {
	if count == 0 {
		return
	}
	s.counts[index] += count
	s.count += count
}

func (s *SparseStore) IsEmpty() bool {
	return len(s.counts) == 0
}

func (s *SparseStore) TotalCount() float64 {
	return s.count
}

func (s *SparseStore) MinIndex() (int, error) {
	if s.IsEmpty() {
		return 0, errUndefinedMinIndex
	}
	minIndex := maxInt
	for index := range s.counts {
		if index < minIndex {
			minIndex = index
		}
	}
	return minIndex, nil
}

func (s *SparseStore) MaxIndex() (int, error) {
	if s.IsEmpty() {
		return 0, errUndefinedMaxIndex
	}
	maxIndex := minInt
	for index := range s.counts {
		if index > maxIndex {
			maxIndex = index
		}
	}
	return maxIndex, nil
}

// orderedIndexes returns the indexes of the non-empty bins in ascending
// order.
func (s *SparseStore) orderedIndexes() []int {
	indexes := make([]int, 0, len(s.counts))
	for index := range s.counts {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)
	return indexes
}

func (s *SparseStore) KeyAtRank(rank float64) int {
	if rank < 0 {
		rank = 0
	}
	indexes := s.orderedIndexes()
	var n float64
	for _, index := range indexes {
		n += s.counts[index]
		if n > rank {
			return index
		}
	}
	if len(indexes) == 0 {
		return 0
	}
	return indexes[len(indexes)-1]
}

func (s *SparseStore) MergeWith(other Store) {
	if o, ok := other.(*SparseStore); ok {
		for index, count := range o.counts {
			s.AddWithCount(index, count)
		}
		return
	}
	other.ForEach(func(index int, count float64) bool {
		s.AddWithCount(index, count)
		return false
	})
}

func (s *SparseStore) Bins() <-chan Bin {
	ch := make(chan Bin)
	go func() {
		defer close(ch)
		s.ForEach(func(index int, count float64) bool {
			ch <- Bin{index: index, count: count}
			return false
		})
	}()
	return ch
}

func (s *SparseStore) ForEach(f func(index int, count float64) (stop bool)) {
	for _, index := range s.orderedIndexes() {
		if f(index, s.counts[index]) {
			return
		}
	}
}

func (s *SparseStore) Copy() Store {
	counts := make(map[int]float64, len(s.counts))
	for index, count := range s.counts {
		counts[index] = count
	}
	return &SparseStore{counts: counts, count: s.count}
}

func (s *SparseStore) Clear() {
	s.counts = make(map[int]float64)
	s.count = 0
}

func (s *SparseStore) ToRecord() *record.Store {
	r := &record.Store{Variant: record.StoreVariantSparse}
	if s.IsEmpty() {
		return r
	}
	r.BinCounts = make(map[int32]float64, len(s.counts))
	for index, count := range s.counts {
		r.BinCounts[int32(index)] = count
	}
	return r
}

var _ Store = (*SparseStore)(nil)

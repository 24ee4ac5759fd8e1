// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2020 Datadog, Inc.

package store

import (
	"github.com/DataDog/distsketch-go/ddsketch/record"
)

// CollapsingLowestDenseStore is a dense store whose number of bins never
// exceeds binLimit. When needed, the lowest bins are folded into the single
// bin at the bottom of the retained range, so that quantiles in the upper
// tail keep their accuracy. Collapsing is irreversible: once the store is
// collapsed, indexes below the lowest bin keep being folded into it.
type CollapsingLowestDenseStore struct {
	DenseStore
	binLimit    int
	isCollapsed bool
}

// NewCollapsingLowestDenseStore returns a store that contains at most
// binLimit bins. Bins are not allocated until values are added.
func NewCollapsingLowestDenseStore(binLimit int) *CollapsingLowestDenseStore {
	return &CollapsingLowestDenseStore{
		DenseStore: DenseStore{minIndex: maxInt, maxIndex: minInt},
		binLimit:   binLimit,
	}
}

func (s *CollapsingLowestDenseStore) Add(index int) {
	s.AddWithCount(index, float64(1))
}

func (s *CollapsingLowestDenseStore) AddBin(bin Bin) {
	s.AddWithCount(bin.Index(), bin.Count())
}

func (s *CollapsingLowestDenseStore) AddWithCount(index int, count float64) {
	if count == 0 {
		return
	}
	s.bins[s.normalize(index)] += count
	s.count += count
}

// normalize makes sure the bin the provided index folds into exists and
// returns its position in the backing array.
func (s *CollapsingLowestDenseStore) normalize(index int) int {
	if index < s.minIndex {
		if s.isCollapsed && !s.IsEmpty() {
			return s.minIndex - s.offset
		}
		s.extendRange(index, index)
		if s.isCollapsed && index < s.minIndex {
			return s.minIndex - s.offset
		}
	} else if index > s.maxIndex {
		s.extendRange(index, index)
	}
	return index - s.offset
}

func (s *CollapsingLowestDenseStore) extendRange(newMinIndex, newMaxIndex int) {
	newMinIndex = min(newMinIndex, s.minIndex)
	newMaxIndex = max(newMaxIndex, s.maxIndex)

	if newMaxIndex-newMinIndex+1 > s.binLimit {
		newMinIndex = newMaxIndex - s.binLimit + 1
		s.isCollapsed = true
	}

	if s.IsEmpty() {
		s.bins = make([]float64, s.newBinsLength(newMaxIndex-newMinIndex+1))
		s.offset = newMinIndex
		s.minIndex = newMinIndex
		s.maxIndex = newMaxIndex
		return
	}

	if newMinIndex > s.maxIndex {
		// The retained range lies entirely above the current bins: they all
		// fold into the lowest bin of the new range.
		collapsedCount := s.count
		s.bins = make([]float64, s.newBinsLength(newMaxIndex-newMinIndex+1))
		s.offset = newMinIndex
		s.bins[0] = collapsedCount
		s.minIndex = newMinIndex
		s.maxIndex = newMaxIndex
		return
	}

	if newMinIndex > s.minIndex {
		// Fold the bins below the retained range into its lowest bin.
		var collapsedCount float64
		for i := s.minIndex; i < newMinIndex; i++ {
			collapsedCount += s.bins[i-s.offset]
			s.bins[i-s.offset] = 0
		}
		s.bins[newMinIndex-s.offset] += collapsedCount
		s.minIndex = newMinIndex
	}

	if newMinIndex >= s.offset && newMaxIndex < s.offset+len(s.bins) {
		s.minIndex = newMinIndex
		s.maxIndex = newMaxIndex
		return
	}

	tmpBins := make([]float64, s.newBinsLength(newMaxIndex-newMinIndex+1))
	copy(tmpBins[s.minIndex-newMinIndex:], s.bins[s.minIndex-s.offset:s.maxIndex-s.offset+1])
	s.bins = tmpBins
	s.offset = newMinIndex
	s.minIndex = newMinIndex
	s.maxIndex = newMaxIndex
}

func (s *CollapsingLowestDenseStore) newBinsLength(desiredLength int) int {
	return min(s.newLength(desiredLength), s.binLimit)
}

func (s *CollapsingLowestDenseStore) MergeWith(other Store) {
	if other.TotalCount() == 0 {
		return
	}
	o, ok := other.(*CollapsingLowestDenseStore)
	if !ok {
		other.ForEach(func(index int, count float64) bool {
			s.AddWithCount(index, count)
			return false
		})
		return
	}
	// Rebase the array once so that at most one collapse happens, then add
	// the counts pointwise, folding the ones that fall below the retained
	// range into its lowest bin.
	s.extendRange(o.minIndex, o.maxIndex)
	for i := o.minIndex; i <= o.maxIndex; i++ {
		count := o.bins[i-o.offset]
		if count > 0 {
			s.bins[max(i, s.minIndex)-s.offset] += count
		}
	}
	s.count += o.count
	s.isCollapsed = s.isCollapsed || o.isCollapsed
}

func (s *CollapsingLowestDenseStore) Copy() Store {
	bins := make([]float64, len(s.bins))
	copy(bins, s.bins)
	return &CollapsingLowestDenseStore{
		DenseStore: DenseStore{
			bins:     bins,
			count:    s.count,
			offset:   s.offset,
			minIndex: s.minIndex,
			maxIndex: s.maxIndex,
		},
		binLimit:    s.binLimit,
		isCollapsed: s.isCollapsed,
	}
}

func (s *CollapsingLowestDenseStore) Clear() {
	s.DenseStore.Clear()
	s.isCollapsed = false
}

func (s *CollapsingLowestDenseStore) ToRecord() *record.Store {
	r := &record.Store{
		Variant:         record.StoreVariantCollapsingLowest,
		BinLimit:        uint32(s.binLimit),
		CollapsedLowest: s.isCollapsed,
	}
	s.fillRecord(r)
	return r
}

var _ Store = (*CollapsingLowestDenseStore)(nil)

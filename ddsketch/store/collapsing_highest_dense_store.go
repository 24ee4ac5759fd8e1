// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2020 Datadog, Inc.

package store

import (
	"github.com/DataDog/distsketch-go/ddsketch/record"
)

// CollapsingHighestDenseStore is the mirror image of
// CollapsingLowestDenseStore: the highest bins fold into the single bin at
// the top of the retained range, so that quantiles in the lower tail keep
// their accuracy.
type CollapsingHighestDenseStore struct {
	DenseStore
	binLimit    int
	isCollapsed bool
}

func NewCollapsingHighestDenseStore(binLimit int) *CollapsingHighestDenseStore {
	return &CollapsingHighestDenseStore{
		DenseStore: DenseStore{minIndex: maxInt, maxIndex: minInt},
		binLimit:   binLimit,
	}
}

func (s *CollapsingHighestDenseStore) Add(index int) {
	s.AddWithCount(index, float64(1))
}

func (s *CollapsingHighestDenseStore) AddBin(bin Bin) {
	s.AddWithCount(bin.Index(), bin.Count())
}

func (s *CollapsingHighestDenseStore) AddWithCount(index int, count float64) {
	if count == 0 {
		return
	}
	s.bins[s.normalize(index)] += count
	s.count += count
}

func (s *CollapsingHighestDenseStore) normalize(index int) int {
	if index > s.maxIndex {
		if s.isCollapsed && !s.IsEmpty() {
			return s.maxIndex - s.offset
		}
		s.extendRange(index, index)
		if s.isCollapsed && index > s.maxIndex {
			return s.maxIndex - s.offset
		}
	} else if index < s.minIndex {
		s.extendRange(index, index)
	}
	return index - s.offset
}

func (s *CollapsingHighestDenseStore) extendRange(newMinIndex, newMaxIndex int) {
	newMinIndex = min(newMinIndex, s.minIndex)
	newMaxIndex = max(newMaxIndex, s.maxIndex)

	if newMaxIndex-newMinIndex+1 > s.binLimit {
		newMaxIndex = newMinIndex + s.binLimit - 1
		s.isCollapsed = true
	}

	if s.IsEmpty() {
		s.bins = make([]float64, s.newBinsLength(newMaxIndex-newMinIndex+1))
		s.offset = newMinIndex
		s.minIndex = newMinIndex
		s.maxIndex = newMaxIndex
		return
	}

	if newMaxIndex < s.minIndex {
		// The retained range lies entirely below the current bins: they all
		// fold into the highest bin of the new range.
		collapsedCount := s.count
		s.bins = make([]float64, s.newBinsLength(newMaxIndex-newMinIndex+1))
		s.offset = newMinIndex
		s.bins[newMaxIndex-newMinIndex] = collapsedCount
		s.minIndex = newMinIndex
		s.maxIndex = newMaxIndex
		return
	}

	if newMaxIndex < s.maxIndex {
		// Fold the bins above the retained range into its highest bin.
		var collapsedCount float64
		for i := newMaxIndex + 1; i <= s.maxIndex; i++ {
			collapsedCount += s.bins[i-s.offset]
			s.bins[i-s.offset] = 0
		}
		s.bins[newMaxIndex-s.offset] += collapsedCount
		s.maxIndex = newMaxIndex
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

func (s *CollapsingHighestDenseStore) newBinsLength(desiredLength int) int {
	return min(s.newLength(desiredLength), s.binLimit)
}

func (s *CollapsingHighestDenseStore) MergeWith(other Store) {
	if other.TotalCount() == 0 {
		return
	}
	o, ok := other.(*CollapsingHighestDenseStore)
	if !ok {
		other.ForEach(func(index int, count float64) bool {
			s.AddWithCount(index, count)
			return false
		})
		return
	}
	s.extendRange(o.minIndex, o.maxIndex)
	for i := o.minIndex; i <= o.maxIndex; i++ {
		count := o.bins[i-o.offset]
		if count > 0 {
			s.bins[min(i, s.maxIndex)-s.offset] += count
		}
	}
	s.count += o.count
	s.isCollapsed = s.isCollapsed || o.isCollapsed
}

func (s *CollapsingHighestDenseStore) Copy() Store {
	bins := make([]float64, len(s.bins))
	copy(bins, s.bins)
	return &CollapsingHighestDenseStore{
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

func (s *CollapsingHighestDenseStore) Clear() {
	s.DenseStore.Clear()
	s.isCollapsed = false
}

func (s *CollapsingHighestDenseStore) ToRecord() *record.Store {
	r := &record.Store{
		Variant:          record.StoreVariantCollapsingHighest,
		BinLimit:         uint32(s.binLimit),
		CollapsedHighest: s.isCollapsed,
	}
	s.fillRecord(r)
	return r
}

var _ Store = (*CollapsingHighestDenseStore)(nil)

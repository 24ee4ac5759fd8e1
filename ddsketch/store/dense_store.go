// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2020 Datadog, Inc.

package store

import (
	"bytes"
	"fmt"

	"github.com/DataDog/distsketch-go/ddsketch/record"
)

// Grow the backing array by multiples of this length to avoid growing too
// often.
const arrayLengthGrowthIncrement = 64

// DenseStore is a dynamically growing contiguous (non-sparse) store. The
// number of bins is bound only by the size of the array that can be
// allocated. The bin at index i lives at bins[i-offset]; minIndex and
// maxIndex track the range of non-empty bins.
type DenseStore struct {
	bins     []float64
	count    float64
	offset   int
	minIndex int
	maxIndex int
}

func NewDenseStore() *DenseStore {
	return &DenseStore{minIndex: maxInt, maxIndex: minInt}
}

func (s *DenseStore) Add(index int) {
	s.AddWithCount(index, float64(1))
}

func (s *DenseStore) AddBin(bin Bin) {
	s.AddWithCount(bin.Index(), bin.Count())
}

func (s *DenseStore) AddWithCount(index int, count float64) {
	if count == 0 {
		return
	}
	s.bins[s.normalize(index)] += count
	s.count += count
}

// normalize makes sure the bin at the provided index exists and returns its
// position in the backing array.
func (s *DenseStore) normalize(index int) int {
	if index < s.minIndex || index > s.maxIndex {
		s.extendRange(index, index)
	}
	return index - s.offset
}

func (s *DenseStore) extendRange(newMinIndex, newMaxIndex int) {
	newMinIndex = min(newMinIndex, s.minIndex)
	newMaxIndex = max(newMaxIndex, s.maxIndex)

	if s.IsEmpty() {
		s.bins = make([]float64, s.newLength(newMaxIndex-newMinIndex+1))
		s.offset = newMinIndex
	} else if newMinIndex < s.offset || newMaxIndex >= s.offset+len(s.bins) {
		tmpBins := make([]float64, s.newLength(newMaxIndex-newMinIndex+1))
		copy(tmpBins[s.minIndex-newMinIndex:], s.bins[s.minIndex-s.offset:s.maxIndex-s.offset+1])
		s.bins = tmpBins
		s.offset = newMinIndex
	}
	s.minIndex = newMinIndex
	s.maxIndex = newMaxIndex
}

func (s *DenseStore) newLength(desiredLength int) int {
	return ((desiredLength-1)/arrayLengthGrowthIncrement + 1) * arrayLengthGrowthIncrement
}

func (s *DenseStore) IsEmpty() bool {
	return s.count == 0
}

func (s *DenseStore) TotalCount() float64 {
	return s.count
}

func (s *DenseStore) MinIndex() (int, error) {
	if s.IsEmpty() {
		return 0, errUndefinedMinIndex
	}
	return s.minIndex, nil
}

func (s *DenseStore) MaxIndex() (int, error) {
	if s.IsEmpty() {
		return 0, errUndefinedMaxIndex
	}
	return s.maxIndex, nil
}

func (s *DenseStore) KeyAtRank(rank float64) int {
	if rank < 0 {
		rank = 0
	}
	var n float64
	for i := s.minIndex; i <= s.maxIndex; i++ {
		n += s.bins[i-s.offset]
		if n > rank {
			return i
		}
	}
	return s.maxIndex
}

func (s *DenseStore) MergeWith(other Store) {
	if other.TotalCount() == 0 {
		return
	}
	o, ok := other.(*DenseStore)
	if !ok {
		other.ForEach(func(index int, count float64) bool {
			s.AddWithCount(index, count)
			return false
		})
		return
	}
	s.extendRange(o.minIndex, o.maxIndex)
	for i := o.minIndex; i <= o.maxIndex; i++ {
		s.bins[i-s.offset] += o.bins[i-o.offset]
	}
	s.count += o.count
}

func (s *DenseStore) Bins() <-chan Bin {
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

func (s *DenseStore) ForEach(f func(index int, count float64) (stop bool)) {
	if s.IsEmpty() {
		return
	}
	for i := s.minIndex; i <= s.maxIndex; i++ {
		if count := s.bins[i-s.offset]; count > 0 {
			if f(i, count) {
				return
			}
		}
	}
}

func (s *DenseStore) Copy() Store {
	bins := make([]float64, len(s.bins))
	copy(bins, s.bins)
	return &DenseStore{
		bins:     bins,
		count:    s.count,
		offset:   s.offset,
		minIndex: s.minIndex,
		maxIndex: s.maxIndex,
	}
}

func (s *DenseStore) Clear() {
	s.bins = nil
	s.count = 0
	s.offset = 0
	s.minIndex = maxInt
	s.maxIndex = minInt
}

func (s *DenseStore) ToRecord() *record.Store {
	r := &record.Store{Variant: record.StoreVariantDense}
	s.fillRecord(r)
	return r
}

// fillRecord writes the counts of the non-empty bins, in ascending index
// order, into the record.
func (s *DenseStore) fillRecord(r *record.Store) {
	if s.IsEmpty() {
		return
	}
	counts := make([]float64, s.maxIndex-s.minIndex+1)
	copy(counts, s.bins[s.minIndex-s.offset:s.maxIndex-s.offset+1])
	r.ContiguousBinCounts = counts
	r.ContiguousBinIndexOffset = int32(s.minIndex)
}

func (s *DenseStore) string() string {
	var buffer bytes.Buffer
	buffer.WriteString("{")
	s.ForEach(func(index int, count float64) bool {
		buffer.WriteString(fmt.Sprintf("%d: %f, ", index, count))
		return false
	})
	buffer.WriteString(fmt.Sprintf("count: %v, minIndex: %d, maxIndex: %d}", s.count, s.minIndex, s.maxIndex))
	return buffer.String()
}

var _ Store = (*DenseStore)(nil)

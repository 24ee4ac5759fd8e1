// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2020 Datadog, Inc.

// Package ddsketch provides a quantile sketch with relative-error guarantees:
// whatever the quantile, the returned value is within a relative distance
// alpha of the value that an exact implementation would have returned. The
// sketch is fully mergeable: sketches built from distinct shards of a stream
// can be combined into a sketch of the whole stream, which is the intended
// way of using it across threads or hosts.
//
// A sketch is not safe for concurrent use; callers either guard it with their
// own synchronization or keep per-shard sketches and merge at read time.
package ddsketch

import (
	"errors"
	"math"

	"github.com/DataDog/distsketch-go/ddsketch/mapping"
	"github.com/DataDog/distsketch-go/ddsketch/record"
	"github.com/DataDog/distsketch-go/ddsketch/stat"
	"github.com/DataDog/distsketch-go/ddsketch/store"
)

// Values whose magnitude is not greater than this cutoff are counted in the
// zero bucket, whatever the mapping could distinguish: distinguishing
// essentially-zero measurements from zero is never worth the bucket range it
// costs.
const defaultMinIndexableValue = 1e-9

var (
	// ErrUntrackableValue is returned when adding a value that is NaN,
	// infinite or outside the range that the mapping can handle.
	ErrUntrackableValue = errors.New("the input value is outside the range that is tracked by the sketch")
	// ErrInvalidCount is returned when adding a value with a count that is
	// not positive and finite.
	ErrInvalidCount = errors.New("the count must be positive and finite")
	// ErrInvalidQuantile is returned by quantile queries when the requested
	// quantile is not between 0 and 1.
	ErrInvalidQuantile = errors.New("the quantile must be between 0 and 1")
	// ErrEmptySketch is returned by queries that are undefined on a sketch
	// that contains no value.
	ErrEmptySketch = errors.New("no such element exists")
	// ErrIncompatibleSketch is returned when merging two sketches whose
	// mappings bucket values differently. The receiver is left unchanged.
	ErrIncompatibleSketch = errors.New("cannot merge sketches with different index mappings")
)

type DDSketch struct {
	mapping.IndexMapping
	positiveValueStore store.Store
	negativeValueStore store.Store
	zeroCount          float64
	minIndexableValue  float64
	summary            *stat.SummaryStatistics
}

// NewDDSketch composes a sketch from a mapping and the stores that hold the
// bucket counts of the positive and negative values.
func NewDDSketch(indexMapping mapping.IndexMapping, positiveValueStore store.Store, negativeValueStore store.Store) *DDSketch {
	return &DDSketch{
		IndexMapping:       indexMapping,
		positiveValueStore: positiveValueStore,
		negativeValueStore: negativeValueStore,
		minIndexableValue:  math.Max(indexMapping.MinIndexableValue(), defaultMinIndexableValue),
		summary:            stat.NewSummaryStatistics(),
	}
}

// NewDefaultDDSketch returns a sketch with the given relative accuracy whose
// memory grows with the range of the input values.
func NewDefaultDDSketch(relativeAccuracy float64) (*DDSketch, error) {
	indexMapping, err := mapping.NewLogarithmicMapping(relativeAccuracy)
	if err != nil {
		return nil, err
	}
	return NewDDSketch(indexMapping, store.NewDenseStore(), store.NewDenseStore()), nil
}

// LogCollapsingLowestDenseDDSketch returns a sketch with the given relative
// accuracy whose memory is bounded: each store holds at most maxNumBins bins,
// collapsing the ones of lowest magnitude when needed. Quantiles that fall in
// the highest-magnitude buckets keep their accuracy guarantee whatever the
// number of distinct buckets ingested.
func LogCollapsingLowestDenseDDSketch(relativeAccuracy float64, maxNumBins int) (*DDSketch, error) {
	indexMapping, err := mapping.NewLogarithmicMapping(relativeAccuracy)
	if err != nil {
		return nil, err
	}
	if maxNumBins <= 0 {
		return nil, errors.New("the maximum number of bins must be positive")
	}
	return NewDDSketch(indexMapping, store.NewCollapsingLowestDenseStore(maxNumBins), store.NewCollapsingLowestDenseStore(maxNumBins)), nil
}

// LogCollapsingHighestDenseDDSketch is the mirror image of
// LogCollapsingLowestDenseDDSketch: the buckets of highest magnitude collapse
// first, so quantiles around the smallest magnitudes keep their guarantee.
func LogCollapsingHighestDenseDDSketch(relativeAccuracy float64, maxNumBins int) (*DDSketch, error) {
	indexMapping, err := mapping.NewLogarithmicMapping(relativeAccuracy)
	if err != nil {
		return nil, err
	}
	if maxNumBins <= 0 {
		return nil, errors.New("the maximum number of bins must be positive")
	}
	return NewDDSketch(indexMapping, store.NewCollapsingHighestDenseStore(maxNumBins), store.NewCollapsingHighestDenseStore(maxNumBins)), nil
}

// Add a value to the sketch with a count of 1.
func (s *DDSketch) Add(value float64) error {
	return s.AddWithCount(value, float64(1))
}

// AddWithCount adds a value to the sketch with the given count, which does
// not have to be an integer. The sketch is unchanged when an error is
// returned.
func (s *DDSketch) AddWithCount(value, count float64) error {
	if math.IsNaN(value) || value < -s.MaxIndexableValue() || value > s.MaxIndexableValue() {
		return ErrUntrackableValue
	}
	if count <= 0 || math.IsNaN(count) || math.IsInf(count, 0) {
		return ErrInvalidCount
	}

	if value > s.minIndexableValue {
		s.positiveValueStore.AddWithCount(s.Index(value), count)
	} else if value < -s.minIndexableValue {
		s.negativeValueStore.AddWithCount(s.Index(-value), count)
	} else {
		s.zeroCount += count
	}
	s.summary.Add(value, count)
	return nil
}

// GetValueAtQuantile returns an approximation of the value whose rank is
// quantile*(count-1) among the added values. The returned value is within a
// relative distance of RelativeAccuracy() from the value that sorting the
// whole stream would have returned, unless that rank falls in a tail that a
// store collapsed. Quantiles 0 and 1 return the exact minimum and maximum.
func (s *DDSketch) GetValueAtQuantile(quantile float64) (float64, error) {
	if math.IsNaN(quantile) || quantile < 0 || quantile > 1 {
		return math.NaN(), ErrInvalidQuantile
	}
	count := s.GetCount()
	if count == 0 {
		return math.NaN(), ErrEmptySketch
	}
	if quantile == 0 {
		return s.summary.Min(), nil
	}
	if quantile == 1 {
		return s.summary.Max(), nil
	}

	rank := quantile * (count - 1)
	negativeValueCount := s.negativeValueStore.TotalCount()
	var value float64
	if rank < negativeValueCount {
		value = -s.Value(s.negativeValueStore.KeyAtRank(negativeValueCount - 1 - rank))
	} else if rank < s.zeroCount+negativeValueCount {
		value = 0
	} else {
		value = s.Value(s.positiveValueStore.KeyAtRank(rank - s.zeroCount - negativeValueCount))
	}
	// The mapped value of the extreme buckets can stick out of the range of
	// the values that have actually been encountered.
	return math.Min(math.Max(value, s.summary.Min()), s.summary.Max()), nil
}

// GetValuesAtQuantiles returns the values at the provided quantiles.
func (s *DDSketch) GetValuesAtQuantiles(quantiles []float64) ([]float64, error) {
	values := make([]float64, len(quantiles))
	for i, q := range quantiles {
		value, err := s.GetValueAtQuantile(q)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

// GetCount returns the total count of added values, zero included.
func (s *DDSketch) GetCount() float64 {
	return s.zeroCount + s.positiveValueStore.TotalCount() + s.negativeValueStore.TotalCount()
}

// GetZeroCount returns the count of values that fell in the zero bucket.
func (s *DDSketch) GetZeroCount() float64 {
	return s.zeroCount
}

// GetSum returns the exact sum of the added values.
func (s *DDSketch) GetSum() float64 {
	return s.summary.Sum()
}

// GetAvg returns the exact average of the added values.
func (s *DDSketch) GetAvg() (float64, error) {
	if s.IsEmpty() {
		return math.NaN(), ErrEmptySketch
	}
	return s.summary.Sum() / s.summary.Count(), nil
}

// GetMinValue returns the exact minimum of the added values.
func (s *DDSketch) GetMinValue() (float64, error) {
	if s.IsEmpty() {
		return math.NaN(), ErrEmptySketch
	}
	return s.summary.Min(), nil
}

// GetMaxValue returns the exact maximum of the added values.
func (s *DDSketch) GetMaxValue() (float64, error) {
	if s.IsEmpty() {
		return math.NaN(), ErrEmptySketch
	}
	return s.summary.Max(), nil
}

func (s *DDSketch) IsEmpty() bool {
	return s.zeroCount == 0 && s.positiveValueStore.IsEmpty() && s.negativeValueStore.IsEmpty()
}

// MergeWith folds the other sketch into this one. The other sketch is left
// unchanged; this sketch then behaves as if it had been fed both streams.
// Merging is commutative and associative as long as no store collapses; with
// collapses, the result is deterministic and quantiles outside the collapsed
// tails keep their guarantee. Merging fails, leaving the receiver unchanged,
// if the two mappings do not bucket values identically.
func (s *DDSketch) MergeWith(other *DDSketch) error {
	if !s.IndexMapping.Equals(other.IndexMapping) {
		return ErrIncompatibleSketch
	}
	s.positiveValueStore.MergeWith(other.positiveValueStore)
	s.negativeValueStore.MergeWith(other.negativeValueStore)
	s.zeroCount += other.zeroCount
	s.summary.MergeWith(other.summary)
	return nil
}

func (s *DDSketch) Copy() *DDSketch {
	return &DDSketch{
		IndexMapping:       s.IndexMapping,
		positiveValueStore: s.positiveValueStore.Copy(),
		negativeValueStore: s.negativeValueStore.Copy(),
		zeroCount:          s.zeroCount,
		minIndexableValue:  s.minIndexableValue,
		summary:            s.summary.Copy(),
	}
}

// Clear empties the sketch while allowing reusing already allocated memory.
func (s *DDSketch) Clear() {
	s.positiveValueStore.Clear()
	s.negativeValueStore.Clear()
	s.zeroCount = 0
	s.summary.Clear()
}

// ToRecord projects the sketch to its logical serialized form.
func (s *DDSketch) ToRecord() *record.Sketch {
	return &record.Sketch{
		Mapping:        s.IndexMapping.ToRecord(),
		PositiveValues: s.positiveValueStore.ToRecord(),
		NegativeValues: s.negativeValueStore.ToRecord(),
		ZeroCount:      s.zeroCount,
		Count:          s.summary.Count(),
		Sum:            s.summary.Sum(),
		Min:            s.summary.Min(),
		Max:            s.summary.Max(),
	}
}

// FromRecord builds the sketch that a record describes. The rebuilt sketch
// answers every quantile query identically to the one the record was
// projected from.
func FromRecord(r *record.Sketch) (*DDSketch, error) {
	indexMapping, err := mapping.FromRecord(r.Mapping)
	if err != nil {
		return nil, err
	}
	positiveValueStore, err := store.FromRecord(r.PositiveValues)
	if err != nil {
		return nil, err
	}
	negativeValueStore, err := store.FromRecord(r.NegativeValues)
	if err != nil {
		return nil, err
	}
	summary, err := stat.NewSummaryStatisticsFromData(r.Count, r.Sum, r.Min, r.Max)
	if err != nil {
		return nil, err
	}
	return &DDSketch{
		IndexMapping:       indexMapping,
		positiveValueStore: positiveValueStore,
		negativeValueStore: negativeValueStore,
		zeroCount:          r.ZeroCount,
		minIndexableValue:  math.Max(indexMapping.MinIndexableValue(), defaultMinIndexableValue),
		summary:            summary,
	}, nil
}

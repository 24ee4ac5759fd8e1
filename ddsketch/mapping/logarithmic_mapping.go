// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2020 Datadog, Inc.

package mapping

import (
	"fmt"
	"math"

	"github.com/DataDog/distsketch-go/ddsketch/record"
)

// LogarithmicMapping is a memory-optimal mapping: given a target relative
// accuracy, it requires the least number of buckets to cover a given range of
// values. Computing an index costs one evaluation of the logarithm.
//
// The mapping constants are all derived from gamma, so that a mapping rebuilt
// from a record buckets every value identically to the one the record was
// projected from.
type LogarithmicMapping struct {
	gamma            float64
	relativeAccuracy float64
	multiplier       float64
	indexOffset      float64
}

func NewLogarithmicMapping(relativeAccuracy float64) (*LogarithmicMapping, error) {
	if relativeAccuracy <= 0 || relativeAccuracy >= 1 {
		return nil, ErrInvalidRelativeAccuracy
	}
	return NewLogarithmicMappingWithGamma((1+relativeAccuracy)/(1-relativeAccuracy), 0)
}

func NewLogarithmicMappingWithGamma(gamma, indexOffset float64) (*LogarithmicMapping, error) {
	if gamma <= 1 {
		return nil, ErrInvalidGamma
	}
	return &LogarithmicMapping{
		gamma:            gamma,
		relativeAccuracy: 1 - 2/(1+gamma),
		multiplier:       1 / math.Log(gamma),
		indexOffset:      indexOffset,
	}, nil
}

func (m *LogarithmicMapping) Equals(other IndexMapping) bool {
	o, ok := other.(*LogarithmicMapping)
	if !ok {
		return false
	}
	tol := 1e-12
	return withinTolerance(m.gamma, o.gamma, tol) && withinTolerance(m.indexOffset, o.indexOffset, tol)
}

func (m *LogarithmicMapping) Index(value float64) int {
	return ceilToInt(math.Log(value)*m.multiplier + m.indexOffset)
}

func (m *LogarithmicMapping) Value(index int) float64 {
	return m.lowerBound(index) * (1 + m.relativeAccuracy)
}

// lowerBound returns the lower bound of the bucket, gamma^(index-1) when the
// index offset is zero.
func (m *LogarithmicMapping) lowerBound(index int) float64 {
	return math.Exp((float64(index) - 1 - m.indexOffset) / m.multiplier)
}

func (m *LogarithmicMapping) MinIndexableValue() float64 {
	return math.Max(
		math.Exp((math.MinInt32-m.indexOffset)/m.multiplier+1), // so that index >= MinInt32
		minNormalFloat64*m.gamma,
	)
}

func (m *LogarithmicMapping) MaxIndexableValue() float64 {
	return math.Min(
		math.Exp((math.MaxInt32-m.indexOffset)/m.multiplier-1), // so that index <= MaxInt32
		math.Exp(expOverflow)/(1+m.relativeAccuracy),           // so that math.Exp does not overflow
	)
}

func (m *LogarithmicMapping) RelativeAccuracy() float64 {
	return m.relativeAccuracy
}

func (m *LogarithmicMapping) ToRecord() *record.IndexMapping {
	return &record.IndexMapping{
		Gamma:         m.gamma,
		IndexOffset:   m.indexOffset,
		Interpolation: record.InterpolationNone,
	}
}

func (m *LogarithmicMapping) String() string {
	return fmt.Sprintf("LogarithmicMapping{gamma: %v, indexOffset: %v}", m.gamma, m.indexOffset)
}

var _ IndexMapping = (*LogarithmicMapping)(nil)

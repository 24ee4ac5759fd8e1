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

// LinearlyInterpolatedMapping approximates the memory-optimal mapping by
// extracting the floor of the base-2 logarithm from the binary representation
// of the value and interpolating the logarithm linearly in-between powers of
// 2. It does not evaluate any transcendental function when computing an
// index.
//
// The linear interpolation underestimates the logarithm, so the bucket width
// in interpolated-logarithm space is set from the natural rather than the
// base-2 logarithm of gamma; that keeps the maximum relative error over any
// whole bucket, not just at bucket boundaries, within the target accuracy.
type LinearlyInterpolatedMapping struct {
	gamma                 float64
	relativeAccuracy      float64
	multiplier            float64
	normalizedIndexOffset float64
}

func NewLinearlyInterpolatedMapping(relativeAccuracy float64) (*LinearlyInterpolatedMapping, error) {
	if relativeAccuracy <= 0 || relativeAccuracy >= 1 {
		return nil, ErrInvalidRelativeAccuracy
	}
	return NewLinearlyInterpolatedMappingWithGamma(
		math.Exp2(math.Log1p(2*relativeAccuracy/(1-relativeAccuracy))), 0)
}

// NewLinearlyInterpolatedMappingWithGamma builds the mapping whose buckets
// have a width of log2(gamma) in interpolated-logarithm space and whose
// indexes are shifted by indexOffset.
func NewLinearlyInterpolatedMappingWithGamma(gamma, indexOffset float64) (*LinearlyInterpolatedMapping, error) {
	if gamma <= 1 {
		return nil, ErrInvalidGamma
	}
	return &LinearlyInterpolatedMapping{
		gamma:                 gamma,
		relativeAccuracy:      1 - 2/(1+math.Exp(math.Log2(gamma))),
		multiplier:            1 / math.Log2(gamma),
		normalizedIndexOffset: indexOffset,
	}, nil
}

func (m *LinearlyInterpolatedMapping) Equals(other IndexMapping) bool {
	o, ok := other.(*LinearlyInterpolatedMapping)
	if !ok {
		return false
	}
	tol := 1e-12
	return withinTolerance(m.gamma, o.gamma, tol) && withinTolerance(m.normalizedIndexOffset, o.normalizedIndexOffset, tol)
}

func (m *LinearlyInterpolatedMapping) Index(value float64) int {
	return ceilToInt(m.approximateLog(value)*m.multiplier + m.normalizedIndexOffset)
}

func (m *LinearlyInterpolatedMapping) Value(index int) float64 {
	return m.lowerBound(index) * (1 + m.relativeAccuracy)
}

func (m *LinearlyInterpolatedMapping) lowerBound(index int) float64 {
	return m.approximateInverseLog((float64(index) - 1 - m.normalizedIndexOffset) / m.multiplier)
}

// approximateLog returns an approximation of log2(x) + 1 that is continuous
// and increasing, and exact at powers of 2.
func (m *LinearlyInterpolatedMapping) approximateLog(x float64) float64 {
	bits := math.Float64bits(x)
	return getExponent(bits) + getSignificandPlusOne(bits)
}

// approximateInverseLog is the inverse of approximateLog.
func (m *LinearlyInterpolatedMapping) approximateInverseLog(x float64) float64 {
	exponent := math.Floor(x - 1)
	significandPlusOne := x - exponent
	return buildFloat64(int(exponent), significandPlusOne)
}

func (m *LinearlyInterpolatedMapping) MinIndexableValue() float64 {
	return math.Max(
		math.Exp2((math.MinInt32-m.normalizedIndexOffset)/m.multiplier-m.approximateLog(1)+1), // so that index >= MinInt32
		minNormalFloat64*m.gamma,
	)
}

func (m *LinearlyInterpolatedMapping) MaxIndexableValue() float64 {
	return math.Min(
		math.Exp2((math.MaxInt32-m.normalizedIndexOffset)/m.multiplier-m.approximateLog(1)-1), // so that index <= MaxInt32
		math.MaxFloat64/(1+m.relativeAccuracy),
	)
}

func (m *LinearlyInterpolatedMapping) RelativeAccuracy() float64 {
	return m.relativeAccuracy
}

func (m *LinearlyInterpolatedMapping) ToRecord() *record.IndexMapping {
	return &record.IndexMapping{
		Gamma:         m.gamma,
		IndexOffset:   m.normalizedIndexOffset,
		Interpolation: record.InterpolationLinear,
	}
}

func (m *LinearlyInterpolatedMapping) String() string {
	return fmt.Sprintf("LinearlyInterpolatedMapping{gamma: %v, indexOffset: %v}", m.gamma, m.normalizedIndexOffset)
}

var _ IndexMapping = (*LinearlyInterpolatedMapping)(nil)

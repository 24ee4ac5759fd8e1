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

const (
	// Writing the index as ceil(multiplier*(e+A*s^3+B*s^2+C*s)+offset), where
	// the value is 2^e*(1+s), those are the coefficients that minimize the
	// multiplier, therefore the memory footprint of the sketch, while keeping
	// the worst-case relative error over any whole bucket within the accuracy
	// of the sketch.
	cubicA = 6.0 / 35.0
	cubicB = -3.0 / 5.0
	cubicC = 10.0 / 7.0
)

// CubicallyInterpolatedMapping approximates the memory-optimal mapping by
// extracting the floor of the base-2 logarithm from the binary representation
// of the value and interpolating the logarithm with a cubic polynomial
// in-between powers of 2. It requires about 30% fewer buckets than
// LinearlyInterpolatedMapping for the same accuracy.
type CubicallyInterpolatedMapping struct {
	gamma                 float64
	relativeAccuracy      float64
	multiplier            float64
	normalizedIndexOffset float64
}

func NewCubicallyInterpolatedMapping(relativeAccuracy float64) (*CubicallyInterpolatedMapping, error) {
	if relativeAccuracy <= 0 || relativeAccuracy >= 1 {
		return nil, ErrInvalidRelativeAccuracy
	}
	return NewCubicallyInterpolatedMappingWithGamma(
		math.Exp2(10.0/7.0*math.Log1p(2*relativeAccuracy/(1-relativeAccuracy))), 0)
}

// NewCubicallyInterpolatedMappingWithGamma builds the mapping whose buckets
// have a width of log2(gamma) in interpolated-logarithm space and whose
// indexes are shifted by indexOffset.
func NewCubicallyInterpolatedMappingWithGamma(gamma, indexOffset float64) (*CubicallyInterpolatedMapping, error) {
	if gamma <= 1 {
		return nil, ErrInvalidGamma
	}
	return &CubicallyInterpolatedMapping{
		gamma:                 gamma,
		relativeAccuracy:      1 - 2/(1+math.Exp(7.0/10*math.Log2(gamma))),
		multiplier:            1 / math.Log2(gamma),
		normalizedIndexOffset: indexOffset,
	}, nil
}

func (m *CubicallyInterpolatedMapping) Equals(other IndexMapping) bool {
	o, ok := other.(*CubicallyInterpolatedMapping)
	if !ok {
		return false
	}
	tol := 1e-12
	return withinTolerance(m.gamma, o.gamma, tol) && withinTolerance(m.normalizedIndexOffset, o.normalizedIndexOffset, tol)
}

func (m *CubicallyInterpolatedMapping) Index(value float64) int {
	return ceilToInt(m.approximateLog(value)*m.multiplier + m.normalizedIndexOffset)
}

func (m *CubicallyInterpolatedMapping) Value(index int) float64 {
	return m.lowerBound(index) * (1 + m.relativeAccuracy)
}

func (m *CubicallyInterpolatedMapping) lowerBound(index int) float64 {
	return m.approximateInverseLog((float64(index) - 1 - m.normalizedIndexOffset) / m.multiplier)
}

// approximateLog returns an approximation of log2(x) that is continuous and
// increasing, and exact at powers of 2.
func (m *CubicallyInterpolatedMapping) approximateLog(x float64) float64 {
	bits := math.Float64bits(x)
	e := getExponent(bits)
	s := getSignificandPlusOne(bits) - 1
	return ((cubicA*s+cubicB)*s+cubicC)*s + e
}

// approximateInverseLog is the inverse of approximateLog. The significand is
// recovered as the single real root of the cubic, using Cardano's formula.
func (m *CubicallyInterpolatedMapping) approximateInverseLog(x float64) float64 {
	exponent := math.Floor(x)
	d0 := cubicB*cubicB - 3*cubicA*cubicC
	d1 := 2*cubicB*cubicB*cubicB - 9*cubicA*cubicB*cubicC - 27*cubicA*cubicA*(x-exponent)
	p := math.Cbrt((d1 - math.Sqrt(d1*d1-4*d0*d0*d0)) / 2)
	significandPlusOne := -(cubicB+p+d0/p)/(3*cubicA) + 1
	return buildFloat64(int(exponent), significandPlusOne)
}

func (m *CubicallyInterpolatedMapping) MinIndexableValue() float64 {
	return math.Max(
		math.Exp2((math.MinInt32-m.normalizedIndexOffset)/m.multiplier-m.approximateLog(1)+1), // so that index >= MinInt32
		minNormalFloat64*(1+m.relativeAccuracy)/(1-m.relativeAccuracy),
	)
}

func (m *CubicallyInterpolatedMapping) MaxIndexableValue() float64 {
	return math.Min(
		math.Exp2((math.MaxInt32-m.normalizedIndexOffset)/m.multiplier-m.approximateLog(1)-1), // so that index <= MaxInt32
		math.Exp(expOverflow)/(1+m.relativeAccuracy), // so that math.Exp does not overflow
	)
}

func (m *CubicallyInterpolatedMapping) RelativeAccuracy() float64 {
	return m.relativeAccuracy
}

func (m *CubicallyInterpolatedMapping) ToRecord() *record.IndexMapping {
	return &record.IndexMapping{
		Gamma:         m.gamma,
		IndexOffset:   m.normalizedIndexOffset,
		Interpolation: record.InterpolationCubic,
	}
}

func (m *CubicallyInterpolatedMapping) String() string {
	return fmt.Sprintf("CubicallyInterpolatedMapping{gamma: %v, indexOffset: %v}", m.gamma, m.normalizedIndexOffset)
}

var _ IndexMapping = (*CubicallyInterpolatedMapping)(nil)

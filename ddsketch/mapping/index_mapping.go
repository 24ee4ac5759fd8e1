// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2020 Datadog, Inc.

// Package mapping maps positive floating-point values to integer bucket
// indexes so that two values that share a bucket differ by at most a factor
// of gamma = (1+alpha)/(1-alpha), where alpha is the relative accuracy of the
// mapping. Bucket k covers the interval (gamma^(k-1), gamma^k], and the value
// that a mapping returns for a bucket is within a relative distance alpha of
// every value of the bucket.
package mapping

import (
	"errors"
	"math"

	"github.com/DataDog/distsketch-go/ddsketch/record"
)

const (
	expOverflow      = 7.094361393031e+02      // value at which math.Exp overflows
	minNormalFloat64 = 2.2250738585072014e-308 // 2^(-1022)

	exponentBias    = 1023
	exponentMask    = uint64(0x7FF0000000000000)
	exponentShift   = 52
	significandMask = uint64(0x000FFFFFFFFFFFFF)
	oneMask         = uint64(0x3FF0000000000000)
)

var (
	// ErrInvalidRelativeAccuracy is returned by constructors when the
	// requested relative accuracy is not strictly between 0 and 1.
	ErrInvalidRelativeAccuracy = errors.New("the relative accuracy must be between 0 and 1")
	// ErrInvalidGamma is returned when rebuilding a mapping from a record
	// whose gamma is not greater than 1.
	ErrInvalidGamma = errors.New("gamma must be greater than 1")

	errUnknownInterpolation = errors.New("unknown interpolation tag")
)

type IndexMapping interface {
	Equals(other IndexMapping) bool
	Index(value float64) int
	Value(index int) float64
	RelativeAccuracy() float64
	// MinIndexableValue returns the smallest positive value the mapping can
	// distinguish from zero.
	MinIndexableValue() float64
	// MaxIndexableValue returns the largest positive value the mapping can
	// handle without overflowing.
	MaxIndexableValue() float64
	ToRecord() *record.IndexMapping
}

// FromRecord builds the mapping that a record describes. The interpolation
// tag set is closed; records written with an unknown tag are rejected.
func FromRecord(r *record.IndexMapping) (IndexMapping, error) {
	if r == nil {
		return nil, errors.New("missing index mapping record")
	}
	switch r.Interpolation {
	case record.InterpolationNone:
		return NewLogarithmicMappingWithGamma(r.Gamma, r.IndexOffset)
	case record.InterpolationLinear:
		return NewLinearlyInterpolatedMappingWithGamma(r.Gamma, r.IndexOffset)
	case record.InterpolationCubic:
		return NewCubicallyInterpolatedMappingWithGamma(r.Gamma, r.IndexOffset)
	default:
		return nil, errUnknownInterpolation
	}
}

// ceilToInt returns the ceiling of x as an int. It is only called on values
// that are far from overflowing an int, which the indexable range checks of
// the sketch guarantee.
func ceilToInt(x float64) int {
	i := int(x)
	if x > float64(i) {
		i++
	}
	return i
}

// getExponent returns the exponent e of the value whose IEEE 754 binary
// representation is float64Bits, such that the value is 2^e * (1+s) with s in
// [0, 1).
func getExponent(float64Bits uint64) float64 {
	return float64(int((float64Bits&exponentMask)>>exponentShift) - exponentBias)
}

// getSignificandPlusOne returns 1+s for the value whose IEEE 754 binary
// representation is float64Bits.
func getSignificandPlusOne(float64Bits uint64) float64 {
	return math.Float64frombits((float64Bits & significandMask) | oneMask)
}

// buildFloat64 builds the value 2^exponent * significandPlusOne from its
// exponent and its significand plus one.
func buildFloat64(exponent int, significandPlusOne float64) float64 {
	return math.Float64frombits(
		(uint64(exponent+exponentBias) << exponentShift & exponentMask) |
			(math.Float64bits(significandPlusOne) & significandMask))
}

func withinTolerance(x, y, tolerance float64) bool {
	if x == 0 || y == 0 {
		return math.Abs(x) <= tolerance && math.Abs(y) <= tolerance
	}
	return math.Abs(x-y) <= tolerance*math.Max(math.Abs(x), math.Abs(y))
}

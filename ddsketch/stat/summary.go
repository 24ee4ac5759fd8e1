// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2021 Datadog, Inc.

// Package stat tracks exact summary statistics of a stream of weighted
// values: the total count, the sum and the extremes. Counts are real-valued;
// negative counts make it possible to subtract streams, in which case min and
// max may be wider than the actual extremes of the resulting stream.
package stat

import (
	"errors"
	"math"
)

type SummaryStatistics struct {
	count float64
	sum   float64
	min   float64
	max   float64
}

func NewSummaryStatistics() *SummaryStatistics {
	return &SummaryStatistics{
		min: math.Inf(1),
		max: math.Inf(-1),
	}
}

// NewSummaryStatisticsFromData builds summary statistics from previously
// recorded data, validating its consistency.
func NewSummaryStatisticsFromData(count, sum, min, max float64) (*SummaryStatistics, error) {
	if count < 0 {
		return nil, errors.New("count cannot be negative")
	}
	if count == 0 {
		if sum != 0 || min != math.Inf(1) || max != math.Inf(-1) {
			return nil, errors.New("no value can have been encountered if the count is zero")
		}
	} else if min > max {
		return nil, errors.New("min cannot be greater than max")
	}
	return &SummaryStatistics{count: count, sum: sum, min: min, max: max}, nil
}

func (s *SummaryStatistics) Count() float64 { return s.count }
func (s *SummaryStatistics) Sum() float64   { return s.sum }
func (s *SummaryStatistics) Min() float64   { return s.min }
func (s *SummaryStatistics) Max() float64   { return s.max }

func (s *SummaryStatistics) Add(value, count float64) {
	s.count += count
	s.sum += value * count
	if value < s.min {
		s.min = value
	}
	if value > s.max {
		s.max = value
	}
}

func (s *SummaryStatistics) MergeWith(o *SummaryStatistics) {
	s.count += o.count
	s.sum += o.sum
	if o.min < s.min {
		s.min = o.min
	}
	if o.max > s.max {
		s.max = o.max
	}
}

// Reweight multiplies the weight of every encountered value by w. Min and max
// are unaffected, except that reweighting by zero empties the statistics.
func (s *SummaryStatistics) Reweight(w float64) {
	s.count *= w
	s.sum *= w
	if w == 0 {
		s.min = math.Inf(1)
		s.max = math.Inf(-1)
	}
}

// Rescale multiplies every encountered value by v.
func (s *SummaryStatistics) Rescale(v float64) {
	s.sum *= v
	if s.min > s.max {
		return
	}
	if v >= 0 {
		s.min *= v
		s.max *= v
	} else {
		s.min, s.max = s.max*v, s.min*v
	}
}

func (s *SummaryStatistics) Clear() {
	s.count = 0
	s.sum = 0
	s.min = math.Inf(1)
	s.max = math.Inf(-1)
}

func (s *SummaryStatistics) Copy() *SummaryStatistics {
	return &SummaryStatistics{
		count: s.count,
		sum:   s.sum,
		min:   s.min,
		max:   s.max,
	}
}

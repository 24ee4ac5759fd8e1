// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2018 Datadog, Inc.

package ddsketch

import (
	"math"
	"testing"

	"github.com/DataDog/distsketch-go/dataset"
	"github.com/DataDog/distsketch-go/ddsketch/mapping"
	"github.com/DataDog/distsketch-go/ddsketch/store"
	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
)

var (
	testRelativeAccuracy = 0.01
	testMaxNumBins       = 1024
	testQuantiles        = []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 0.99, 0.999, 1}
	testSizes            = []int{3, 5, 10, 100, 1000}
)

// The absolute slack granted on top of the accuracy guarantee, to absorb
// floating-point noise in the assertions themselves.
const assertionSlack = 1e-10

type sketchBuilder struct {
	name string
	new  func() *DDSketch
}

func testSketchBuilders() []sketchBuilder {
	return []sketchBuilder{
		{
			name: "unbounded-dense",
			new: func() *DDSketch {
				s, _ := NewDefaultDDSketch(testRelativeAccuracy)
				return s
			},
		},
		{
			name: "collapsing-lowest",
			new: func() *DDSketch {
				s, _ := LogCollapsingLowestDenseDDSketch(testRelativeAccuracy, testMaxNumBins)
				return s
			},
		},
		{
			name: "collapsing-highest",
			new: func() *DDSketch {
				s, _ := LogCollapsingHighestDenseDDSketch(testRelativeAccuracy, testMaxNumBins)
				return s
			},
		},
		{
			name: "unbounded-sparse",
			new: func() *DDSketch {
				m, _ := mapping.NewLogarithmicMapping(testRelativeAccuracy)
				return NewDDSketch(m, store.NewSparseStore(), store.NewSparseStore())
			},
		},
		{
			name: "cubic-dense",
			new: func() *DDSketch {
				m, _ := mapping.NewCubicallyInterpolatedMapping(testRelativeAccuracy)
				return NewDDSketch(m, store.NewDenseStore(), store.NewDenseStore())
			},
		},
	}
}

func EvaluateSketch(t *testing.T, n int, gen dataset.Generator, newSketch func() *DDSketch) {
	g := newSketch()
	d := dataset.NewDataset()
	for i := 0; i < n; i++ {
		value := gen.Generate()
		assert.NoError(t, g.Add(value))
		d.Add(value)
	}
	AssertSketchesAccurate(t, d, g)
}

func AssertSketchesAccurate(t *testing.T, d *dataset.Dataset, g *DDSketch) {
	assert := assert.New(t)
	for _, q := range testQuantiles {
		lowerQuantile := d.LowerQuantile(q)
		upperQuantile := d.UpperQuantile(q)
		minExpectedValue := lowerQuantile - testRelativeAccuracy*math.Abs(lowerQuantile) - assertionSlack
		maxExpectedValue := upperQuantile + testRelativeAccuracy*math.Abs(upperQuantile) + assertionSlack
		quantile, err := g.GetValueAtQuantile(q)
		assert.NoError(err)
		assert.True(minExpectedValue <= quantile, "quantile %v: %v < %v", q, quantile, minExpectedValue)
		assert.True(quantile <= maxExpectedValue, "quantile %v: %v > %v", q, quantile, maxExpectedValue)
	}
	minValue, err := g.GetMinValue()
	assert.NoError(err)
	assert.Equal(d.Min(), minValue)
	maxValue, err := g.GetMaxValue()
	assert.NoError(err)
	assert.Equal(d.Max(), maxValue)
	assert.InDelta(d.Sum(), g.GetSum(), 1e-6*math.Max(math.Abs(d.Sum()), 1))
	assert.Equal(d.Count, g.GetCount())
	avg, err := g.GetAvg()
	assert.NoError(err)
	assert.InDelta(d.Avg(), avg, 1e-6*math.Max(math.Abs(d.Avg()), 1))
}

func TestConstant(t *testing.T) {
	for _, builder := range testSketchBuilders() {
		for _, n := range testSizes {
			constantGenerator := dataset.NewConstant(42)
			EvaluateSketch(t, n, constantGenerator, builder.new)
		}
	}
}

func TestLinear(t *testing.T) {
	for _, builder := range testSketchBuilders() {
		for _, n := range testSizes {
			linearGenerator := dataset.NewLinear()
			EvaluateSketch(t, n, linearGenerator, builder.new)
		}
	}
}

func TestNormal(t *testing.T) {
	for _, builder := range testSketchBuilders() {
		for _, n := range testSizes {
			normalGenerator := dataset.NewNormal(35, 1)
			EvaluateSketch(t, n, normalGenerator, builder.new)
		}
	}
}

func TestLognormal(t *testing.T) {
	for _, builder := range testSketchBuilders() {
		for _, n := range testSizes {
			lognormalGenerator := dataset.NewLognormal(0, -2)
			EvaluateSketch(t, n, lognormalGenerator, builder.new)
		}
	}
}

func TestExponential(t *testing.T) {
	for _, builder := range testSketchBuilders() {
		for _, n := range testSizes {
			expGenerator := dataset.NewExponential(2)
			EvaluateSketch(t, n, expGenerator, builder.new)
		}
	}
}

func TestMergeNormal(t *testing.T) {
	for _, n := range testSizes {
		d := dataset.NewDataset()
		g1, _ := NewDefaultDDSketch(testRelativeAccuracy)
		generator1 := dataset.NewNormal(35, 1)
		for i := 0; i < n; i += 3 {
			value := generator1.Generate()
			assert.NoError(t, g1.Add(value))
			d.Add(value)
		}
		g2, _ := NewDefaultDDSketch(testRelativeAccuracy)
		generator2 := dataset.NewNormal(50, 2)
		for i := 1; i < n; i += 3 {
			value := generator2.Generate()
			assert.NoError(t, g2.Add(value))
			d.Add(value)
		}
		assert.NoError(t, g1.MergeWith(g2))

		g3, _ := NewDefaultDDSketch(testRelativeAccuracy)
		generator3 := dataset.NewNormal(40, 0.5)
		for i := 2; i < n; i += 3 {
			value := generator3.Generate()
			assert.NoError(t, g3.Add(value))
			d.Add(value)
		}
		assert.NoError(t, g1.MergeWith(g3))
		AssertSketchesAccurate(t, d, g1)
	}
}

func TestMergeEmpty(t *testing.T) {
	for _, n := range testSizes {
		d := dataset.NewDataset()
		// Merge a non-empty sketch into an empty sketch.
		g1, _ := NewDefaultDDSketch(testRelativeAccuracy)
		g2, _ := NewDefaultDDSketch(testRelativeAccuracy)
		generator := dataset.NewExponential(5)
		for i := 0; i < n; i++ {
			value := generator.Generate()
			assert.NoError(t, g2.Add(value))
			d.Add(value)
		}
		assert.NoError(t, g1.MergeWith(g2))
		AssertSketchesAccurate(t, d, g1)

		// Merge an empty sketch into a non-empty sketch.
		g3, _ := NewDefaultDDSketch(testRelativeAccuracy)
		assert.NoError(t, g2.MergeWith(g3))
		AssertSketchesAccurate(t, d, g2)
	}
}

func TestMergeMixed(t *testing.T) {
	for _, n := range testSizes {
		d := dataset.NewDataset()
		g1, _ := NewDefaultDDSketch(testRelativeAccuracy)
		generator1 := dataset.NewNormal(100, 1)
		for i := 0; i < n; i += 3 {
			value := generator1.Generate()
			assert.NoError(t, g1.Add(value))
			d.Add(value)
		}
		g2, _ := NewDefaultDDSketch(testRelativeAccuracy)
		generator2 := dataset.NewExponential(5)
		for i := 1; i < n; i += 3 {
			value := generator2.Generate()
			assert.NoError(t, g2.Add(value))
			d.Add(value)
		}
		assert.NoError(t, g1.MergeWith(g2))

		g3, _ := NewDefaultDDSketch(testRelativeAccuracy)
		generator3 := dataset.NewExponential(0.1)
		for i := 2; i < n; i += 3 {
			value := generator3.Generate()
			assert.NoError(t, g3.Add(value))
			d.Add(value)
		}
		assert.NoError(t, g1.MergeWith(g3))

		AssertSketchesAccurate(t, d, g1)
	}
}

// A sketch built from the whole stream and a merge of sketches built from
// disjoint shards answer every quantile identically.
func TestMergeEquivalentToSingleSketch(t *testing.T) {
	for _, builder := range testSketchBuilders() {
		generator := dataset.NewNormal(35, 5)
		values := make([]float64, 1000)
		for i := range values {
			values[i] = generator.Generate()
		}

		whole := builder.new()
		firstHalf := builder.new()
		secondHalf := builder.new()
		for i, v := range values {
			assert.NoError(t, whole.Add(v))
			if i < len(values)/2 {
				assert.NoError(t, firstHalf.Add(v))
			} else {
				assert.NoError(t, secondHalf.Add(v))
			}
		}
		assert.NoError(t, firstHalf.MergeWith(secondHalf))

		expected, err := whole.GetValuesAtQuantiles(testQuantiles)
		assert.NoError(t, err)
		actual, err := firstHalf.GetValuesAtQuantiles(testQuantiles)
		assert.NoError(t, err)
		assert.Equal(t, expected, actual, builder.name)
	}
}

func TestNegativeValues(t *testing.T) {
	for _, builder := range testSketchBuilders() {
		g := builder.new()
		for i := 1; i <= 1000; i++ {
			assert.NoError(t, g.Add(float64(-i)))
		}
		median, err := g.GetValueAtQuantile(0.5)
		assert.NoError(t, err)
		assert.InDelta(t, -500.5, median, 2*testRelativeAccuracy*500.5+assertionSlack)
		minValue, _ := g.GetMinValue()
		assert.Equal(t, float64(-1000), minValue)
		maxValue, _ := g.GetMaxValue()
		assert.Equal(t, float64(-1), maxValue)
	}
}

func TestZeroHandling(t *testing.T) {
	g, _ := NewDefaultDDSketch(testRelativeAccuracy)
	for _, v := range []float64{0.0, 1e-12, -1e-12, 1} {
		assert.NoError(t, g.Add(v))
	}
	assert.Equal(t, float64(3), g.GetZeroCount())
	assert.Equal(t, float64(4), g.GetCount())
	quantile, err := g.GetValueAtQuantile(0.25)
	assert.NoError(t, err)
	assert.Equal(t, float64(0), quantile)
	quantile, err = g.GetValueAtQuantile(1)
	assert.NoError(t, err)
	assert.InDelta(t, 1, quantile, testRelativeAccuracy+assertionSlack)
}

// With a bounded store, ingesting far more distinct buckets than the bin
// limit keeps memory bounded while the maximum stays exact.
func TestCollapseBound(t *testing.T) {
	maxNumBins := 128
	g, err := LogCollapsingLowestDenseDDSketch(testRelativeAccuracy, maxNumBins)
	assert.NoError(t, err)
	for i := 1; i <= 1000; i++ {
		assert.NoError(t, g.Add(math.Pow(2, float64(i))))
	}
	var numBins int
	for range g.positiveValueStore.Bins() {
		numBins++
	}
	assert.LessOrEqual(t, numBins, maxNumBins)
	maxValue, err := g.GetValueAtQuantile(1)
	assert.NoError(t, err)
	assert.Equal(t, math.Pow(2, 1000), maxValue)
	minValue, err := g.GetValueAtQuantile(0)
	assert.NoError(t, err)
	assert.Equal(t, math.Pow(2, 1), minValue)
	// Quantiles in the retained upper tail keep their guarantee.
	q999, err := g.GetValueAtQuantile(0.999)
	assert.NoError(t, err)
	expected := math.Pow(2, 999)
	assert.InDelta(t, expected, q999, 2*testRelativeAccuracy*expected)
}

func TestIncompatibleMerge(t *testing.T) {
	g1, _ := NewDefaultDDSketch(0.01)
	g2, _ := NewDefaultDDSketch(0.02)
	assert.NoError(t, g1.Add(1))
	assert.NoError(t, g2.Add(2))
	err := g1.MergeWith(g2)
	assert.Equal(t, ErrIncompatibleSketch, err)
	// Both sketches are unchanged.
	assert.Equal(t, float64(1), g1.GetCount())
	assert.Equal(t, float64(1), g2.GetCount())
	v1, _ := g1.GetValueAtQuantile(0.5)
	assert.InDelta(t, 1, v1, 0.01+assertionSlack)
	v2, _ := g2.GetValueAtQuantile(0.5)
	assert.InDelta(t, 2, v2, 2*0.02+assertionSlack)
}

func TestAddWithCount(t *testing.T) {
	g, _ := NewDefaultDDSketch(testRelativeAccuracy)
	assert.NoError(t, g.AddWithCount(1, 2.5))
	assert.NoError(t, g.AddWithCount(3, 0.5))
	assert.Equal(t, float64(3), g.GetCount())
	assert.InDelta(t, 4, g.GetSum(), assertionSlack)
	quantile, err := g.GetValueAtQuantile(0.5)
	assert.NoError(t, err)
	assert.InDelta(t, 1, quantile, testRelativeAccuracy+assertionSlack)

	assert.Equal(t, ErrInvalidCount, g.AddWithCount(1, 0))
	assert.Equal(t, ErrInvalidCount, g.AddWithCount(1, -1))
	assert.Equal(t, ErrInvalidCount, g.AddWithCount(1, math.Inf(1)))
	assert.Equal(t, ErrInvalidCount, g.AddWithCount(1, math.NaN()))
	assert.Equal(t, float64(3), g.GetCount())
}

func TestInvalidInputs(t *testing.T) {
	g, _ := NewDefaultDDSketch(testRelativeAccuracy)
	assert.Equal(t, ErrUntrackableValue, g.Add(math.NaN()))
	assert.Equal(t, ErrUntrackableValue, g.Add(math.Inf(1)))
	assert.Equal(t, ErrUntrackableValue, g.Add(math.Inf(-1)))
	assert.True(t, g.IsEmpty())

	_, err := g.GetValueAtQuantile(0.5)
	assert.Equal(t, ErrEmptySketch, err)
	_, err = g.GetAvg()
	assert.Equal(t, ErrEmptySketch, err)
	_, err = g.GetMinValue()
	assert.Equal(t, ErrEmptySketch, err)
	_, err = g.GetMaxValue()
	assert.Equal(t, ErrEmptySketch, err)

	assert.NoError(t, g.Add(1))
	_, err = g.GetValueAtQuantile(-0.1)
	assert.Equal(t, ErrInvalidQuantile, err)
	_, err = g.GetValueAtQuantile(1.1)
	assert.Equal(t, ErrInvalidQuantile, err)
	_, err = g.GetValueAtQuantile(math.NaN())
	assert.Equal(t, ErrInvalidQuantile, err)
}

func TestCopyAndClear(t *testing.T) {
	g, _ := LogCollapsingLowestDenseDDSketch(testRelativeAccuracy, testMaxNumBins)
	for i := 1; i <= 100; i++ {
		assert.NoError(t, g.Add(float64(i)))
	}
	copied := g.Copy()
	assert.Equal(t, g.GetCount(), copied.GetCount())
	assert.NoError(t, g.Add(1000))
	assert.Equal(t, copied.GetCount()+1, g.GetCount())

	g.Clear()
	assert.True(t, g.IsEmpty())
	assert.Zero(t, g.GetCount())
	assert.False(t, copied.IsEmpty())
	_, err := g.GetValueAtQuantile(0.5)
	assert.Equal(t, ErrEmptySketch, err)
	// A cleared sketch can be reused.
	assert.NoError(t, g.Add(42))
	v, err := g.GetValueAtQuantile(0.5)
	assert.NoError(t, err)
	assert.InDelta(t, 42, v, 42*testRelativeAccuracy+assertionSlack)
}

// Successive quantile queries do not modify the sketch.
func TestConsistentQuantile(t *testing.T) {
	var vals []float64
	var q float64
	nTests := 200
	vfuzzer := fuzz.New().NilChance(0).NumElements(10, 500)
	fuzzer := fuzz.New()
	for i := 0; i < nTests; i++ {
		s, _ := NewDefaultDDSketch(testRelativeAccuracy)
		vfuzzer.Fuzz(&vals)
		fuzzer.Fuzz(&q)
		for _, v := range vals {
			assert.NoError(t, s.Add(v))
		}
		q1, err1 := s.GetValueAtQuantile(q)
		q2, err2 := s.GetValueAtQuantile(q)
		assert.Equal(t, err1, err2)
		assert.Equal(t, q1, q2)
	}
}

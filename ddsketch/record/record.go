// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2021 Datadog, Inc.

// Package record defines the logical serialized form of a sketch: the index
// mapping constants, the bin counts of both stores and the summary scalars.
// Building a sketch back from its record produces a sketch that answers every
// quantile query identically.
//
// The wire encoding of a record (MarshalBinary/UnmarshalBinary) uses the
// protobuf wire format and is deterministic: equal records marshal to equal
// bytes.
package record

// Interpolation identifies how an index mapping approximates the logarithm.
// The tag set is closed; decoding an unknown tag fails.
type Interpolation int32

const (
	InterpolationNone Interpolation = iota
	InterpolationLinear
	InterpolationCubic
)

// StoreVariant identifies the store implementation, which determines the
// collapsing policy that the rebuilt store keeps applying.
type StoreVariant int32

const (
	StoreVariantDense StoreVariant = iota
	StoreVariantCollapsingLowest
	StoreVariantCollapsingHighest
	StoreVariantSparse
)

// IndexMapping is the serialized form of an index mapping. Gamma and
// IndexOffset are kept to full double precision so that the rebuilt mapping
// buckets bit-identical inputs identically.
type IndexMapping struct {
	Gamma         float64
	IndexOffset   float64
	Interpolation Interpolation
}

// Store is the serialized form of a bin store. Dense stores use
// ContiguousBinCounts, the counts of the live bins in ascending key order
// starting at ContiguousBinIndexOffset. Sparse stores use BinCounts. BinLimit
// and the collapsed flags are only meaningful for collapsing variants.
type Store struct {
	Variant                  StoreVariant
	BinLimit                 uint32
	ContiguousBinIndexOffset int32
	ContiguousBinCounts      []float64
	BinCounts                map[int32]float64
	CollapsedLowest          bool
	CollapsedHighest         bool
}

// Sketch is the serialized form of a full sketch.
type Sketch struct {
	Mapping        *IndexMapping
	PositiveValues *Store
	NegativeValues *Store
	ZeroCount      float64
	Count          float64
	Sum            float64
	Min            float64
	Max            float64
}

// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2021 Datadog, Inc.

package ddsketch

import (
	"errors"
	"sort"

	enc "github.com/DataDog/distsketch-go/ddsketch/encoding"
	"github.com/DataDog/distsketch-go/ddsketch/record"
)

// The version tag leading every encoded sketch, to be bumped on breaking
// changes of the layout.
const encodingVersion = 1

const (
	collapsedLowestFlag  = 1 << 0
	collapsedHighestFlag = 1 << 1
)

var errUnknownEncodingVersion = errors.New("unknown encoding version")

// Encode appends a compact binary representation of the sketch to the
// provided byte slice. It is more space-efficient than the record wire format
// when bin counts are small integers, which they are unless values are added
// with fractional counts. The output is deterministic: sketches with equal
// bin counts encode to equal bytes.
func (s *DDSketch) Encode(b *[]byte) {
	r := s.ToRecord()
	enc.EncodeUvarint64(b, encodingVersion)
	enc.EncodeFloat64LE(b, r.Mapping.Gamma)
	enc.EncodeFloat64LE(b, r.Mapping.IndexOffset)
	enc.EncodeUvarint64(b, uint64(r.Mapping.Interpolation))
	encodeStore(b, r.PositiveValues)
	encodeStore(b, r.NegativeValues)
	enc.EncodeVarfloat64(b, r.ZeroCount)
	enc.EncodeFloat64LE(b, r.Count)
	enc.EncodeFloat64LE(b, r.Sum)
	enc.EncodeFloat64LE(b, r.Min)
	enc.EncodeFloat64LE(b, r.Max)
}

// DecodeDDSketch rebuilds a sketch that Encode serialized. The rebuilt sketch
// answers every quantile query identically, provided the bin counts are
// exactly representable by the varfloat encoding, which all integer counts
// below 2^53 are.
func DecodeDDSketch(b []byte) (*DDSketch, error) {
	version, err := enc.DecodeUvarint64(&b)
	if err != nil {
		return nil, err
	}
	if version != encodingVersion {
		return nil, errUnknownEncodingVersion
	}
	r := &record.Sketch{Mapping: &record.IndexMapping{}}
	if r.Mapping.Gamma, err = enc.DecodeFloat64LE(&b); err != nil {
		return nil, err
	}
	if r.Mapping.IndexOffset, err = enc.DecodeFloat64LE(&b); err != nil {
		return nil, err
	}
	interpolation, err := enc.DecodeUvarint64(&b)
	if err != nil {
		return nil, err
	}
	r.Mapping.Interpolation = record.Interpolation(interpolation)
	if r.PositiveValues, err = decodeStore(&b); err != nil {
		return nil, err
	}
	if r.NegativeValues, err = decodeStore(&b); err != nil {
		return nil, err
	}
	if r.ZeroCount, err = enc.DecodeVarfloat64(&b); err != nil {
		return nil, err
	}
	if r.Count, err = enc.DecodeFloat64LE(&b); err != nil {
		return nil, err
	}
	if r.Sum, err = enc.DecodeFloat64LE(&b); err != nil {
		return nil, err
	}
	if r.Min, err = enc.DecodeFloat64LE(&b); err != nil {
		return nil, err
	}
	if r.Max, err = enc.DecodeFloat64LE(&b); err != nil {
		return nil, err
	}
	return FromRecord(r)
}

func encodeStore(b *[]byte, r *record.Store) {
	enc.EncodeUvarint64(b, uint64(r.Variant))
	enc.EncodeUvarint64(b, uint64(r.BinLimit))
	var flags uint64
	if r.CollapsedLowest {
		flags |= collapsedLowestFlag
	}
	if r.CollapsedHighest {
		flags |= collapsedHighestFlag
	}
	enc.EncodeUvarint64(b, flags)
	if r.Variant == record.StoreVariantSparse {
		enc.EncodeUvarint64(b, uint64(len(r.BinCounts)))
		previousIndex := 0
		for _, index := range orderedBinIndexes(r.BinCounts) {
			enc.EncodeVarint64(b, int64(index-previousIndex))
			enc.EncodeVarfloat64(b, r.BinCounts[int32(index)])
			previousIndex = index
		}
		return
	}
	enc.EncodeUvarint64(b, uint64(len(r.ContiguousBinCounts)))
	if len(r.ContiguousBinCounts) > 0 {
		enc.EncodeVarint64(b, int64(r.ContiguousBinIndexOffset))
		for _, count := range r.ContiguousBinCounts {
			enc.EncodeVarfloat64(b, count)
		}
	}
}

func decodeStore(b *[]byte) (*record.Store, error) {
	variant, err := enc.DecodeUvarint64(b)
	if err != nil {
		return nil, err
	}
	binLimit, err := enc.DecodeUvarint64(b)
	if err != nil {
		return nil, err
	}
	flags, err := enc.DecodeUvarint64(b)
	if err != nil {
		return nil, err
	}
	r := &record.Store{
		Variant:          record.StoreVariant(variant),
		BinLimit:         uint32(binLimit),
		CollapsedLowest:  flags&collapsedLowestFlag != 0,
		CollapsedHighest: flags&collapsedHighestFlag != 0,
	}
	numBins, err := enc.DecodeUvarint64(b)
	if err != nil {
		return nil, err
	}
	if r.Variant == record.StoreVariantSparse {
		r.BinCounts = make(map[int32]float64, numBins)
		index := int64(0)
		for i := uint64(0); i < numBins; i++ {
			indexDelta, err := enc.DecodeVarint64(b)
			if err != nil {
				return nil, err
			}
			count, err := enc.DecodeVarfloat64(b)
			if err != nil {
				return nil, err
			}
			index += indexDelta
			r.BinCounts[int32(index)] += count
		}
		return r, nil
	}
	if numBins == 0 {
		return r, nil
	}
	offset, err := enc.DecodeVarint64(b)
	if err != nil {
		return nil, err
	}
	r.ContiguousBinIndexOffset = int32(offset)
	r.ContiguousBinCounts = make([]float64, numBins)
	for i := uint64(0); i < numBins; i++ {
		if r.ContiguousBinCounts[i], err = enc.DecodeVarfloat64(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func orderedBinIndexes(binCounts map[int32]float64) []int {
	indexes := make([]int, 0, len(binCounts))
	for index := range binCounts {
		indexes = append(indexes, int(index))
	}
	sort.Ints(indexes)
	return indexes
}

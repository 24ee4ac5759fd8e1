// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2021 Datadog, Inc.

package record

import (
	"errors"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the wire format. They are frozen: changing them breaks
// compatibility with previously written records.
const (
	sketchFieldMapping        = 1
	sketchFieldPositiveValues = 2
	sketchFieldNegativeValues = 3
	sketchFieldZeroCount      = 4
	sketchFieldCount          = 5
	sketchFieldSum            = 6
	sketchFieldMin            = 7
	sketchFieldMax            = 8

	mappingFieldGamma         = 1
	mappingFieldIndexOffset   = 2
	mappingFieldInterpolation = 3

	storeFieldVariant          = 1
	storeFieldBinLimit         = 2
	storeFieldContiguousOffset = 3
	storeFieldContiguousCounts = 4
	storeFieldBinCounts        = 5
	storeFieldCollapsedLowest  = 6
	storeFieldCollapsedHighest = 7

	binCountsFieldKey   = 1
	binCountsFieldValue = 2
)

var errMalformedRecord = errors.New("the binary record is malformed")

// MarshalBinary encodes the sketch record using the protobuf wire format.
// Fields are written in ascending field-number order and map entries in
// ascending key order, so that equal records produce equal bytes.
func (s *Sketch) MarshalBinary() ([]byte, error) {
	var b []byte
	if s.Mapping != nil {
		b = protowire.AppendTag(b, sketchFieldMapping, protowire.BytesType)
		b = protowire.AppendBytes(b, s.Mapping.appendBinary(nil))
	}
	if s.PositiveValues != nil {
		b = protowire.AppendTag(b, sketchFieldPositiveValues, protowire.BytesType)
		b = protowire.AppendBytes(b, s.PositiveValues.appendBinary(nil))
	}
	if s.NegativeValues != nil {
		b = protowire.AppendTag(b, sketchFieldNegativeValues, protowire.BytesType)
		b = protowire.AppendBytes(b, s.NegativeValues.appendBinary(nil))
	}
	b = appendDoubleField(b, sketchFieldZeroCount, s.ZeroCount)
	b = appendDoubleField(b, sketchFieldCount, s.Count)
	b = appendDoubleField(b, sketchFieldSum, s.Sum)
	b = appendDoubleField(b, sketchFieldMin, s.Min)
	b = appendDoubleField(b, sketchFieldMax, s.Max)
	return b, nil
}

// UnmarshalBinary decodes a record written by MarshalBinary. Unknown fields
// are skipped so that records written by newer versions remain readable.
func (s *Sketch) UnmarshalBinary(b []byte) error {
	*s = Sketch{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errMalformedRecord
		}
		b = b[n:]
		switch {
		case num == sketchFieldMapping && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errMalformedRecord
			}
			s.Mapping = &IndexMapping{}
			if err := s.Mapping.unmarshalBinary(v); err != nil {
				return err
			}
			b = b[n:]
		case num == sketchFieldPositiveValues && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errMalformedRecord
			}
			s.PositiveValues = &Store{}
			if err := s.PositiveValues.unmarshalBinary(v); err != nil {
				return err
			}
			b = b[n:]
		case num == sketchFieldNegativeValues && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errMalformedRecord
			}
			s.NegativeValues = &Store{}
			if err := s.NegativeValues.unmarshalBinary(v); err != nil {
				return err
			}
			b = b[n:]
		case typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return errMalformedRecord
			}
			switch num {
			case sketchFieldZeroCount:
				s.ZeroCount = math.Float64frombits(v)
			case sketchFieldCount:
				s.Count = math.Float64frombits(v)
			case sketchFieldSum:
				s.Sum = math.Float64frombits(v)
			case sketchFieldMin:
				s.Min = math.Float64frombits(v)
			case sketchFieldMax:
				s.Max = math.Float64frombits(v)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errMalformedRecord
			}
			b = b[n:]
		}
	}
	return nil
}

func (m *IndexMapping) appendBinary(b []byte) []byte {
	b = appendDoubleField(b, mappingFieldGamma, m.Gamma)
	b = appendDoubleField(b, mappingFieldIndexOffset, m.IndexOffset)
	if m.Interpolation != 0 {
		b = protowire.AppendTag(b, mappingFieldInterpolation, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Interpolation))
	}
	return b
}

func (m *IndexMapping) unmarshalBinary(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errMalformedRecord
		}
		b = b[n:]
		switch {
		case num == mappingFieldGamma && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return errMalformedRecord
			}
			m.Gamma = math.Float64frombits(v)
			b = b[n:]
		case num == mappingFieldIndexOffset && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return errMalformedRecord
			}
			m.IndexOffset = math.Float64frombits(v)
			b = b[n:]
		case num == mappingFieldInterpolation && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errMalformedRecord
			}
			m.Interpolation = Interpolation(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errMalformedRecord
			}
			b = b[n:]
		}
	}
	return nil
}

func (s *Store) appendBinary(b []byte) []byte {
	if s.Variant != 0 {
		b = protowire.AppendTag(b, storeFieldVariant, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.Variant))
	}
	if s.BinLimit != 0 {
		b = protowire.AppendTag(b, storeFieldBinLimit, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.BinLimit))
	}
	if s.ContiguousBinIndexOffset != 0 {
		b = protowire.AppendTag(b, storeFieldContiguousOffset, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(s.ContiguousBinIndexOffset)))
	}
	if len(s.ContiguousBinCounts) > 0 {
		packed := make([]byte, 0, 8*len(s.ContiguousBinCounts))
		for _, count := range s.ContiguousBinCounts {
			packed = protowire.AppendFixed64(packed, math.Float64bits(count))
		}
		b = protowire.AppendTag(b, storeFieldContiguousCounts, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	if len(s.BinCounts) > 0 {
		keys := make([]int, 0, len(s.BinCounts))
		for key := range s.BinCounts {
			keys = append(keys, int(key))
		}
		sort.Ints(keys)
		for _, key := range keys {
			var entry []byte
			entry = protowire.AppendTag(entry, binCountsFieldKey, protowire.VarintType)
			entry = protowire.AppendVarint(entry, protowire.EncodeZigZag(int64(key)))
			entry = protowire.AppendTag(entry, binCountsFieldValue, protowire.Fixed64Type)
			entry = protowire.AppendFixed64(entry, math.Float64bits(s.BinCounts[int32(key)]))
			b = protowire.AppendTag(b, storeFieldBinCounts, protowire.BytesType)
			b = protowire.AppendBytes(b, entry)
		}
	}
	if s.CollapsedLowest {
		b = protowire.AppendTag(b, storeFieldCollapsedLowest, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if s.CollapsedHighest {
		b = protowire.AppendTag(b, storeFieldCollapsedHighest, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

func (s *Store) unmarshalBinary(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errMalformedRecord
		}
		b = b[n:]
		switch {
		case num == storeFieldVariant && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errMalformedRecord
			}
			s.Variant = StoreVariant(v)
			b = b[n:]
		case num == storeFieldBinLimit && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errMalformedRecord
			}
			s.BinLimit = uint32(v)
			b = b[n:]
		case num == storeFieldContiguousOffset && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errMalformedRecord
			}
			s.ContiguousBinIndexOffset = int32(protowire.DecodeZigZag(v))
			b = b[n:]
		case num == storeFieldContiguousCounts && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 || len(v)%8 != 0 {
				return errMalformedRecord
			}
			s.ContiguousBinCounts = make([]float64, 0, len(v)/8)
			for len(v) > 0 {
				bits, n := protowire.ConsumeFixed64(v)
				if n < 0 {
					return errMalformedRecord
				}
				s.ContiguousBinCounts = append(s.ContiguousBinCounts, math.Float64frombits(bits))
				v = v[n:]
			}
			b = b[n:]
		case num == storeFieldBinCounts && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errMalformedRecord
			}
			if err := s.unmarshalBinCountsEntry(v); err != nil {
				return err
			}
			b = b[n:]
		case num == storeFieldCollapsedLowest && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errMalformedRecord
			}
			s.CollapsedLowest = v != 0
			b = b[n:]
		case num == storeFieldCollapsedHighest && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errMalformedRecord
			}
			s.CollapsedHighest = v != 0
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errMalformedRecord
			}
			b = b[n:]
		}
	}
	return nil
}

func (s *Store) unmarshalBinCountsEntry(b []byte) error {
	var key int32
	var count float64
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errMalformedRecord
		}
		b = b[n:]
		switch {
		case num == binCountsFieldKey && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errMalformedRecord
			}
			key = int32(protowire.DecodeZigZag(v))
			b = b[n:]
		case num == binCountsFieldValue && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return errMalformedRecord
			}
			count = math.Float64frombits(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errMalformedRecord
			}
			b = b[n:]
		}
	}
	if s.BinCounts == nil {
		s.BinCounts = make(map[int32]float64)
	}
	s.BinCounts[key] += count
	return nil
}

func appendDoubleField(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 && !math.Signbit(v) {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

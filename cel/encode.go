// Copyright 2024 the evidence-api authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package cel

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sahason/evidence-api/tcg"
)

// Encoding selects the canonical on-wire encoding of a record.
type Encoding uint8

// Known encodings. Only TLV is implemented.
const (
	EncodingTLV  Encoding = 2
	EncodingJSON Encoding = 3
	EncodingCBOR Encoding = 4
)

// ErrUnsupportedEncoding reports an encoding this package cannot produce.
// It is distinct from malformed-record errors so callers can treat it as
// "not yet supported" instead of "invalid evidence".
var ErrUnsupportedEncoding = errors.New("cel: encoding not supported")

// Top-level CEL field types, CEL spec 5.1.
const (
	celTypeRecNum  uint8 = 0
	celTypePCR     uint8 = 1
	celTypeNVIndex uint8 = 2
	celTypeDigests uint8 = 3
)

// recNumValueLength is fixed by the CEL spec: record numbers are encoded in
// 8 bytes, supporting up to 2^64 records.
const recNumValueLength = 8

// Encode renders the record in the requested encoding. The record is not
// modified; the projection is built fresh on every call.
func (r *Record) Encode(enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingTLV:
		return r.MarshalTLV()
	case EncodingJSON:
		return nil, fmt.Errorf("cel: JSON: %w", ErrUnsupportedEncoding)
	case EncodingCBOR:
		return nil, fmt.Errorf("cel: CBOR: %w", ErrUnsupportedEncoding)
	default:
		return nil, fmt.Errorf("cel: encoding %d: %w", enc, ErrUnsupportedEncoding)
	}
}

// MarshalTLV encodes the record as the CEL TLV field sequence: record
// number, register or NV index, digest list, then content.
func (r *Record) MarshalTLV() ([]byte, error) {
	var buf bytes.Buffer

	recNum := make([]byte, recNumValueLength)
	binary.BigEndian.PutUint64(recNum, uint64(r.RecNum))
	if err := writeTLV(&buf, TLV{celTypeRecNum, recNum}); err != nil {
		return nil, err
	}

	indexType := celTypePCR
	if r.indexKind == indexNV {
		indexType = celTypeNVIndex
	}
	if err := writeTLV(&buf, TLV{indexType, beUint32(r.index)}); err != nil {
		return nil, err
	}

	digests, err := digestsTLV(r.Digests)
	if err != nil {
		return nil, err
	}
	if err := writeTLV(&buf, digests); err != nil {
		return nil, err
	}

	if r.Content == nil {
		return nil, errors.New("cel: record has no content to encode")
	}
	content, err := r.Content.contentTLV()
	if err != nil {
		return nil, err
	}
	if err := writeTLV(&buf, content); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// digestsTLV nests one TLV per digest, typed by its algorithm identifier,
// inside the top-level digests field.
func digestsTLV(digests []tcg.Digest) (TLV, error) {
	var buf bytes.Buffer
	for _, d := range digests {
		size, ok := d.Alg.DigestSize()
		if !ok {
			return TLV{}, fmt.Errorf("cel: digest uses unregistered algorithm %v", d.Alg)
		}
		if len(d.Hash) != size {
			return TLV{}, fmt.Errorf("cel: %v digest is %d bytes, expected %d", d.Alg, len(d.Hash), size)
		}
		if err := writeTLV(&buf, TLV{uint8(d.Alg), d.Hash}); err != nil {
			return TLV{}, err
		}
	}
	return TLV{celTypeDigests, buf.Bytes()}, nil
}

func writeTLV(buf *bytes.Buffer, t TLV) error {
	b, err := t.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = buf.Write(b)
	return err
}

func beUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

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

// Package cel models canonical event log records, based on the Canonical
// Event Log spec TCG_IWG_CEL_v1_r0p37. Only the TLV encoding transcribes real
// fields; the JSON and CBOR encodings are explicit extension points.
package cel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	tlvTypeFieldLength   = 1
	tlvLengthFieldLength = 4
)

// TLV is one type-length-value field of a canonical record. The length is
// implied by len(Value) and encoded as a big-endian uint32.
type TLV struct {
	Type  uint8
	Value []byte
}

// MarshalBinary marshals a TLV to a byte slice.
func (t TLV) MarshalBinary() ([]byte, error) {
	buf := make([]byte, tlvTypeFieldLength+tlvLengthFieldLength+len(t.Value))
	buf[0] = t.Type
	binary.BigEndian.PutUint32(buf[tlvTypeFieldLength:], uint32(len(t.Value)))
	copy(buf[tlvTypeFieldLength+tlvLengthFieldLength:], t.Value)
	return buf, nil
}

// UnmarshalBinary unmarshals a byte slice holding exactly one TLV.
func (t *TLV) UnmarshalBinary(data []byte) error {
	if len(data) < tlvTypeFieldLength+tlvLengthFieldLength {
		return fmt.Errorf("cel: TLV needs at least %d bytes, got %d", tlvTypeFieldLength+tlvLengthFieldLength, len(data))
	}
	valueLength := binary.BigEndian.Uint32(data[tlvTypeFieldLength : tlvTypeFieldLength+tlvLengthFieldLength])
	if valueLength != uint32(len(data)-tlvTypeFieldLength-tlvLengthFieldLength) {
		return fmt.Errorf("cel: TLV length %d does not match the size of its value", valueLength)
	}
	t.Type = data[0]
	t.Value = data[tlvTypeFieldLength+tlvLengthFieldLength:]
	return nil
}

// unmarshalFirstTLV reads and parses the first TLV from buf. It returns
// io.EOF if the buffer ends before the TLV is complete.
func unmarshalFirstTLV(buf *bytes.Buffer) (TLV, error) {
	typeByte, err := buf.ReadByte()
	if err != nil {
		return TLV{}, err
	}

	lengthBytes := make([]byte, tlvLengthFieldLength)
	n, err := buf.Read(lengthBytes)
	if err != nil {
		return TLV{}, err
	}
	if n != tlvLengthFieldLength {
		return TLV{}, io.EOF
	}
	valueLength := binary.BigEndian.Uint32(lengthBytes)

	value := make([]byte, valueLength)
	n, err = buf.Read(value)
	if err != nil && valueLength > 0 {
		return TLV{}, err
	}
	if uint32(n) != valueLength {
		return TLV{}, io.EOF
	}
	return TLV{Type: typeByte, Value: value}, nil
}

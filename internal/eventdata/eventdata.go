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

// Package eventdata decodes the payloads of UEFI variable measurement
// events. Verifiers use these to interpret what a record measured, for
// example which secure boot variable or authority certificate.
package eventdata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf16"

	"github.com/google/certificate-transparency-go/x509"
	"github.com/google/uuid"
)

// efiGUID represents the EFI_GUID type: mixed-endian on disk, rendered in
// the canonical RFC 4122 form.
type efiGUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

func (d efiGUID) String() string {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, d.Data1)
	binary.Write(&buf, binary.BigEndian, d.Data2)
	binary.Write(&buf, binary.BigEndian, d.Data3)
	binary.Write(&buf, binary.BigEndian, d.Data4)
	id := uuid.UUID{}
	if err := id.UnmarshalBinary(buf.Bytes()); err != nil {
		return ""
	}
	return id.String()
}

// uefiVariableDataHeader is the fixed-size prefix of UEFI_VARIABLE_DATA.
type uefiVariableDataHeader struct {
	VariableName       efiGUID
	UnicodeNameLength  uint64
	VariableDataLength uint64
}

// UEFIVariableData represents the UEFI_VARIABLE_DATA structure measured for
// EFI variable events.
type UEFIVariableData struct {
	header       uefiVariableDataHeader
	unicodeName  []uint16
	VariableData []byte
}

// ParseUEFIVariableData parses an event payload structured as a UEFI
// variable. The length fields come straight from the log, so both are
// checked against the remaining payload before any allocation.
func ParseUEFIVariableData(data []byte) (*UEFIVariableData, error) {
	r := bytes.NewReader(data)

	var v UEFIVariableData
	if err := binary.Read(r, binary.LittleEndian, &v.header); err != nil {
		return nil, fmt.Errorf("eventdata: reading variable header: %v", err)
	}
	if v.header.UnicodeNameLength > uint64(r.Len())/2 {
		return nil, fmt.Errorf("eventdata: variable name length %d exceeds remaining %d bytes",
			v.header.UnicodeNameLength, r.Len())
	}
	v.unicodeName = make([]uint16, v.header.UnicodeNameLength)
	if err := binary.Read(r, binary.LittleEndian, &v.unicodeName); err != nil {
		return nil, fmt.Errorf("eventdata: reading variable name: %v", err)
	}
	if v.header.VariableDataLength > uint64(r.Len()) {
		return nil, fmt.Errorf("eventdata: variable data length %d exceeds remaining %d bytes",
			v.header.VariableDataLength, r.Len())
	}
	v.VariableData = make([]byte, v.header.VariableDataLength)
	if _, err := io.ReadFull(r, v.VariableData); err != nil {
		return nil, fmt.Errorf("eventdata: reading variable data: %v", err)
	}
	return &v, nil
}

// VariableName returns the UTF-16 decoded variable name.
func (v *UEFIVariableData) VariableName() string {
	return string(utf16.Decode(v.unicodeName))
}

// VariableGUID returns the vendor GUID namespacing the variable name.
func (v *UEFIVariableData) VariableGUID() string {
	return v.header.VariableName.String()
}

// UEFIVariableAuthority describes the contents of a UEFI variable authority
// event: the certificate that authorized a secure boot database update.
type UEFIVariableAuthority struct {
	Certs []x509.Certificate
}

// ParseUEFIVariableAuthority parses an event payload structured as a UEFI
// variable authority.
func ParseUEFIVariableAuthority(data []byte) (*UEFIVariableAuthority, error) {
	v, err := ParseUEFIVariableData(data)
	if err != nil {
		return nil, err
	}
	certs, err := parseEFISignature(v.VariableData)
	if err != nil {
		return nil, err
	}
	return &UEFIVariableAuthority{Certs: certs}, nil
}

// parseEFISignature decodes a single EFI_SIGNATURE_DATA value: a 16-byte
// owner GUID followed by a DER certificate. The permissive x509 fork is used
// because firmware vendors routinely ship certificates the standard library
// rejects.
func parseEFISignature(b []byte) ([]x509.Certificate, error) {
	if len(b) < 16 {
		return nil, fmt.Errorf("eventdata: signature data too short: %d bytes", len(b))
	}
	r := bytes.NewReader(b)
	var owner efiGUID
	if err := binary.Read(r, binary.LittleEndian, &owner); err != nil {
		return nil, err
	}
	der := make([]byte, r.Len())
	if _, err := io.ReadFull(r, der); err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("eventdata: parsing authority certificate: %v", err)
	}
	return []x509.Certificate{*cert}, nil
}

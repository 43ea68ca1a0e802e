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
	"errors"
	"fmt"

	"github.com/sahason/evidence-api/eventlog"
	"github.com/sahason/evidence-api/tcg"
)

// ContentType tags the kind of event content a canonical record carries.
// The set is closed; conversion and encoding switch over it exhaustively.
type ContentType uint8

// Content types defined by the CEL spec.
const (
	ContentManagement  ContentType = 0x4
	ContentPCClientStd ContentType = 0x5
	ContentIMATemplate ContentType = 0x7
	ContentIMATLV      ContentType = 0x8
)

var contentTypeNames = map[ContentType]string{
	ContentManagement:  "CEL",
	ContentPCClientStd: "PCCLIENT_STD",
	ContentIMATemplate: "IMA_TEMPLATE",
	ContentIMATLV:      "IMA_TLV",
}

func (c ContentType) String() string {
	if s, ok := contentTypeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ContentType(0x%x)", uint8(c))
}

// Errors distinguishing "not supported" from "malformed". Callers decide
// policy on the former; the latter always fails an attestation.
var (
	// ErrUnsupportedContent reports content that the requested operation
	// cannot represent (for example converting management events to the
	// PC-Client projection).
	ErrUnsupportedContent = errors.New("cel: content kind not supported for this operation")
)

// Content is the per-kind payload of a canonical record. It is a closed sum:
// exactly Management, PCClientStd, IMATemplate and IMATLV implement it.
type Content interface {
	ContentType() ContentType
	contentTLV() (TLV, error)
}

// Management carries CEL management data such as the log version or a
// firmware-end marker. Its TLV transcription is not defined here yet.
type Management struct {
	Type  uint32
	Value []byte
}

// ContentType implements Content.
func (Management) ContentType() ContentType { return ContentManagement }

func (m Management) contentTLV() (TLV, error) {
	return TLV{}, fmt.Errorf("cel: management content TLV transcription: %w", ErrUnsupportedContent)
}

// PCClientStd wraps a TCG PC-Client event (type plus raw event data) in
// canonical form.
type PCClientStd struct {
	EventType tcg.EventType
	EventData []byte
}

// ContentType implements Content.
func (PCClientStd) ContentType() ContentType { return ContentPCClientStd }

// PCClientStd nested field types.
const (
	pcClientStdTypeField    uint8 = 0
	pcClientStdContentField uint8 = 1
)

func (p PCClientStd) contentTLV() (TLV, error) {
	typeField, err := TLV{pcClientStdTypeField, beUint32(uint32(p.EventType))}.MarshalBinary()
	if err != nil {
		return TLV{}, err
	}
	dataField, err := TLV{pcClientStdContentField, p.EventData}.MarshalBinary()
	if err != nil {
		return TLV{}, err
	}
	return TLV{uint8(ContentPCClientStd), append(typeField, dataField...)}, nil
}

// IMATemplate carries one kernel IMA measurement in template form.
type IMATemplate struct {
	TemplateName string
	TemplateData string
}

// ContentType implements Content.
func (IMATemplate) ContentType() ContentType { return ContentIMATemplate }

// IMA template nested field types.
const (
	imaTemplateNameField uint8 = 0
	imaTemplateDataField uint8 = 1
)

func (t IMATemplate) contentTLV() (TLV, error) {
	nameField, err := TLV{imaTemplateNameField, []byte(t.TemplateName)}.MarshalBinary()
	if err != nil {
		return TLV{}, err
	}
	dataField, err := TLV{imaTemplateDataField, []byte(t.TemplateData)}.MarshalBinary()
	if err != nil {
		return TLV{}, err
	}
	return TLV{uint8(ContentIMATemplate), append(nameField, dataField...)}, nil
}

// IMATLV carries one kernel IMA measurement in native TLV form. Its field
// transcription is not defined here yet.
type IMATLV struct {
	Fields []TLV
}

// ContentType implements Content.
func (IMATLV) ContentType() ContentType { return ContentIMATLV }

func (IMATLV) contentTLV() (TLV, error) {
	return TLV{}, fmt.Errorf("cel: IMA-TLV content TLV transcription: %w", ErrUnsupportedContent)
}

// indexKind says which measurement index a record carries.
type indexKind uint8

const (
	indexRegister indexKind = iota + 1
	indexNV
)

// Record is a single canonical event log record: a record number, a digest
// list, exactly one of a register index or an NV index, and typed content.
type Record struct {
	RecNum  uint32
	Digests []tcg.Digest
	Content Content

	index     uint32
	indexKind indexKind
}

// NewRecord builds a canonical record. Exactly one of register and nvIndex
// must be set; a record claiming to measure both is malformed evidence, not
// a representable state.
func NewRecord(recNum uint32, digests []tcg.Digest, register, nvIndex *uint32, content Content) (*Record, error) {
	if register != nil && nvIndex != nil {
		return nil, errors.New("cel: record cannot carry both a register index and an NV index")
	}
	if register == nil && nvIndex == nil {
		return nil, errors.New("cel: record must carry a register index or an NV index")
	}

	r := &Record{
		RecNum:  recNum,
		Digests: digests,
		Content: content,
	}
	if register != nil {
		r.index = *register
		r.indexKind = indexRegister
	} else {
		r.index = *nvIndex
		r.indexKind = indexNV
	}
	return r, nil
}

// Register returns the measurement register index, if the record measures
// a register.
func (r *Record) Register() (uint32, bool) {
	return r.index, r.indexKind == indexRegister
}

// NVIndex returns the NV index, if the record measures an NV location.
func (r *Record) NVIndex() (uint32, bool) {
	return r.index, r.indexKind == indexNV
}

// ToPCClient converts the record to the standard projection consumed by the
// replay engine. Only IMA-template and PC-Client-standard content can be
// represented; the other content kinds fail with ErrUnsupportedContent.
func (r *Record) ToPCClient() (*eventlog.StandardEvent, error) {
	register, ok := r.Register()
	if !ok {
		return nil, errors.New("cel: record measures an NV index, not a register")
	}

	switch c := r.Content.(type) {
	case IMATemplate:
		return &eventlog.StandardEvent{
			RecNum:    r.RecNum,
			Register:  register,
			Type:      tcg.IMAMeasurementEvent,
			Digests:   r.Digests,
			Data:      []byte(c.TemplateData),
			ExtraInfo: map[string]string{"template_name": c.TemplateName},
		}, nil
	case PCClientStd:
		return &eventlog.StandardEvent{
			RecNum:   r.RecNum,
			Register: register,
			Type:     c.EventType,
			Digests:  r.Digests,
			Data:     c.EventData,
		}, nil
	case Management, IMATLV:
		return nil, fmt.Errorf("cel: converting %v content to the PC-Client projection: %w",
			c.ContentType(), ErrUnsupportedContent)
	default:
		return nil, fmt.Errorf("cel: converting unknown content %T: %w", r.Content, ErrUnsupportedContent)
	}
}

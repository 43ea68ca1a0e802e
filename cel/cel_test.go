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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sahason/evidence-api/tcg"
)

func u(v uint32) *uint32 { return &v }

func sha256Digest(fill byte) tcg.Digest {
	return tcg.Digest{Alg: tcg.AlgSHA256, Hash: bytes.Repeat([]byte{fill}, 32)}
}

func TestNewRecordIndexExclusive(t *testing.T) {
	digests := []tcg.Digest{sha256Digest(0x01)}
	content := IMATemplate{TemplateName: "ima-ng", TemplateData: "sha256:00 /init"}

	if _, err := NewRecord(0, digests, u(1), u(2), content); err == nil {
		t.Error("record with both register and NV index constructed, want error")
	}
	if _, err := NewRecord(0, digests, nil, nil, content); err == nil {
		t.Error("record with neither index constructed, want error")
	}

	rec, err := NewRecord(0, digests, u(3), nil, content)
	if err != nil {
		t.Fatalf("constructing register record: %v", err)
	}
	if reg, ok := rec.Register(); !ok || reg != 3 {
		t.Errorf("got register (%d, %v), want (3, true)", reg, ok)
	}
	if _, ok := rec.NVIndex(); ok {
		t.Error("register record reports an NV index")
	}

	nvRec, err := NewRecord(0, digests, nil, u(0x1500000), content)
	if err != nil {
		t.Fatalf("constructing NV record: %v", err)
	}
	if nv, ok := nvRec.NVIndex(); !ok || nv != 0x1500000 {
		t.Errorf("got NV index (%d, %v), want (0x1500000, true)", nv, ok)
	}
}

func TestTLVRoundTrip(t *testing.T) {
	in := TLV{Type: 7, Value: []byte("template bytes")}
	data, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("marshaling TLV: %v", err)
	}

	var out TLV
	if err := out.UnmarshalBinary(data); err != nil {
		t.Fatalf("unmarshaling TLV: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("TLV round trip mismatch (-in +out):\n%s", diff)
	}

	var truncated TLV
	if err := truncated.UnmarshalBinary(data[:len(data)-1]); err == nil {
		t.Error("unmarshaling truncated TLV succeeded, want error")
	}
}

func TestMarshalTLVFieldLayout(t *testing.T) {
	rec, err := NewRecord(7, []tcg.Digest{sha256Digest(0xAB)}, u(3), nil,
		IMATemplate{TemplateName: "ima-ng", TemplateData: "sha256:00 /init"})
	if err != nil {
		t.Fatalf("constructing record: %v", err)
	}
	encoded, err := rec.MarshalTLV()
	if err != nil {
		t.Fatalf("encoding record: %v", err)
	}

	buf := bytes.NewBuffer(encoded)

	recNum, err := unmarshalFirstTLV(buf)
	if err != nil {
		t.Fatalf("reading recnum field: %v", err)
	}
	if recNum.Type != celTypeRecNum || binary.BigEndian.Uint64(recNum.Value) != 7 {
		t.Errorf("got recnum field %+v, want type %d value 7", recNum, celTypeRecNum)
	}

	index, err := unmarshalFirstTLV(buf)
	if err != nil {
		t.Fatalf("reading index field: %v", err)
	}
	if index.Type != celTypePCR || binary.BigEndian.Uint32(index.Value) != 3 {
		t.Errorf("got index field %+v, want PCR index 3", index)
	}

	digests, err := unmarshalFirstTLV(buf)
	if err != nil {
		t.Fatalf("reading digests field: %v", err)
	}
	if digests.Type != celTypeDigests {
		t.Fatalf("got digests field type %d, want %d", digests.Type, celTypeDigests)
	}
	inner, err := unmarshalFirstTLV(bytes.NewBuffer(digests.Value))
	if err != nil {
		t.Fatalf("reading nested digest: %v", err)
	}
	if inner.Type != uint8(tcg.AlgSHA256) || len(inner.Value) != 32 {
		t.Errorf("got nested digest %+v, want SHA-256 with 32 bytes", inner)
	}

	content, err := unmarshalFirstTLV(buf)
	if err != nil {
		t.Fatalf("reading content field: %v", err)
	}
	if content.Type != uint8(ContentIMATemplate) {
		t.Errorf("got content field type %d, want %d", content.Type, uint8(ContentIMATemplate))
	}
	nested := bytes.NewBuffer(content.Value)
	name, err := unmarshalFirstTLV(nested)
	if err != nil {
		t.Fatalf("reading template name: %v", err)
	}
	if name.Type != imaTemplateNameField || string(name.Value) != "ima-ng" {
		t.Errorf("got template name field %+v, want %q", name, "ima-ng")
	}
	data, err := unmarshalFirstTLV(nested)
	if err != nil {
		t.Fatalf("reading template data: %v", err)
	}
	if data.Type != imaTemplateDataField || string(data.Value) != "sha256:00 /init" {
		t.Errorf("got template data field %+v, want %q", data, "sha256:00 /init")
	}

	if buf.Len() != 0 {
		t.Errorf("%d trailing bytes after the content field", buf.Len())
	}
}

func TestEncodeDispatch(t *testing.T) {
	rec, err := NewRecord(1, []tcg.Digest{sha256Digest(0x22)}, u(0), nil,
		PCClientStd{EventType: tcg.Separator, EventData: []byte{0, 0, 0, 0}})
	if err != nil {
		t.Fatalf("constructing record: %v", err)
	}

	tlv, err := rec.Encode(EncodingTLV)
	if err != nil {
		t.Fatalf("TLV encoding: %v", err)
	}
	direct, err := rec.MarshalTLV()
	if err != nil {
		t.Fatalf("direct TLV encoding: %v", err)
	}
	if !bytes.Equal(tlv, direct) {
		t.Error("Encode(EncodingTLV) differs from MarshalTLV")
	}

	for _, enc := range []Encoding{EncodingJSON, EncodingCBOR, Encoding(99)} {
		if _, err := rec.Encode(enc); !errors.Is(err, ErrUnsupportedEncoding) {
			t.Errorf("Encode(%d) returned %v, want ErrUnsupportedEncoding", enc, err)
		}
	}
}

func TestEncodeUnsupportedContent(t *testing.T) {
	for _, content := range []Content{
		Management{Type: 1, Value: []byte{1, 0}},
		IMATLV{},
	} {
		rec, err := NewRecord(0, []tcg.Digest{sha256Digest(0x33)}, u(0), nil, content)
		if err != nil {
			t.Fatalf("constructing record: %v", err)
		}
		if _, err := rec.MarshalTLV(); !errors.Is(err, ErrUnsupportedContent) {
			t.Errorf("encoding %v content returned %v, want ErrUnsupportedContent", content.ContentType(), err)
		}
	}
}

func TestToPCClient(t *testing.T) {
	digests := []tcg.Digest{sha256Digest(0x44)}

	imaRec, err := NewRecord(5, digests, u(10), nil,
		IMATemplate{TemplateName: "ima-ng", TemplateData: "sha256:00 /etc/hosts"})
	if err != nil {
		t.Fatalf("constructing IMA record: %v", err)
	}
	ev, err := imaRec.ToPCClient()
	if err != nil {
		t.Fatalf("converting IMA record: %v", err)
	}
	if ev.Register != 10 || ev.RecNum != 5 || ev.Type != tcg.IMAMeasurementEvent {
		t.Errorf("unexpected conversion result: %v", ev)
	}
	if string(ev.Data) != "sha256:00 /etc/hosts" {
		t.Errorf("got event payload %q, want the template data", ev.Data)
	}
	if ev.ExtraInfo["template_name"] != "ima-ng" {
		t.Errorf("got extra info %v, want template_name=ima-ng", ev.ExtraInfo)
	}

	stdRec, err := NewRecord(0, digests, u(4), nil,
		PCClientStd{EventType: tcg.Separator, EventData: []byte{0, 0, 0, 0}})
	if err != nil {
		t.Fatalf("constructing PC-Client record: %v", err)
	}
	ev, err = stdRec.ToPCClient()
	if err != nil {
		t.Fatalf("converting PC-Client record: %v", err)
	}
	if ev.Type != tcg.Separator || ev.Register != 4 {
		t.Errorf("unexpected conversion result: %v", ev)
	}

	mgtRec, err := NewRecord(0, digests, u(0), nil, Management{Type: 1, Value: []byte{1, 0}})
	if err != nil {
		t.Fatalf("constructing management record: %v", err)
	}
	if _, err := mgtRec.ToPCClient(); !errors.Is(err, ErrUnsupportedContent) {
		t.Errorf("converting management record returned %v, want ErrUnsupportedContent", err)
	}

	nvRec, err := NewRecord(0, digests, nil, u(0x1500000),
		PCClientStd{EventType: tcg.Separator})
	if err != nil {
		t.Fatalf("constructing NV record: %v", err)
	}
	if _, err := nvRec.ToPCClient(); err == nil {
		t.Error("converting NV-indexed record succeeded, want error")
	}
}

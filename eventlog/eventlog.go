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

// Package eventlog parses measured-boot event logs and recomputes the
// register digests they claim to produce.
//
// Boot-time measurements arrive as a binary blob in the TCG PC Client layout;
// runtime measurements arrive as ASCII lines from the kernel IMA subsystem.
// Both are normalized into a single ordered record sequence which a verifier
// can replay against attester-reported register values.
package eventlog

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sahason/evidence-api/tcg"
)

// Format selects the representation parsed records are projected into.
type Format uint8

// Supported event log formats. Only the TCG PC Client projection is
// implemented; the canonical event log projection is an extension seam.
const (
	FormatPCClient  Format = 1
	FormatCanonical Format = 2
)

// ErrUnsupportedFormat is returned when records are requested in a
// projection this package cannot produce yet.
var ErrUnsupportedFormat = errors.New("eventlog: event log format not supported")

// endOfLogSentinel is the register index value firmware writes after the
// last record of the boot-time log buffer.
const endOfLogSentinel = 0xFFFFFFFF

// Record is a single formatted entry from a parsed event log. It is one of
// HeaderEvent, StandardEvent or CanonicalEvent.
type Record interface {
	isRecord()
}

// HeaderEvent is the Spec ID record opening a crypto-agile log, rendered
// with the fixed 20-byte SHA-1 digest field of the legacy event layout. It
// carries parser context only and never extends a register.
type HeaderEvent struct {
	Register uint32
	Type     tcg.EventType
	Digest   [20]byte
	Data     []byte
}

func (*HeaderEvent) isRecord() {}

// StandardEvent is a measurement record: one extend operation on one
// register, carrying a digest per algorithm declared by the log header.
type StandardEvent struct {
	// RecNum is the position of this record within its register's record
	// sequence. Binary and runtime records of a register share one sequence.
	RecNum   uint32
	Register uint32
	Type     tcg.EventType
	Digests  []tcg.Digest
	Data     []byte

	// ExtraInfo carries format metadata that is not part of the measured
	// payload, such as the IMA template name. Nil for binary records.
	ExtraInfo map[string]string
}

func (*StandardEvent) isRecord() {}

// CanonicalEvent is a record in canonical event log form. Replay does not
// support it yet; encountering one is an explicit error, not a skip.
type CanonicalEvent struct {
	RecNum   uint32
	Register uint32
	Digests  []tcg.Digest
}

func (*CanonicalEvent) isRecord() {}

// EventLog owns the raw measurement data collected from a platform and the
// records parsed out of it. It is parsed exactly once by its owner and then
// treated as read-only; it must not be shared across concurrent parses.
type EventLog struct {
	bootTimeData []byte
	runTimeData  []string
	format       Format

	specID  *tcg.SpecIDEvent
	records []Record
	count   uint32
	recNums map[uint32]uint32
	parsed  bool
}

// New returns an EventLog over the given boot-time blob and runtime IMA
// lines. Neither input is parsed until Parse or Select is called.
func New(bootTimeData []byte, runTimeData []string, format Format) *EventLog {
	return &EventLog{
		bootTimeData: bootTimeData,
		runTimeData:  runTimeData,
		format:       format,
		recNums:      make(map[uint32]uint32),
	}
}

// SpecID returns the log's Spec ID header, or nil if the log has not been
// parsed or opened with a legacy record.
func (l *EventLog) SpecID() *tcg.SpecIDEvent {
	return l.specID
}

// Count returns the number of parsed records.
func (l *EventLog) Count() uint32 {
	return l.count
}

// recordNumber returns the next record number for the register and advances
// its counter. Counters default to zero for registers not yet seen.
func (l *EventLog) recordNumber(register uint32) uint32 {
	n := l.recNums[register]
	l.recNums[register] = n + 1
	return n
}

// Parse walks the boot-time blob from offset 0 and then the runtime lines in
// file order, appending one record per measurement. A malformed record aborts
// the whole parse: partial acceptance of measurement data would let a forged
// log pass as truncated-but-valid.
//
// Parse is one-shot. After the first successful call it returns nil without
// re-appending records.
func (l *EventLog) Parse() error {
	if l.parsed {
		return nil
	}
	if len(l.bootTimeData) == 0 {
		return errors.New("eventlog: no boot time event log provided")
	}

	// A failed parse may retry, so start each attempt from scratch.
	l.specID = nil
	l.records = nil
	l.count = 0
	l.recNums = make(map[uint32]uint32)

	offset := 0
	for offset < len(l.bootTimeData) {
		rest := l.bootTimeData[offset:]
		if len(rest) < 4 {
			return fmt.Errorf("eventlog: truncated record at offset %d: %d bytes left", offset, len(rest))
		}
		if binary.LittleEndian.Uint32(rest) == endOfLogSentinel {
			break
		}
		if len(rest) < 8 {
			return fmt.Errorf("eventlog: truncated record at offset %d: %d bytes left", offset, len(rest))
		}

		var (
			ev       *event
			consumed int
			err      error
		)
		if tcg.EventType(binary.LittleEndian.Uint32(rest[4:])) == tcg.NoAction && l.count == 0 {
			ev, consumed, err = l.parseSpecIDEvent(rest)
		} else {
			ev, consumed, err = l.parseStandardEvent(rest)
		}
		if err != nil {
			return fmt.Errorf("eventlog: parsing record at offset %d: %v", offset, err)
		}
		if err := l.appendRecord(ev); err != nil {
			return err
		}
		offset += consumed
	}

	for i, line := range l.runTimeData {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ev, err := l.parseIMAEvent(line)
		if err != nil {
			return fmt.Errorf("eventlog: parsing IMA record %d: %v", i, err)
		}
		if err := l.appendRecord(ev); err != nil {
			return err
		}
	}

	l.parsed = true
	return nil
}

// Select parses the log if necessary and returns the records in
// [start, start+count). A nil start means the first record, a nil count means
// all remaining records. A count reaching past the end is clamped; a start
// past the total count is an error, and a start equal to it selects nothing.
func (l *EventLog) Select(start, count *uint32) ([]Record, error) {
	if err := l.Parse(); err != nil {
		return nil, err
	}

	begin := uint32(0)
	if start != nil {
		if *start > l.count {
			return nil, fmt.Errorf("eventlog: start %d is beyond the total event count %d", *start, l.count)
		}
		if *start == l.count {
			return []Record{}, nil
		}
		begin = *start
	}

	end := uint64(len(l.records))
	if count != nil {
		if *count == 0 {
			return nil, errors.New("eventlog: count must be larger than zero")
		}
		if want := uint64(begin) + uint64(*count); want < end {
			end = want
		}
	}

	return append([]Record(nil), l.records[begin:end]...), nil
}

// event is the format-independent working unit produced by the parsers.
type event struct {
	recNum    uint32
	register  uint32
	typ       tcg.EventType
	digests   []tcg.Digest
	data      []byte
	extraInfo map[string]string
}

func (l *EventLog) appendRecord(ev *event) error {
	rec, err := l.formatRecord(ev)
	if err != nil {
		return err
	}
	l.records = append(l.records, rec)
	l.count++
	return nil
}

func (l *EventLog) formatRecord(ev *event) (Record, error) {
	switch l.format {
	case FormatPCClient:
		if ev.typ == tcg.NoAction && ev.recNum == 0 && ev.register == 0 {
			h := &HeaderEvent{
				Register: ev.register,
				Type:     ev.typ,
				Data:     ev.data,
			}
			copy(h.Digest[:], ev.digests[0].Hash)
			return h, nil
		}
		return &StandardEvent{
			RecNum:    ev.recNum,
			Register:  ev.register,
			Type:      ev.typ,
			Digests:   ev.digests,
			Data:      ev.data,
			ExtraInfo: ev.extraInfo,
		}, nil
	case FormatCanonical:
		return nil, fmt.Errorf("eventlog: canonical projection: %w", ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("eventlog: format %d: %w", l.format, ErrUnsupportedFormat)
	}
}

// pcClientEventHeader is the fixed part of the legacy TCG_PCClientPCREvent
// layout used by the log's first record.
type pcClientEventHeader struct {
	Register  uint32
	Type      uint32
	Digest    [20]byte
	EventSize uint32
}

// specIDHeader is the fixed part of TCG_EfiSpecIDEventStruct.
type specIDHeader struct {
	Signature     [16]byte
	PlatformClass uint32
	VersionMinor  uint8
	VersionMajor  uint8
	Errata        uint8
	UintnSize     uint8
	NumAlgs       uint32
}

// parseSpecIDEvent consumes the log's opening record: a legacy-layout event
// whose payload is the TCG_EfiSpecIDEventStruct declaring the log's
// algorithms. The on-disk register index is one-based for this record only.
func (l *EventLog) parseSpecIDEvent(data []byte) (*event, int, error) {
	r := bytes.NewReader(data)

	var h pcClientEventHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, 0, fmt.Errorf("reading header event: %v", err)
	}
	if h.Register == 0 {
		return nil, 0, errors.New("header register index is zero, expected a one-based index")
	}
	register := h.Register - 1

	if uint32(r.Len()) < h.EventSize {
		return nil, 0, fmt.Errorf("header event size %d exceeds remaining %d bytes", h.EventSize, r.Len())
	}
	payload := make([]byte, h.EventSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, 0, fmt.Errorf("reading header event data: %v", err)
	}

	specID, err := parseSpecID(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing Spec ID structure: %v", err)
	}
	l.specID = specID

	ev := &event{
		recNum:   l.recordNumber(register),
		register: register,
		typ:      tcg.EventType(h.Type),
		digests:  []tcg.Digest{{Alg: tcg.AlgError, Hash: h.Digest[:]}},
		data:     payload,
	}
	return ev, len(data) - r.Len(), nil
}

func parseSpecID(payload []byte) (*tcg.SpecIDEvent, error) {
	r := bytes.NewReader(payload)

	var h specIDHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("reading fixed fields: %v", err)
	}
	if int64(h.NumAlgs)*4 > int64(r.Len()) {
		return nil, fmt.Errorf("algorithm count %d exceeds remaining %d bytes", h.NumAlgs, r.Len())
	}

	specID := &tcg.SpecIDEvent{
		Signature:     h.Signature,
		PlatformClass: h.PlatformClass,
		VersionMinor:  h.VersionMinor,
		VersionMajor:  h.VersionMajor,
		Errata:        h.Errata,
		UintnSize:     h.UintnSize,
	}
	for i := uint32(0); i < h.NumAlgs; i++ {
		var as struct {
			Alg  uint16
			Size uint16
		}
		if err := binary.Read(r, binary.LittleEndian, &as); err != nil {
			return nil, fmt.Errorf("reading algorithm table entry %d: %v", i, err)
		}
		specID.AlgSizes = append(specID.AlgSizes, tcg.AlgorithmSize{
			Alg:  tcg.Algorithm(as.Alg),
			Size: as.Size,
		})
	}

	var vendorSize uint8
	if err := binary.Read(r, binary.LittleEndian, &vendorSize); err != nil {
		return nil, fmt.Errorf("reading vendor info size: %v", err)
	}
	if vendorSize > 0 {
		specID.VendorInfo = make([]byte, vendorSize)
		if _, err := io.ReadFull(r, specID.VendorInfo); err != nil {
			return nil, fmt.Errorf("reading vendor info: %v", err)
		}
	}
	return specID, nil
}

// parseStandardEvent consumes one TCG_PCR_EVENT2 record. Digest sizes come
// from the Spec ID header's algorithm table; a record referencing an
// algorithm the log never declared is malformed.
func (l *EventLog) parseStandardEvent(data []byte) (*event, int, error) {
	r := bytes.NewReader(data)

	var h struct {
		Register uint32
		Type     uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, 0, fmt.Errorf("reading event header: %v", err)
	}
	if h.Register == 0 {
		return nil, 0, errors.New("register index is zero, expected a one-based index")
	}
	register := h.Register - 1

	var numDigests uint32
	if err := binary.Read(r, binary.LittleEndian, &numDigests); err != nil {
		return nil, 0, fmt.Errorf("reading digest count: %v", err)
	}

	var digests []tcg.Digest
	for i := uint32(0); i < numDigests; i++ {
		var algID uint16
		if err := binary.Read(r, binary.LittleEndian, &algID); err != nil {
			return nil, 0, fmt.Errorf("reading algorithm of digest %d: %v", i, err)
		}
		alg := tcg.Algorithm(algID)
		size, ok := l.digestSize(alg)
		if !ok {
			return nil, 0, fmt.Errorf("digest %d uses algorithm %v which the log did not declare", i, alg)
		}
		digest := make([]byte, size)
		if _, err := io.ReadFull(r, digest); err != nil {
			return nil, 0, fmt.Errorf("reading %v digest: %v", alg, err)
		}
		digests = append(digests, tcg.Digest{Alg: alg, Hash: digest})
	}

	var eventSize uint32
	if err := binary.Read(r, binary.LittleEndian, &eventSize); err != nil {
		return nil, 0, fmt.Errorf("reading event size: %v", err)
	}
	if uint32(r.Len()) < eventSize {
		return nil, 0, fmt.Errorf("event size %d exceeds remaining %d bytes", eventSize, r.Len())
	}
	eventData := make([]byte, eventSize)
	if _, err := io.ReadFull(r, eventData); err != nil {
		return nil, 0, fmt.Errorf("reading event data: %v", err)
	}

	ev := &event{
		recNum:   l.recordNumber(register),
		register: register,
		typ:      tcg.EventType(h.Type),
		digests:  digests,
		data:     eventData,
	}
	return ev, len(data) - r.Len(), nil
}

func (l *EventLog) digestSize(alg tcg.Algorithm) (uint16, bool) {
	if l.specID == nil {
		return 0, false
	}
	return l.specID.DigestSize(alg)
}

// parseIMAEvent parses one ASCII measurement line from the kernel IMA log:
//
//	<register> <hex template hash> <template name> <template fields...>
//
// The template hash's length determines its algorithm. The template name is
// metadata, not part of the measured payload.
func (l *EventLog) parseIMAEvent(line string) (*event, error) {
	fields := strings.Split(strings.Trim(line, " "), " ")
	if len(fields) < 3 {
		return nil, fmt.Errorf("expected at least 3 fields, got %d", len(fields))
	}

	register, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parsing register index %q: %v", fields[0], err)
	}

	hash, err := hex.DecodeString(fields[1])
	if err != nil {
		return nil, fmt.Errorf("decoding template hash: %v", err)
	}
	alg, err := tcg.AlgorithmFromDigestSize(len(hash))
	if err != nil {
		return nil, fmt.Errorf("inferring algorithm of template hash: %v", err)
	}

	return &event{
		recNum:    l.recordNumber(uint32(register)),
		register:  uint32(register),
		typ:       tcg.IMAMeasurementEvent,
		digests:   []tcg.Digest{{Alg: alg, Hash: hash}},
		data:      []byte(strings.Join(fields[3:], " ")),
		extraInfo: map[string]string{"template_name": fields[2]},
	}, nil
}

package meta

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/block"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

// File layout, all integers big-endian:
//
//	magic "TFIX" | version u16 | kind u8
//	section*      tag u8 | length uvarint | body
//	crc32 u32     IEEE, over every preceding byte
//
// Readers skip sections with unknown tags.
const (
	Magic         = "TFIX"
	FormatVersion = 1

	KindIndex     byte = 1
	KindLocations byte = 2

	headerSize = len(Magic) + 2 + 1
	footerSize = 4
)

const (
	tagField      byte = 1
	tagBlockSize  byte = 2
	tagDocLengths byte = 3
	tagTermStats  byte = 4
	tagLocations  byte = 5
	tagRun        byte = 6
)

// Marshal encodes a full field index.
func Marshal(m *IndexMetadata) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, KindIndex)
	writeSection(&buf, tagField, []byte(m.Field))
	if m.Run != "" {
		writeSection(&buf, tagRun, []byte(m.Run))
	}
	writeSection(&buf, tagBlockSize, binary.AppendUvarint(nil, uint64(m.BlockSize)))
	writeSection(&buf, tagDocLengths, encodeDocLengths(m.DocLengths))
	writeSection(&buf, tagTermStats, encodeTermStats(m.DF, m.TermTotal))
	writeSection(&buf, tagLocations, encodeLocations(m.Locs))
	return seal(buf.Bytes())
}

// Unmarshal decodes a full field index.
func Unmarshal(data []byte) (*IndexMetadata, error) {
	sections, err := open(data, KindIndex)
	if err != nil {
		return nil, err
	}
	m := New("", 0)
	for _, s := range sections {
		d := decoder{b: s.body}
		switch s.tag {
		case tagField:
			m.Field = string(s.body)
		case tagRun:
			m.Run = string(s.body)
			if err := CheckRun(m.Run); err != nil {
				return nil, apperrors.Decodef("section %d: %v", s.tag, err)
			}
		case tagBlockSize:
			m.BlockSize = int(d.readUvarint())
		case tagDocLengths:
			for n := d.readUvarint(); n > 0 && d.err == nil; n-- {
				id := d.readUvarint()
				m.DocLengths[uint32(id)] = uint32(d.readUvarint())
			}
		case tagTermStats:
			for n := d.readUvarint(); n > 0 && d.err == nil; n-- {
				term := d.readString()
				m.DF[term] = uint32(d.readUvarint())
				m.TermTotal[term] = d.readUvarint()
			}
		case tagLocations:
			m.Locs = decodeLocations(&d)
		}
		if d.err != nil {
			return nil, apperrors.Decodef("section %d: %v", s.tag, d.err)
		}
	}
	return m, nil
}

// MarshalLocations encodes one bucket's term to locations map.
func MarshalLocations(locs map[string][]block.Location) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, KindLocations)
	writeSection(&buf, tagLocations, encodeLocations(locs))
	return seal(buf.Bytes())
}

// UnmarshalLocations decodes a bucket location map.
func UnmarshalLocations(data []byte) (map[string][]block.Location, error) {
	sections, err := open(data, KindLocations)
	if err != nil {
		return nil, err
	}
	locs := make(map[string][]block.Location)
	for _, s := range sections {
		if s.tag != tagLocations {
			continue
		}
		d := decoder{b: s.body}
		locs = decodeLocations(&d)
		if d.err != nil {
			return nil, apperrors.Decodef("locations: %v", d.err)
		}
	}
	return locs, nil
}

// WriteFile writes data to path through a temp file and rename.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Filesystem("creating index directory", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.Filesystem("writing "+tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apperrors.Filesystem("renaming "+tmp, err)
	}
	return nil
}

// ReadFile loads and decodes a field index from path.
func ReadFile(path string) (*IndexMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Filesystem("reading "+path, err)
	}
	return Unmarshal(data)
}

func writeHeader(buf *bytes.Buffer, kind byte) {
	buf.WriteString(Magic)
	buf.Write(binary.BigEndian.AppendUint16(nil, FormatVersion))
	buf.WriteByte(kind)
}

func writeSection(buf *bytes.Buffer, tag byte, body []byte) {
	buf.WriteByte(tag)
	buf.Write(binary.AppendUvarint(nil, uint64(len(body))))
	buf.Write(body)
}

func seal(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, crc32.ChecksumIEEE(b))
}

type section struct {
	tag  byte
	body []byte
}

func open(data []byte, kind byte) ([]section, error) {
	if len(data) < headerSize+footerSize {
		return nil, apperrors.Decodef("index file too short: %d bytes", len(data))
	}
	if string(data[:len(Magic)]) != Magic {
		return nil, apperrors.Decodef("bad magic %q", data[:len(Magic)])
	}
	if v := binary.BigEndian.Uint16(data[len(Magic):]); v != FormatVersion {
		return nil, apperrors.Decodef("unsupported format version %d", v)
	}
	if k := data[len(Magic)+2]; k != kind {
		return nil, apperrors.Decodef("file kind %d, want %d", k, kind)
	}
	payload := data[:len(data)-footerSize]
	if want, got := binary.BigEndian.Uint32(data[len(payload):]), crc32.ChecksumIEEE(payload); want != got {
		return nil, apperrors.Decodef("checksum mismatch: stored %08x, computed %08x", want, got)
	}
	var sections []section
	d := decoder{b: payload[headerSize:]}
	for len(d.b) > 0 && d.err == nil {
		tag := d.readByte()
		body := d.readBytes()
		if d.err == nil {
			sections = append(sections, section{tag: tag, body: body})
		}
	}
	if d.err != nil {
		return nil, apperrors.Decodef("section framing: %v", d.err)
	}
	return sections, nil
}

func encodeDocLengths(lengths map[uint32]uint32) []byte {
	ids := make([]uint32, 0, len(lengths))
	for id := range lengths {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	b := binary.AppendUvarint(nil, uint64(len(ids)))
	for _, id := range ids {
		b = binary.AppendUvarint(b, uint64(id))
		b = binary.AppendUvarint(b, uint64(lengths[id]))
	}
	return b
}

func encodeTermStats(df map[string]uint32, total map[string]uint64) []byte {
	terms := sortedKeys(df)
	b := binary.AppendUvarint(nil, uint64(len(terms)))
	for _, t := range terms {
		b = appendString(b, t)
		b = binary.AppendUvarint(b, uint64(df[t]))
		b = binary.AppendUvarint(b, total[t])
	}
	return b
}

func encodeLocations(locs map[string][]block.Location) []byte {
	terms := sortedKeys(locs)
	b := binary.AppendUvarint(nil, uint64(len(terms)))
	for _, t := range terms {
		b = appendString(b, t)
		b = binary.AppendUvarint(b, uint64(len(locs[t])))
		for _, l := range locs[t] {
			b = appendString(b, l.Block)
			b = binary.AppendUvarint(b, uint64(l.Offset))
		}
	}
	return b
}

func decodeLocations(d *decoder) map[string][]block.Location {
	locs := make(map[string][]block.Location)
	for n := d.readUvarint(); n > 0 && d.err == nil; n-- {
		term := d.readString()
		count := d.readUvarint()
		if d.err == nil && count > uint64(len(d.b)) {
			d.err = errTruncated
			break
		}
		l := make([]block.Location, 0, count)
		for ; count > 0 && d.err == nil; count-- {
			name := d.readString()
			l = append(l, block.Location{Block: name, Offset: uint32(d.readUvarint())})
		}
		locs[term] = l
	}
	return locs
}

func appendString(b []byte, s string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

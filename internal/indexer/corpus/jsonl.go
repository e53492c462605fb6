package corpus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

// maxLineSize bounds one JSON line; long Wikipedia articles run to a few MB.
const maxLineSize = 64 << 20

// JSONLFile reads one JSON object per line:
//
//	{"id": 12, "title": "...", "body": "...", "anchor": ["...", "..."]}
//
// id may be a number or a decimal string; anchor may be a string or a list
// of link texts.
type JSONLFile struct {
	Path string
}

type jsonDoc struct {
	ID     json.RawMessage `json:"id"`
	Title  string          `json:"title"`
	Body   string          `json:"body"`
	Anchor json.RawMessage `json:"anchor"`
}

func (f JSONLFile) Load(ctx context.Context) ([]Document, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, apperrors.Filesystem("opening corpus", err)
	}
	defer file.Close()

	var docs []Document
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 1<<20), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		if line%10000 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		doc, err := parseLine(raw)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", f.Path, line, err)
		}
		docs = append(docs, doc)
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.Filesystem("reading corpus", err)
	}
	return docs, nil
}

func parseLine(raw []byte) (Document, error) {
	var jd jsonDoc
	if err := json.Unmarshal(raw, &jd); err != nil {
		return Document{}, apperrors.Decodef("corpus line: %v", err)
	}
	id, err := ParseID(strings.Trim(string(jd.ID), `"`))
	if err != nil {
		return Document{}, err
	}
	anchor, err := anchorText(jd.Anchor)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Title: jd.Title, Body: jd.Body, Anchor: anchor}, nil
}

func anchorText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var parts []string
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", apperrors.Decodef("anchor must be a string or a list of strings")
	}
	return strings.Join(parts, " "), nil
}

// ParseID converts an external decimal document id to the internal uint32.
func ParseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: document id %q", apperrors.ErrInvalidInput, s)
	}
	return uint32(id), nil
}

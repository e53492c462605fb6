// Package corpus reads the documents an index build consumes. A document has
// a numeric id and three text fields; the builder analyses each field into
// its own index.
package corpus

import (
	"context"
	"fmt"
)

// Document is one corpus page.
type Document struct {
	ID     uint32
	Title  string
	Body   string
	Anchor string
}

// Field returns the text of the named field.
func (d Document) Field(name string) (string, error) {
	switch name {
	case "body":
		return d.Body, nil
	case "title":
		return d.Title, nil
	case "anchor":
		return d.Anchor, nil
	default:
		return "", fmt.Errorf("unknown document field %q", name)
	}
}

// Source yields the whole corpus.
type Source interface {
	Load(ctx context.Context) ([]Document, error)
}

// Static is an in-memory Source.
type Static []Document

func (s Static) Load(context.Context) ([]Document, error) {
	return s, nil
}

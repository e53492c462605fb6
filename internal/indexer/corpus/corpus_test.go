package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

func writeCorpus(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "corpus.jsonl")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestJSONLFileLoad(t *testing.T) {
	path := writeCorpus(t, `{"id": 12, "title": "Cat", "body": "the cat sat", "anchor": ["cat", "felis"]}

{"id": "7", "title": "Dog", "body": "the dog sat", "anchor": "dog"}
{"id": 9, "title": "Bird", "body": "birds fly"}
`)
	docs, err := JSONLFile{Path: path}.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, Document{ID: 12, Title: "Cat", Body: "the cat sat", Anchor: "cat felis"}, docs[0])
	assert.Equal(t, uint32(7), docs[1].ID)
	assert.Equal(t, "dog", docs[1].Anchor)
	assert.Empty(t, docs[2].Anchor)
}

func TestJSONLFileErrors(t *testing.T) {
	_, err := JSONLFile{Path: writeCorpus(t, `{"id": -1, "title": "x"}`)}.Load(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = JSONLFile{Path: writeCorpus(t, `{"id": 1, "anchor": 5}`)}.Load(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrDecode)

	_, err = JSONLFile{Path: writeCorpus(t, `not json`)}.Load(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrDecode)

	_, err = JSONLFile{Path: filepath.Join(t.TempDir(), "absent.jsonl")}.Load(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrFilesystem)
}

func TestDocumentField(t *testing.T) {
	d := Document{Title: "t", Body: "b", Anchor: "a"}
	for field, want := range map[string]string{"title": "t", "body": "b", "anchor": "a"} {
		got, err := d.Field(field)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := d.Field("infobox")
	assert.Error(t, err)
}

func TestMongoCollectionLoad(t *testing.T) {
	uri := os.Getenv("SP_MONGO_URI")
	if uri == "" {
		t.Skip("SP_MONGO_URI not set")
	}
	ctx := context.Background()
	src, err := NewMongoCollection(ctx, config.MongoConfig{URI: uri, Database: "wikisearch_test", Collection: "pages"})
	if err != nil {
		t.Skipf("mongodb not available: %v", err)
	}
	defer src.Close(ctx)

	_, err = src.coll.DeleteMany(ctx, map[string]any{})
	require.NoError(t, err)
	_, err = src.coll.InsertMany(ctx, []any{
		mongoDoc{ID: 2, Title: "Dog", Body: "the dog sat"},
		mongoDoc{ID: 1, Title: "Cat", Body: "the cat sat", Anchor: []string{"cat"}},
	})
	require.NoError(t, err)

	docs, err := src.Load(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, uint32(1), docs[0].ID)
	assert.Equal(t, "cat", docs[0].Anchor)
}

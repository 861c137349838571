package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productsYAML = `
collections:
  - slug: products
    label: Products
    fields:
      - name: sku
        type: text
        required: true
      - name: status
        type: select
        required: true
        default: draft
        options: [draft, published]
      - name: owner
        type: text
        required: true
        default_from: principal.id
      - name: gallery
        type: upload
        relation_to: media
        has_many: true
      - type: row
        fields:
          - name: price
            type: number
          - name: weight
            type: point
  - slug: media
    upload: true
`

func TestLoadYAML(t *testing.T) {
	cols, err := LoadYAML(strings.NewReader(productsYAML))
	require.NoError(t, err)
	require.Len(t, cols, 2)

	products := cols[0]
	assert.Equal(t, "products", products.Slug)
	assert.Equal(t, "Products", products.Label)
	require.Len(t, products.Fields, 5)

	status := products.Fields[1]
	assert.Equal(t, KindSelect, status.Kind)
	assert.Equal(t, "draft", status.DefaultValue)
	assert.Equal(t, []string{"draft", "published"}, status.Options)

	owner := products.Fields[2]
	require.NotNil(t, owner.DefaultFunc)
	v, err := owner.Default(DefaultContext{Principal: &Principal{ID: "u-1"}})
	require.NoError(t, err)
	assert.Equal(t, "u-1", v)

	_, err = owner.Default(DefaultContext{})
	assert.Error(t, err)

	gallery := products.Fields[3]
	assert.Equal(t, KindUpload, gallery.Kind)
	assert.Equal(t, "media", gallery.RelationTo)
	assert.True(t, gallery.HasMany)

	idx := products.Index()
	assert.Equal(t, KindNumber, idx["price"].Kind)
	assert.Equal(t, KindOther, idx["weight"].Kind)

	assert.True(t, cols[1].Upload)
}

func TestLoadYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing slug",
			doc:  "collections:\n  - label: x\n",
			want: "slug is required",
		},
		{
			name: "duplicate slug",
			doc:  "collections:\n  - slug: a\n  - slug: a\n",
			want: "duplicate collection slug",
		},
		{
			name: "relationship without target",
			doc:  "collections:\n  - slug: a\n    fields:\n      - name: r\n        type: relationship\n",
			want: "requires relation_to",
		},
		{
			name: "unknown default source",
			doc:  "collections:\n  - slug: a\n    fields:\n      - name: r\n        type: text\n        default_from: moon\n",
			want: "unknown default_from",
		},
		{
			name: "unknown key",
			doc:  "collections:\n  - slug: a\n    colour: red\n",
			want: "decode schema",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadYAML(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadYAML_Empty(t *testing.T) {
	cols, err := LoadYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(productsYAML), 0o600))

	cols, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, cols, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultFrom_Now(t *testing.T) {
	fn, err := defaultFrom("now")
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v, err := fn(DefaultContext{Now: now})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T12:00:00Z", v)
}

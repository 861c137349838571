package collections

import (
	"errors"

	"github.com/JonMunkholm/docimport/internal/schema"
)

var errNoPrincipal = errors.New("no acting principal")

// authorDefault fills authoring fields with the importing principal.
func authorDefault(dc schema.DefaultContext) (any, error) {
	if dc.Principal == nil {
		return nil, errNoPrincipal
	}
	return map[string]any{"id": dc.Principal.ID}, nil
}

func registerContent() {
	schema.Register(schema.Collection{
		Slug:   "media",
		Label:  "Media",
		Upload: true,
		Fields: []schema.FieldDescriptor{
			{Name: "alt", Label: "Alt text", Kind: schema.KindText, Required: true},
			{Name: "url", Label: "Source URL", Kind: schema.KindText},
			{Name: "filename", Kind: schema.KindText},
			{Name: "mimeType", Label: "MIME type", Kind: schema.KindText},
			{Name: "filesize", Kind: schema.KindNumber},
		},
	})

	schema.Register(schema.Collection{
		Slug:  "users",
		Label: "Users",
		Fields: []schema.FieldDescriptor{
			{Name: "email", Kind: schema.KindText, Required: true},
			{Name: "name", Kind: schema.KindText},
		},
	})

	schema.Register(schema.Collection{
		Slug:  "posts",
		Label: "Posts",
		Fields: []schema.FieldDescriptor{
			{Name: "title", Kind: schema.KindText, Required: true},
			{Name: "slug", Kind: schema.KindText, Required: true},
			{Kind: schema.KindTabs, Fields: []schema.FieldDescriptor{
				{Kind: schema.KindRow, Fields: []schema.FieldDescriptor{
					{Name: "content", Kind: schema.KindRichText},
					{Name: "heroImage", Label: "Hero image", Kind: schema.KindUpload, RelationTo: "media"},
				}},
				{Name: "gallery", Kind: schema.KindUpload, RelationTo: "media", HasMany: true},
			}},
			{Name: "author", Kind: schema.KindRelationship, RelationTo: "users", Required: true, DefaultFunc: authorDefault},
			{Name: "categories", Kind: schema.KindRelationship, RelationTo: "categories", HasMany: true},
			{Name: "publishedAt", Label: "Published at", Kind: schema.KindDate, Required: true, DefaultFunc: func(dc schema.DefaultContext) (any, error) {
				return dc.Now.UTC().Format("2006-01-02T15:04:05.000Z"), nil
			}},
			{Name: "status", Kind: schema.KindSelect, Required: true, DefaultValue: "draft", Options: []string{"draft", "published"}},
			{Name: "meta", Kind: schema.KindGroup, Fields: []schema.FieldDescriptor{
				{Name: "title", Label: "Meta title", Kind: schema.KindText},
				{Name: "description", Label: "Meta description", Kind: schema.KindText},
				{Name: "image", Label: "Meta image", Kind: schema.KindUpload, RelationTo: "media"},
				{Name: "noIndex", Label: "No index", Kind: schema.KindCheckbox, Required: true, DefaultValue: false},
			}},
		},
	})
}

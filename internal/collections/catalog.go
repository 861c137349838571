package collections

import "github.com/JonMunkholm/docimport/internal/schema"

func registerCatalog() {
	schema.Register(schema.Collection{
		Slug:  "categories",
		Label: "Categories",
		Fields: []schema.FieldDescriptor{
			{Name: "title", Kind: schema.KindText, Required: true},
			{Name: "slug", Kind: schema.KindText, Required: true},
			{Name: "parent", Kind: schema.KindRelationship, RelationTo: "categories"},
		},
	})

	schema.Register(schema.Collection{
		Slug:  "products",
		Label: "Products",
		Fields: []schema.FieldDescriptor{
			{Name: "sku", Label: "SKU", Kind: schema.KindText, Required: true},
			{Name: "title", Kind: schema.KindText, Required: true},
			{Name: "description", Kind: schema.KindRichText},
			{Name: "price", Kind: schema.KindNumber, Required: true, DefaultValue: 0},
			{Name: "inStock", Label: "In stock", Kind: schema.KindNumber},
			{Name: "featured", Kind: schema.KindCheckbox},
			{Name: "image", Kind: schema.KindUpload, RelationTo: "media"},
			{Name: "images", Kind: schema.KindUpload, RelationTo: "media", HasMany: true},
			{Name: "categories", Kind: schema.KindRelationship, RelationTo: "categories", HasMany: true},
			{Name: "variants", Kind: schema.KindArray, Fields: []schema.FieldDescriptor{
				{Name: "name", Kind: schema.KindText},
				{Name: "sku", Label: "SKU", Kind: schema.KindText},
				{Name: "price", Kind: schema.KindNumber},
				{Name: "relatedProduct", Label: "Related product", Kind: schema.KindRelationship, RelationTo: "products"},
			}},
			{Kind: schema.KindCollapsible, Label: "Shipping", Fields: []schema.FieldDescriptor{
				{Name: "shipping", Kind: schema.KindGroup, Fields: []schema.FieldDescriptor{
					{Name: "weight", Kind: schema.KindNumber},
					{Name: "origin", Kind: schema.KindSelect, Options: []string{"EU", "UK", "US"}},
				}},
			}},
			{Name: "currency", Kind: schema.KindSelect, Required: true, DefaultValue: "EUR", Options: []string{"EUR", "GBP", "USD"}},
		},
	})
}

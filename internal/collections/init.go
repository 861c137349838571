// Package collections registers the built-in collections with the schema
// registry. Import it for side effects:
//
//	import _ "github.com/JonMunkholm/docimport/internal/collections"
//
// Deployments with their own content model load a schema file instead (see
// schema.LoadFile); file collections are added next to these.
package collections

func init() {
	registerContent()
	registerCatalog()
}

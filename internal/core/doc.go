// Package core implements the record import engine.
//
// An import takes a batch of source rows, a target collection and settings
// (mode, compare field, locale and field mappings) and writes documents to a
// store. It runs in two phases:
//
//   - Mapping: every row is mapped concurrently by [RowMapper]. Values are
//     coerced according to the target field's kind; upload fields are turned
//     into media document ids by [MediaIngestor], which downloads each distinct
//     URL at most once per run.
//   - Resolution: mapped records are applied one at a time, in row order, by
//     [RecordResolver] using create, update or upsert semantics.
//
// A failing row never stops the run. Its error is recorded as "Row N: ..."
// (or "Row N mapping error: ...") in the [ImportResult] and the next row is
// processed. [Service.Submit] only returns an error when the request itself is
// malformed, when no run slot is available, or when the run breaks
// unexpectedly.
//
// # Usage
//
//	svc := core.NewService(st, schema.Registered, core.Options{MaxConcurrent: 5}, logger)
//	res, err := svc.Submit(ctx, core.Request{
//	    Collection: "products",
//	    Data:       rows,
//	    Settings: core.ImportSettings{
//	        Mode:         core.ModeUpsert,
//	        CompareField: "sku",
//	        FieldMappings: []core.FieldMapping{
//	            {CSVField: "SKU", CollectionField: "sku"},
//	            {CSVField: "Image URL", CollectionField: "image"},
//	        },
//	    },
//	})
package core

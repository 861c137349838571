package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/docimport/internal/logging"
	"github.com/JonMunkholm/docimport/internal/schema"
	"github.com/JonMunkholm/docimport/internal/store"
)

func productsCollection() schema.Collection {
	return schema.Collection{
		Slug: "products",
		Fields: []schema.FieldDescriptor{
			{Name: "sku", Kind: schema.KindText, Required: true},
			{Name: "name", Kind: schema.KindText},
			{Name: "price", Kind: schema.KindNumber},
			{Name: "tags", Kind: schema.KindRelationship, RelationTo: "tags", HasMany: true},
			{Name: "image", Kind: schema.KindUpload, RelationTo: "media"},
			{Name: "owner", Kind: schema.KindText, Required: true, DefaultFunc: func(dc schema.DefaultContext) (any, error) {
				if dc.Principal == nil {
					return nil, errors.New("anonymous import")
				}
				return dc.Principal.Name, nil
			}},
		},
	}
}

func newTestService(t *testing.T, opts Options) (*Service, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	svc := NewService(st, schema.NewStatic(productsCollection(), postsCollection()), opts, logging.Discard(),
		WithFetcher(newFakeFetcher(nil)),
		WithMediaOptions(WithSleeper((&recordingSleeper{}).Sleep)),
	)
	return svc, st
}

func productRows() []Row {
	return []Row{
		{"SKU": "A1", "Name": "Apple", "Price": "1,20"},
		{"SKU": "B2", "Name": "Banana", "Price": "in stock"},
		{"SKU": "C3", "Name": "Cherry", "Price": 3},
	}
}

func productSettings(mode Mode) ImportSettings {
	return ImportSettings{
		Mode:          mode,
		CompareField:  "sku",
		FieldMappings: mappings("SKU", "sku", "Name", "name", "Price", "price", "Tags", "tags", "Image", "image"),
	}
}

func TestService_CreateRun(t *testing.T) {
	svc, st := newTestService(t, Options{})

	res, err := svc.Submit(context.Background(), Request{
		Collection: "products",
		Data:       productRows(),
		Settings:   productSettings(ModeCreate),
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Created)
	assert.Equal(t, 0, res.Updated)
	assert.Empty(t, res.Errors)
	assert.NotNil(t, res.Errors)
	assert.Equal(t, "Import completed: created 3, updated 0 records", res.Message)
	assert.Nil(t, res.Details)
	assert.Equal(t, 3, st.Count("products"))

	docs, err := st.Find(context.Background(), "products", store.Where{"sku": "A1"}, "", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1.2, docs[0]["price"])
}

func TestService_UpsertIsIdempotent(t *testing.T) {
	svc, st := newTestService(t, Options{})
	req := Request{Collection: "products", Data: productRows(), Settings: productSettings(ModeUpsert)}

	first, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)
	assert.Equal(t, 0, first.Updated)

	second, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 3, second.Updated)
	assert.Equal(t, 3, st.Count("products"))
}

func TestService_RowErrorsAreOrderedAndNonFatal(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.Submit(ctx, Request{
		Collection: "products",
		Data:       []Row{{"SKU": "A1", "Name": "Apple"}},
		Settings:   productSettings(ModeCreate),
	})
	require.NoError(t, err)

	res, err := svc.Submit(ctx, Request{
		Collection: "products",
		Data: []Row{
			{"Name": "no sku"},
			{"SKU": "ZZ", "Name": "unknown"},
			{"SKU": "A1", "Tags": 9.5},
			{"SKU": "A1", "Name": "Apple v2"},
		},
		Settings: productSettings(ModeUpdate),
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, `Row 1: missing compare field "sku"`, res.Errors[0])
	assert.Equal(t, `Row 2: record with sku="ZZ" not found`, res.Errors[1])
	assert.Contains(t, res.Errors[2], "Row 3 mapping error:")
	assert.Equal(t, "Import completed: created 0, updated 1 records", res.Message)

	docs, _ := st.Find(ctx, "products", store.Where{"sku": "A1"}, "", 1)
	require.Len(t, docs, 1)
	assert.Equal(t, "Apple v2", docs[0]["name"])
}

func TestService_DefaultsUsePrincipal(t *testing.T) {
	svc, st := newTestService(t, Options{Details: true})
	ctx := ContextWithPrincipal(context.Background(), schema.Principal{ID: "7", Name: "importer"})

	res, err := svc.Submit(ctx, Request{
		Collection: "products",
		Data:       []Row{{"SKU": "D4"}},
		Settings:   productSettings(ModeCreate),
	})
	require.NoError(t, err)
	require.Len(t, res.Details, 1)
	assert.Equal(t, ActionCreated, res.Details[0].Action)
	assert.Equal(t, "importer", res.Details[0].Data["owner"])

	docs, _ := st.Find(context.Background(), "products", store.Where{"sku": "D4"}, "", 1)
	require.Len(t, docs, 1)
	assert.Equal(t, "importer", docs[0]["owner"])
}

func TestService_MediaIsSharedAcrossRows(t *testing.T) {
	svc, st := newTestService(t, Options{})
	const img = "https://cdn.example.com/shared.png"

	res, err := svc.Submit(context.Background(), Request{
		Collection: "products",
		Data: []Row{
			{"SKU": "M1", "Image": img},
			{"SKU": "M2", "Image": img},
		},
		Settings: productSettings(ModeCreate),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, st.Count("media"))

	a, _ := st.Find(context.Background(), "products", store.Where{"sku": "M1"}, "", 1)
	b, _ := st.Find(context.Background(), "products", store.Where{"sku": "M2"}, "", 1)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.NotEmpty(t, a[0]["image"])
	assert.Equal(t, a[0]["image"], b[0]["image"])
}

func TestService_ValidationErrors(t *testing.T) {
	svc, st := newTestService(t, Options{})

	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{
			name: "missing collection",
			req:  Request{Data: []Row{}, Settings: productSettings(ModeCreate)},
			want: []string{MissingFieldsProblem},
		},
		{
			name: "missing data",
			req:  Request{Collection: "products", Settings: productSettings(ModeCreate)},
			want: []string{MissingFieldsProblem},
		},
		{
			name: "bad mode",
			req:  Request{Collection: "products", Data: []Row{}, Settings: ImportSettings{Mode: "merge"}},
			want: []string{"settings.mode: must be one of create, update, upsert"},
		},
		{
			name: "unknown collection",
			req:  Request{Collection: "nope", Data: []Row{}, Settings: productSettings(ModeCreate)},
			want: []string{`unknown collection "nope"`},
		},
		{
			name: "incomplete mapping",
			req: Request{Collection: "products", Data: []Row{}, Settings: ImportSettings{
				Mode:          ModeCreate,
				FieldMappings: []FieldMapping{{CSVField: "SKU"}},
			}},
			want: []string{"settings.fieldMappings.0.collectionField: cannot be blank"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Submit(context.Background(), tt.req)
			assert.Nil(t, res)

			var verr *RequestValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.want, verr.Problems)

			body := ResultForError(err)
			assert.False(t, body.Success)
			assert.Equal(t, "Invalid import payload", body.Message)
			assert.Equal(t, tt.want, body.Errors)
		})
	}
	assert.Equal(t, 0, st.Count("products"))
}

func TestService_ModeIsCaseInsensitive(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	res, err := svc.Submit(context.Background(), Request{
		Collection: "products",
		Data:       productRows()[:1],
		Settings:   ImportSettings{Mode: " Create ", FieldMappings: mappings("SKU", "sku")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
}

func TestService_EmptyDataCompletes(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	res, err := svc.Submit(context.Background(), Request{Collection: "products", Data: []Row{}, Settings: productSettings(ModeCreate)})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Import completed: created 0, updated 0 records", res.Message)
}

func TestService_RejectsWhenSlotsAreBusy(t *testing.T) {
	svc, _ := newTestService(t, Options{MaxConcurrent: 1, MaxWait: 20 * time.Millisecond})
	require.NoError(t, svc.limiter.Acquire(context.Background()))
	defer svc.limiter.Release()

	_, err := svc.Submit(context.Background(), Request{Collection: "products", Data: []Row{}, Settings: productSettings(ModeCreate)})
	assert.ErrorIs(t, err, ErrTooManyImports)

	body := ResultForError(err)
	assert.Equal(t, ErrTooManyImports.Error(), body.Message)
	assert.Equal(t, 1, svc.LimiterStatus().Active)
}

func TestService_Collections(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	all := svc.Collections()
	require.Len(t, all, 2)
	assert.Equal(t, "posts", all[0].Slug)
	assert.Equal(t, "products", all[1].Slug)

	_, ok := svc.Collection("products")
	assert.True(t, ok)
}

func TestResultForError_Unexpected(t *testing.T) {
	body := ResultForError(&UnexpectedError{Err: errors.New("boom")})
	assert.False(t, body.Success)
	assert.Equal(t, "Internal server error", body.Message)
	assert.Equal(t, []string{}, body.Errors)
}

// cancellingStore cancels the submitting caller after its first write and
// refuses any call whose context is done.
type cancellingStore struct {
	*store.Memory
	cancel context.CancelFunc
}

func (c *cancellingStore) Find(ctx context.Context, collection string, where store.Where, locale string, limit int) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Memory.Find(ctx, collection, where, locale, limit)
}

func (c *cancellingStore) Create(ctx context.Context, collection string, data store.Document, locale string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := c.Memory.Create(ctx, collection, data, locale)
	c.cancel()
	return doc, err
}

func TestService_CallerCancellationDoesNotStopRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &cancellingStore{Memory: store.NewMemory(), cancel: cancel}
	svc := NewService(st, schema.NewStatic(productsCollection()), Options{}, logging.Discard(),
		WithFetcher(newFakeFetcher(nil)),
	)

	res, err := svc.Submit(ctx, Request{
		Collection: "products",
		Data:       productRows(),
		Settings:   productSettings(ModeUpsert),
	})
	require.NoError(t, err)

	assert.Empty(t, res.Errors)
	assert.Equal(t, 3, res.Created)
	assert.Equal(t, 3, st.Count("products"))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/catalog"
)

type productResponse struct {
	Data catalog.Product `json:"data"`
}

type productListResponse struct {
	Data       []catalog.Product `json:"data"`
	Pagination struct {
		Page       int   `json:"page"`
		PerPage    int   `json:"per_page"`
		TotalItems int64 `json:"total_items"`
	} `json:"pagination"`
}

type categoriesResponse struct {
	Data []string `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type fakeRepo struct {
	products map[string]catalog.Product
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{products: map[string]catalog.Product{}}
}

func (f *fakeRepo) Insert(_ context.Context, p *catalog.Product) error {
	for _, existing := range f.products {
		if existing.SKU == p.SKU {
			return catalog.ErrDuplicateSKU
		}
	}
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	f.products[p.ID] = *p
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) GetBySKU(_ context.Context, sku string) (catalog.Product, error) {
	for _, p := range f.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrNotFound
}

func (f *fakeRepo) List(_ context.Context, filter catalog.ListFilter) ([]catalog.Product, int64, error) {
	var matched []catalog.Product
	for _, p := range f.products {
		if filter.Query != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Query)) {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Active != nil && p.IsActive != *filter.Active {
			continue
		}
		matched = append(matched, p)
	}
	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return nil, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], total, nil
}

func (f *fakeRepo) Update(_ context.Context, p *catalog.Product) error {
	if _, ok := f.products[p.ID]; !ok {
		return catalog.ErrNotFound
	}
	f.products[p.ID] = *p
	return nil
}

func (f *fakeRepo) Deactivate(_ context.Context, id string) error {
	p, ok := f.products[id]
	if !ok {
		return catalog.ErrNotFound
	}
	p.IsActive = false
	f.products[id] = p
	return nil
}

func (f *fakeRepo) Categories(_ context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var categories []string
	for _, p := range f.products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	return categories, nil
}

func (f *fakeRepo) AdjustStock(_ context.Context, id string, delta int32) error {
	p, ok := f.products[id]
	if !ok {
		return catalog.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return catalog.ErrInsufficientStock
	}
	p.Stock += delta
	f.products[id] = p
	return nil
}

func newTestHandler(t *testing.T) (*catalog.Handler, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	svc, err := catalog.NewService(catalog.ServiceConfig{Repo: repo, DefaultLimit: 20, MaxLimit: 100})
	require.NoError(t, err)
	return catalog.NewHandler(catalog.HandlerConfig{Service: svc}), repo
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestProductCRUD(t *testing.T) {
	handler, _ := newTestHandler(t)

	body := `{"sku":"KOPI-001","name":"Kopi Susu","category":"minuman","price":"18000","cost":"9000","stock":50}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Create(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created productResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)
	require.Equal(t, "KOPI-001", created.Data.SKU)
	require.True(t, created.Data.Price.Equal(decimal.NewFromInt(18000)))
	require.True(t, created.Data.IsActive)

	req = withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/products/"+created.Data.ID, nil), "id", created.Data.ID)
	rec = httptest.NewRecorder()
	handler.Get(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	update := `{"sku":"KOPI-001","name":"Kopi Susu Gula Aren","category":"minuman","price":"20000","stock":40}`
	req = withURLParam(httptest.NewRequest(http.MethodPut, "/api/v1/products/"+created.Data.ID, strings.NewReader(update)), "id", created.Data.ID)
	rec = httptest.NewRecorder()
	handler.Update(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var updated productResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Equal(t, "Kopi Susu Gula Aren", updated.Data.Name)
	require.True(t, updated.Data.Price.Equal(decimal.NewFromInt(20000)))
	require.Nil(t, updated.Data.Cost)

	req = withURLParam(httptest.NewRequest(http.MethodDelete, "/api/v1/products/"+created.Data.ID, nil), "id", created.Data.ID)
	rec = httptest.NewRecorder()
	handler.Delete(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestProductDuplicateSKU(t *testing.T) {
	handler, _ := newTestHandler(t)

	body := `{"sku":"TEH-001","name":"Teh Manis","price":"8000","stock":10}`
	rec := httptest.NewRecorder()
	handler.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	handler.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(body)))
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "CONFLICT", resp.Error.Code)
}

func TestProductValidation(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(`{"name":"No SKU","price":"1000"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(`{"sku":"X-1","name":"Gratis","price":"0"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(`{"sku":"X-2","name":"Rugi","price":"1000","cost":"-5"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductListFilters(t *testing.T) {
	handler, _ := newTestHandler(t)

	for _, body := range []string{
		`{"sku":"A-1","name":"Nasi Goreng","category":"makanan","price":"25000","stock":5}`,
		`{"sku":"B-1","name":"Es Jeruk","category":"minuman","price":"10000","stock":8}`,
		`{"sku":"C-1","name":"Nasi Uduk","category":"makanan","price":"20000","stock":3}`,
	} {
		rec := httptest.NewRecorder()
		handler.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(body)))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?category=makanan", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2", rec.Header().Get("X-Total-Count"))

	var resp productListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.EqualValues(t, 2, resp.Pagination.TotalItems)

	rec = httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?q=nasi&limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.EqualValues(t, 2, resp.Pagination.TotalItems)

	rec = httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?page=abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCategoriesEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	for _, body := range []string{
		`{"sku":"A-1","name":"Nasi Goreng","category":"makanan","price":"25000"}`,
		`{"sku":"B-1","name":"Es Jeruk","category":"minuman","price":"10000"}`,
	} {
		rec := httptest.NewRecorder()
		handler.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(body)))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.Categories(rec, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp categoriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.ElementsMatch(t, []string{"makanan", "minuman"}, resp.Data)
}

func TestAdjustStock(t *testing.T) {
	handler, repo := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products",
		strings.NewReader(`{"sku":"S-1","name":"Roti Bakar","price":"15000","stock":2}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created productResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/products/"+created.Data.ID+"/stock",
		strings.NewReader(`{"delta":-2}`)), "id", created.Data.ID)
	rec = httptest.NewRecorder()
	handler.AdjustStock(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 0, repo.products[created.Data.ID].Stock)

	req = withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/products/"+created.Data.ID+"/stock",
		strings.NewReader(`{"delta":-1}`)), "id", created.Data.ID)
	rec = httptest.NewRecorder()
	handler.AdjustStock(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "INSUFFICIENT_STOCK", resp.Error.Code)
}

func TestGetMissingProduct(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/products/"+uuid.NewString(), nil), "id", uuid.NewString())
	rec := httptest.NewRecorder()
	handler.Get(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

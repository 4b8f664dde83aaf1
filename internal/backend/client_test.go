package backend

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/foodalloc/internal/model"
	"github.com/dukerupert/foodalloc/internal/session"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL}, session.Static("tok"), slog.Default())
}

func TestCreateAllocationSendsExactPayload(t *testing.T) {
	var got model.AllocationRequest
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/allocations", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(model.Allocation{ID: 9, Number: "ALC-20261015-0001", Status: model.AllocationCreated})
	})

	req := model.AllocationRequest{
		FamilyIDs:       []int64{1, 2},
		Inventories:     []model.InventorySelection{{InventoryID: 10, Quantity: 5, MaxQuantity: 5, MaxQuantityPerFamily: 5}},
		AllocationDays:  3,
		Diversification: 5,
	}
	a, err := c.CreateAllocation(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(9), a.ID)
	assert.Equal(t, model.AllocationCreated, a.Status)
	assert.Equal(t, req, got)
	assert.Equal(t, 1, calls)
}

func TestValidationErrorsOneMessagePerField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(errorBody{Errors: []FieldError{
			{Field: "diversification", Message: "must be between 1 and 10"},
			{Field: "family_ids", Message: "family 4 is not eligible"},
		}})
	})

	_, err := c.CreateAllocation(context.Background(), model.AllocationRequest{})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, []string{
		"diversification: must be between 1 and 10",
		"family_ids: family 4 is not eligible",
	}, Messages(err))
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusBadRequest, KindValidation},
		{http.StatusUnauthorized, KindUnauthorized},
		{http.StatusForbidden, KindUnauthorized},
		{http.StatusNotFound, KindNotFound},
		{http.StatusConflict, KindState},
		{http.StatusInternalServerError, KindServer},
		{http.StatusBadGateway, KindServer},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			json.NewEncoder(w).Encode(errorBody{Error: "boom"})
		})
		err := c.AcceptAllocationFamily(context.Background(), 3)
		assert.Equal(t, tt.want, KindOf(err), "status %d", tt.status)
		assert.Equal(t, []string{"boom"}, Messages(err))
	}
}

func TestTransportErrorIsGeneric(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url}, session.Static("tok"), slog.Default())
	_, err := c.AllocationCreatable(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.Equal(t, []string{TransportMessage}, Messages(err))
}

func TestMissingCredentialSkipsNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, session.Static(""), slog.Default())
	_, err := c.SearchAllocations(context.Background(), model.PageQuery{})
	require.Error(t, err)
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.True(t, errors.Is(err, session.ErrNoCredential))
	assert.False(t, called)
}

func TestSearchAllocationFamiliesEncodesPaging(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/allocations/7/families", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "25", r.URL.Query().Get("per_page"))
		assert.Equal(t, "family_name", r.URL.Query().Get("sort"))
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		json.NewEncoder(w).Encode(model.Page[model.AllocationFamily]{
			Items:   []model.AllocationFamily{{ID: 1, Status: model.FamilyServed}},
			Total:   26,
			Page:    2,
			PerPage: 25,
		})
	})

	p, err := c.SearchAllocationFamilies(context.Background(), 7, model.PageQuery{Page: 2, PerPage: 25, Sort: "family_name", Order: model.SortDesc})
	require.NoError(t, err)
	assert.Equal(t, 26, p.Total)
	require.Len(t, p.Items, 1)
	assert.Equal(t, model.FamilyServed, p.Items[0].Status)
}

func TestUndecodableBodyIsTransport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>proxy error</html>"))
	})
	_, err := c.GetAllocation(context.Background(), 1)
	assert.Equal(t, KindTransport, KindOf(err))
}

type countingSource struct {
	invalidated int
}

func (s *countingSource) Token(context.Context) (string, error) { return "tok", nil }

func (s *countingSource) Invalidate() { s.invalidated++ }

func TestUnauthorizedDropsCachedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(errorBody{Error: "token expired"})
	}))
	defer srv.Close()

	src := &countingSource{}
	c := NewClient(Config{BaseURL: srv.URL}, src, slog.Default())
	_, err := c.GetAllocation(context.Background(), 1)
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.Equal(t, 1, src.invalidated)

	_, err = c.AllocationCreatable(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, src.invalidated)
}

func TestUnreachableLoginIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url}, session.NewPasswordSource(url, "ops", "hunter2"), slog.Default())
	_, err := c.AllocationCreatable(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.ErrorIs(t, err, session.ErrUnreachable)
}

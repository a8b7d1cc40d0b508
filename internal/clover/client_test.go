package clover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchAllItemsPaginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		require.Equal(t, pageSize, limit)

		var page itemPage
		if offset == 0 {
			for i := 0; i < pageSize; i++ {
				page.Elements = append(page.Elements, Item{ID: fmt.Sprintf("P%d", i), Price: 100})
			}
		} else {
			page.Elements = []Item{{ID: "LAST", Price: 100}}
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "MID", "token", "etoken")
	items, err := c.FetchAllItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, pageSize+1)
	require.Equal(t, "LAST", items[pageSize].ID)
}

func TestListItems401Diagnostic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"401 Unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "MID", "bad", "etoken")
	_, err := c.ListItems(context.Background(), 0, pageSize)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Inventory read permission")
	require.Contains(t, err.Error(), "MID")
}

func TestListItemsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "MID", "token", "etoken")
	_, err := c.ListItems(context.Background(), 0, pageSize)
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestCharge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/charges", r.URL.Path)
		require.Equal(t, "Bearer etoken", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, float64(5871), body["amount"])
		require.Equal(t, "tok_visa", body["source"])

		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chg_1",
			"status": "succeeded",
			"source": map[string]string{"last4": "4242", "brand": "VISA"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "MID", "token", "etoken")
	res, err := c.Charge(context.Background(), "tok_visa", 5871, "usd", "order 12", "ref-12")
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, "chg_1", res.ID)
	require.Equal(t, "4242", res.Source.Last4)
	require.Equal(t, "VISA", res.Source.Brand)
}

func TestChargeDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"card_declined"}}`, http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "MID", "token", "etoken")
	_, err := c.Charge(context.Background(), "tok_bad", 5871, "usd", "order 12", "ref-12")
	require.Error(t, err)
	require.Contains(t, err.Error(), "card_declined")
}

func TestRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/refunds", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "chg_1", body["charge"])
		require.Equal(t, float64(1000), body["amount"])
		json.NewEncoder(w).Encode(map[string]string{"id": "ref_1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "MID", "token", "etoken")
	res, err := c.Refund(context.Background(), "chg_1", 1000)
	require.NoError(t, err)
	require.Equal(t, "ref_1", res.ID)
}

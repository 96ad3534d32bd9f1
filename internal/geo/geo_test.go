package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReverseGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("lat") != "41.3851" || q.Get("lon") != "2.1734" || q.Get("format") != "jsonv2" {
			t.Fatalf("unexpected query %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"address":{"road":"Carrer de Mallorca","house_number":"401","town":"Barcelona","state":"Catalonia","country":"Spain","postcode":"08013"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	addr, err := client.ReverseGeocode(context.Background(), "41.3851", "2.1734")
	if err != nil {
		t.Fatalf("reverse geocode: %v", err)
	}
	if addr.Street != "401 Carrer de Mallorca" {
		t.Fatalf("expected house number prefixed, got %q", addr.Street)
	}
	if addr.City != "Barcelona" {
		t.Fatalf("expected town fallback for city, got %q", addr.City)
	}
	if addr.Region != "Catalonia" || addr.Country != "Spain" || addr.Postal != "08013" {
		t.Fatalf("unexpected address %+v", addr)
	}
	if addr.Empty() {
		t.Fatalf("populated address reported empty")
	}
}

func TestReverseGeocodeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if _, err := client.ReverseGeocode(context.Background(), "1", "2"); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}

func TestReverseGeocodeUnconfigured(t *testing.T) {
	var client *Client
	addr, err := client.ReverseGeocode(context.Background(), "1", "2")
	if err != nil || !addr.Empty() {
		t.Fatalf("nil client must return empty address, got %+v err=%v", addr, err)
	}
}

package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mr1hm/go-citymap/internal/models"
)

func TestAPIClient_FetchIncidents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/incidents" || r.URL.Query().Get("size") != "500" || r.URL.Query().Get("page") != "0" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Error("expected bearer token")
		}
		w.Write([]byte(`{"content":[{"id":"inc-1","title":"Flooding","location":"17.4,78.5"},{"id":"inc-2"}],"totalElements":2}`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL+"/", time.Second, NewTokenSigner("s3cret", time.Minute))
	incidents, err := c.FetchIncidents(context.Background())
	if err != nil {
		t.Fatalf("FetchIncidents failed: %v", err)
	}
	if len(incidents) != 2 {
		t.Fatalf("expected 2 incidents, got %d", len(incidents))
	}
	if incidents[0].Location == nil || *incidents[0].Location != "17.4,78.5" {
		t.Errorf("unexpected location %v", incidents[0].Location)
	}
}

func TestAPIClient_FetchSensors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("expected no token without a signer")
		}
		w.Write([]byte(`[{"id":"s-1","lat":17.4,"lon":78.5,"status":"ok"},{"id":"s-2","lat":17.4}]`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, time.Second, nil)
	sensors, err := c.FetchSensors(context.Background())
	if err != nil {
		t.Fatalf("FetchSensors failed: %v", err)
	}
	if len(sensors) != 2 {
		t.Fatalf("expected 2 sensors, got %d", len(sensors))
	}
	if _, ok := sensors[1].Coordinates(); ok {
		t.Error("expected partial coordinates to be unusable")
	}
}

func TestAPIClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, time.Second, nil)
	if _, err := c.FetchSensors(context.Background()); err == nil {
		t.Error("expected error on 500")
	}
}

func TestAPIClient_FetchAQIFallsBackPerCity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		city := r.URL.Query().Get("name")
		if city == "Delhi" {
			http.Error(w, "unavailable", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(models.AQIReading{City: city, AQI: 42, Category: "Good"})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, time.Second, nil)
	readings, err := c.FetchAQI(context.Background(), []string{"Hyderabad", "Delhi"})
	if err != nil {
		t.Fatalf("FetchAQI failed: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(readings))
	}
	if readings[0] != (models.AQIReading{City: "Hyderabad", AQI: 42, Category: "Good"}) {
		t.Errorf("unexpected reading %+v", readings[0])
	}
	if readings[1] != fallbackAQI("Delhi") {
		t.Errorf("expected fallback for Delhi, got %+v", readings[1])
	}
}

func TestRESTServices_MapsTypeToCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/local_services" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "anon-key" {
			t.Error("expected apikey header")
		}
		w.Write([]byte(`[
			{"id":"a","name":"Aarogya","type":"hospital","lat":17.4,"lng":78.5},
			{"id":"b","name":"Hall","category":"community"},
			{"id":"c","name":"Unknown"}
		]`))
	}))
	defer srv.Close()

	s := NewRESTServices(srv.URL, "anon-key", time.Second)
	services, err := s.FetchServices(context.Background())
	if err != nil {
		t.Fatalf("FetchServices failed: %v", err)
	}
	if len(services) != 3 {
		t.Fatalf("expected 3 services, got %d", len(services))
	}
	if services[0].Category != "hospital" || services[1].Category != "community" || services[2].Category != "" {
		t.Errorf("unexpected categories %q %q %q", services[0].Category, services[1].Category, services[2].Category)
	}
	if _, ok := services[0].Coordinates(); !ok {
		t.Error("expected explicit coordinates on the first row")
	}
}

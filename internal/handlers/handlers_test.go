package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/barbearia-galileu/booking-server/internal/booking"
	"github.com/barbearia-galileu/booking-server/internal/handlers"
	"github.com/barbearia-galileu/booking-server/internal/payments"
	"github.com/barbearia-galileu/booking-server/internal/schedule"
	"github.com/barbearia-galileu/booking-server/internal/storage/memory"
)

var testNow = time.Date(2026, 9, 14, 7, 0, 0, 0, time.UTC)

type fakeClient struct {
	payments map[string]payments.ProviderPayment
}

func (c *fakeClient) GetPayment(_ context.Context, paymentID string) (payments.ProviderPayment, error) {
	p, ok := c.payments[paymentID]
	if !ok {
		return payments.ProviderPayment{}, payments.ErrPaymentNotFound
	}
	return p, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store, *fakeClient) {
	t.Helper()
	store := memory.NewStore()
	cal := schedule.New(schedule.Config{
		Location:        time.UTC,
		OpenHour:        8,
		CloseHour:       20,
		IntervalMinutes: 30,
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bookingSvc := booking.NewService(store, cal, nil, logger).WithClock(func() time.Time { return testNow })
	client := &fakeClient{payments: map[string]payments.ProviderPayment{}}
	reconciler := payments.NewReconciler(store, client, logger).WithClock(func() time.Time { return testNow })

	appointmentHandler := handlers.NewAppointmentHandler(bookingSvc, logger)
	availabilityHandler := handlers.NewAvailabilityHandler(bookingSvc, logger)
	paymentHandler := handlers.NewPaymentHandler(bookingSvc, reconciler, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/public/haircuts", handlers.Haircuts)
	mux.HandleFunc("/api/v1/public/availability", availabilityHandler.Slots)
	mux.HandleFunc("/api/v1/public/book", appointmentHandler.Book)
	mux.HandleFunc("/webhooks/mercadopago", paymentHandler.MercadoPagoWebhook)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store, client
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &decoded)
	return resp, decoded
}

func TestBookEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/v1/public/book", `{
		"customer_name": "João Silva",
		"customer_phone": "(11) 98765-4321",
		"haircut_id": "classic",
		"start_time": "2026-09-14T09:00:00Z"
	}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if body["status"] != "SCHEDULED" {
		t.Fatalf("expected SCHEDULED, got %v", body["status"])
	}
	if body["customer_phone"] != "11987654321" {
		t.Fatalf("expected normalized phone, got %v", body["customer_phone"])
	}

	// Same slot again conflicts.
	resp, _ = postJSON(t, srv.URL+"/api/v1/public/book", `{
		"customer_name": "Pedro Costa",
		"customer_phone": "11912345678",
		"haircut_id": "beard",
		"start_time": "2026-09-14T09:00:00Z"
	}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for taken slot, got %d", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv.URL+"/api/v1/public/book", `{"customer_name": "Jo"`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for broken json, got %d", resp.StatusCode)
	}
}

func TestAvailabilityEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	if resp, _ := postJSON(t, srv.URL+"/api/v1/public/book", `{
		"customer_name": "João Silva",
		"customer_phone": "11987654321",
		"haircut_id": "classic",
		"start_time": "2026-09-14T09:00:00Z"
	}`); resp.StatusCode != http.StatusCreated {
		t.Fatalf("seed booking failed: %d", resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/api/v1/public/availability?date=2026-09-14")
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Slots []struct {
			Time   string `json:"time"`
			Status string `json:"status"`
		} `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Slots) != 24 {
		t.Fatalf("expected 24 slots, got %d", len(body.Slots))
	}
	statuses := map[string]string{}
	for _, slot := range body.Slots {
		statuses[slot.Time] = slot.Status
	}
	if statuses["2026-09-14T09:00:00Z"] != "booked" || statuses["2026-09-14T09:30:00Z"] != "booked" {
		t.Fatalf("expected 09:00 and 09:30 booked, got %v / %v",
			statuses["2026-09-14T09:00:00Z"], statuses["2026-09-14T09:30:00Z"])
	}
	if statuses["2026-09-14T10:00:00Z"] != "available" {
		t.Fatalf("expected 10:00 available, got %v", statuses["2026-09-14T10:00:00Z"])
	}

	badResp, err := http.Get(srv.URL + "/api/v1/public/availability?date=14/09/2026")
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}
	defer badResp.Body.Close()
	if badResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", badResp.StatusCode)
	}
}

func TestHaircutsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/public/haircuts")
	if err != nil {
		t.Fatalf("get haircuts: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Haircuts []struct {
			ID              string `json:"id"`
			DurationMinutes int    `json:"duration_minutes"`
		} `json:"haircuts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Haircuts) == 0 {
		t.Fatal("expected a non-empty catalog")
	}
	for _, h := range body.Haircuts {
		if h.DurationMinutes <= 0 {
			t.Fatalf("haircut %s has no duration", h.ID)
		}
	}
}

func TestWebhookEndpoint_AlwaysAcks(t *testing.T) {
	srv, store, client := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/webhooks/mercadopago?data.id=mp-1&type=payment",
		`{"action":"payment.updated","type":"payment","data":{"id":"mp-1"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for unknown payment, got %d", resp.StatusCode)
	}
	if body["status"] != "ignored" {
		t.Fatalf("expected ignored, got %v", body["status"])
	}

	resp, booked := postJSON(t, srv.URL+"/api/v1/public/book", `{
		"customer_name": "João Silva",
		"customer_phone": "11987654321",
		"haircut_id": "classic",
		"start_time": "2026-09-14T09:00:00Z"
	}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("seed booking failed: %d", resp.StatusCode)
	}
	apptID, _ := booked["id"].(string)
	client.payments["mp-2"] = payments.ProviderPayment{ID: "mp-2", Status: "approved", ExternalReference: apptID}

	for i := 0; i < 2; i++ {
		resp, body = postJSON(t, srv.URL+"/webhooks/mercadopago?data.id=mp-2&type=payment",
			`{"action":"payment.updated","type":"payment","data":{"id":"mp-2"}}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i, resp.StatusCode)
		}
	}
	if body["status"] != "duplicate" {
		t.Fatalf("expected duplicate on redelivery, got %v", body["status"])
	}
	if audits := store.WebhookEvents(); len(audits) != 2 {
		t.Fatalf("expected 2 audit rows (ignored + processed), got %d", len(audits))
	}
}

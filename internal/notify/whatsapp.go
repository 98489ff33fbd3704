package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/barbearia-galileu/booking-server/internal/catalog"
	"github.com/barbearia-galileu/booking-server/internal/model"
)

// WhatsAppSender sends booking confirmations through the WhatsApp Cloud API.
type WhatsAppSender struct {
	baseURL       string
	phoneNumberID string
	token         string
	loc           *time.Location
	http          *http.Client
}

func NewWhatsAppSender(baseURL, phoneNumberID, token string, loc *time.Location) *WhatsAppSender {
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v20.0"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &WhatsAppSender{
		baseURL:       strings.TrimRight(baseURL, "/"),
		phoneNumberID: strings.TrimSpace(phoneNumberID),
		token:         strings.TrimSpace(token),
		loc:           loc,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *WhatsAppSender) AppointmentBooked(ctx context.Context, appt model.Appointment, haircut catalog.Haircut) error {
	if s.phoneNumberID == "" || s.token == "" {
		return errors.New("whatsapp credentials not configured")
	}

	text := fmt.Sprintf(
		"Olá %s! Seu horário na Barbearia Galileu está confirmado: %s em %s. Até lá!",
		firstName(appt.CustomerName),
		haircut.Name,
		appt.StartTime.In(s.loc).Format("02/01/2006 às 15:04"),
	)

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                BrazilPhone(appt.CustomerPhone),
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := s.baseURL + "/" + s.phoneNumberID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp api returned status %d", resp.StatusCode)
	}
	return nil
}

// BrazilPhone prefixes the country code when the number doesn't carry one.
// Numbers are assumed already digit-normalized.
func BrazilPhone(digits string) string {
	if strings.HasPrefix(digits, "55") && len(digits) >= 12 {
		return digits
	}
	return "55" + digits
}

func firstName(full string) string {
	name, _, _ := strings.Cut(strings.TrimSpace(full), " ")
	return name
}

// NoopSender satisfies the notifier contract when WhatsApp is not
// configured.
type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) AppointmentBooked(_ context.Context, _ model.Appointment, _ catalog.Haircut) error {
	return nil
}

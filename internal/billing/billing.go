package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChargeAttacher is the billing collaborator invoked best-effort after a
// successful booking. Failures are surfaced as warnings by the caller and
// never roll back the appointment.
type ChargeAttacher interface {
	AttachCharge(ctx context.Context, appointmentID uuid.UUID, amountCents int64) error
}

// HTTPAttacher posts charges to the external billing service.
type HTTPAttacher struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

func NewHTTPAttacher(baseURL string, log zerolog.Logger) *HTTPAttacher {
	return &HTTPAttacher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		log:     log,
	}
}

type attachChargeRequest struct {
	AppointmentID string `json:"appointment_id"`
	AmountCents   int64  `json:"amount_cents"`
}

func (a *HTTPAttacher) AttachCharge(ctx context.Context, appointmentID uuid.UUID, amountCents int64) error {
	body, err := json.Marshal(attachChargeRequest{
		AppointmentID: appointmentID.String(),
		AmountCents:   amountCents,
	})
	if err != nil {
		return fmt.Errorf("marshal charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("post charge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("billing service returned status %d", resp.StatusCode)
	}

	a.log.Debug().
		Str("appointment_id", appointmentID.String()).
		Int64("amount_cents", amountCents).
		Msg("charge attached")

	return nil
}

// Noop skips billing entirely. Used in dev and in deployments where
// billing is handled elsewhere.
type Noop struct{}

func (Noop) AttachCharge(ctx context.Context, appointmentID uuid.UUID, amountCents int64) error {
	return nil
}

// Package coordclient is the HTTP client for the reservation
// coordinator.
package coordclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tripvana/travel-booking-system/internal/billing/application"
	"github.com/tripvana/travel-booking-system/internal/billing/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type reservationResp struct {
	ReservationID string    `json:"reservation_id"`
	State         string    `json:"state"`
	Quantity      int       `json:"quantity"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (c *Client) Get(ctx context.Context, reservationID string) (application.ReservationSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reservations/"+reservationID, nil)
	if err != nil {
		return application.ReservationSnapshot{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return application.ReservationSnapshot{}, fmt.Errorf("get reservation: %w", err)
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return application.ReservationSnapshot{}, domain.ErrReservationNotHeld
	default:
		return application.ReservationSnapshot{}, fmt.Errorf("get reservation: unexpected status %d", resp.StatusCode)
	}

	var body reservationResp
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return application.ReservationSnapshot{}, fmt.Errorf("decode reservation: %w", err)
	}
	return application.ReservationSnapshot{
		ID:        body.ReservationID,
		State:     body.State,
		Quantity:  body.Quantity,
		ExpiresAt: body.ExpiresAt,
	}, nil
}

func (c *Client) Confirm(ctx context.Context, reservationID string) error {
	return c.post(ctx, "/reservations/"+reservationID+"/confirm")
}

func (c *Client) Release(ctx context.Context, reservationID string) error {
	return c.post(ctx, "/reservations/"+reservationID+"/release")
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer drain(resp)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

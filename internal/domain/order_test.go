package domain

import (
	"errors"
	"testing"
	"time"
)

func TestOrder_Cancel(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	order := &Order{Status: OrderStatusPending}
	if err := order.Cancel(now); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if order.Status != OrderStatusCancelled {
		t.Errorf("Status = %s, want cancelled", order.Status)
	}
	if order.CancelledAt == nil || !order.CancelledAt.Equal(now) {
		t.Errorf("CancelledAt = %v, want %v", order.CancelledAt, now)
	}

	if err := order.Cancel(now.Add(time.Minute)); !errors.Is(err, ErrOrderTerminal) {
		t.Errorf("second Cancel() error = %v, want ErrOrderTerminal", err)
	}
}

func TestOrder_CancelCollected(t *testing.T) {
	order := &Order{Status: OrderStatusCollected}
	if err := order.Cancel(time.Now()); !errors.Is(err, ErrOrderTerminal) {
		t.Errorf("Cancel() of collected order error = %v, want ErrOrderTerminal", err)
	}
}

func TestOrder_Collect(t *testing.T) {
	first := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	order := &Order{Status: OrderStatusPending}
	if err := order.Collect(first); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if order.Status != OrderStatusCollected {
		t.Errorf("Status = %s, want collected", order.Status)
	}

	if err := order.Collect(first.Add(time.Hour)); !errors.Is(err, ErrAlreadyCollected) {
		t.Errorf("second Collect() error = %v, want ErrAlreadyCollected", err)
	}
	if !order.CollectedAt.Equal(first) {
		t.Errorf("CollectedAt = %v, want first collection time preserved", order.CollectedAt)
	}
}

func TestOrder_CollectCancelled(t *testing.T) {
	order := &Order{Status: OrderStatusCancelled}
	if err := order.Collect(time.Now()); !errors.Is(err, ErrOrderTerminal) {
		t.Errorf("Collect() of cancelled order error = %v, want ErrOrderTerminal", err)
	}
}

func TestOrder_Terminal(t *testing.T) {
	cases := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderStatusPending, false},
		{OrderStatusCollected, true},
		{OrderStatusCancelled, true},
	}
	for _, tc := range cases {
		order := &Order{Status: tc.status}
		if got := order.Terminal(); got != tc.want {
			t.Errorf("Terminal() for %s = %v, want %v", tc.status, got, tc.want)
		}
	}
}

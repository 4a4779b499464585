package domain

import "testing"

func TestSagaStatus_IsTerminal(t *testing.T) {
	cases := []struct {
		status SagaStatus
		want   bool
	}{
		{SagaInitiated, false},
		{SagaSourceDebited, false},
		{SagaCompensating, false},
		{SagaCompleted, true},
		{SagaFailed, true},
	}
	for _, c := range cases {
		if got := c.status.IsTerminal(); got != c.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestNewTransferSaga_StartsInInitiated(t *testing.T) {
	saga := NewTransferSaga("from", "to", 100)
	if saga.Status != SagaInitiated {
		t.Fatalf("expected SagaInitiated, got %s", saga.Status)
	}
	if saga.SagaID.String() == "" {
		t.Fatal("expected a non-empty saga id")
	}
}

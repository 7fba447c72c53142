package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := Wrap(RemoteUnavailable, context.DeadlineExceeded, "submit to %s", "products")
	wrapped := fmt.Errorf("batch 3: %w", base)

	if !Is(wrapped, RemoteUnavailable) {
		t.Fatalf("expected RemoteUnavailable, got %q", KindOf(wrapped))
	}
	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Error("expected the cause to stay reachable through errors.Is")
	}
	if Is(wrapped, RemoteRejected) {
		t.Error("kind must not match a different kind")
	}
}

func TestRejectedCarriesBody(t *testing.T) {
	err := Rejected(400, `{"code":"invalid_document_id"}`)
	if err.Kind != RemoteRejected {
		t.Fatalf("unexpected kind %s", err.Kind)
	}
	if !strings.Contains(err.Error(), "invalid_document_id") {
		t.Errorf("error text should contain the body, got %q", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{New(NotFound, "task 4"), http.StatusNotFound},
		{New(Invalid, "bad"), http.StatusBadRequest},
		{New(Conflict, "dup"), http.StatusConflict},
		{Rejected(422, ""), http.StatusBadGateway},
		{New(RemoteUnavailable, "down"), http.StatusServiceUnavailable},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
	if Is(nil, NotFound) {
		t.Error("nil error has no kind")
	}
}

package apierrors

import (
	"errors"
	"net/http"
	"testing"
)

func TestHTTPStatusMapsSpecExitCodes(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{NotFound, http.StatusNotFound},
		{Validation, http.StatusBadRequest},
		{Conflict, http.StatusConflict},
		{Unavailable, http.StatusInternalServerError},
		{IO, http.StatusInternalServerError},
		{External, http.StatusInternalServerError},
		{Internal, http.StatusInternalServerError},
	}
	for _, c := range cases {
		err := New(c.kind, "boom", nil)
		if got := HTTPStatus(err); got != c.want {
			t.Errorf("kind %v: HTTPStatus = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestWrapPreservesExistingKind(t *testing.T) {
	inner := New(NotFound, "missing", nil)
	wrapped := Wrap(Internal, "outer", inner)
	if KindOf(wrapped) != NotFound {
		t.Errorf("Wrap should preserve the original Kind, got %v", KindOf(wrapped))
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap(Internal, "x", nil) != nil {
		t.Error("Wrap(nil) must return nil")
	}
}

func TestItemsReturnsValidationList(t *testing.T) {
	err := NewValidation("bad config", []string{"roi 1: bad", "roi 2: bad"})
	items := Items(err)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestItemsNilForPlainError(t *testing.T) {
	if Items(errors.New("plain")) != nil {
		t.Error("expected nil items for a non-apierrors error")
	}
}

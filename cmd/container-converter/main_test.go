package main

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Lllllllleong/searchablepdf/internal/models"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("scan: %w", models.ErrInvalidArguments), http.StatusBadRequest},
		{models.ErrNoDataToProcess, http.StatusUnprocessableEntity},
		{fmt.Errorf("failed to recognize images: %w", models.ErrRecognitionFailure), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

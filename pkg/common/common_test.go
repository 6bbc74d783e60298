package common

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateReferenceNo(t *testing.T) {
	at := time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC)
	ref := GenerateReferenceNo("EOD", at)

	if !strings.HasPrefix(ref, "EOD20250115-") {
		t.Errorf("Expected prefix EOD20250115-, got %s", ref)
	}

	suffix := strings.TrimPrefix(ref, "EOD20250115-")
	if len(suffix) != 7 {
		t.Errorf("Expected suffix length 7, got %d", len(suffix))
	}

	validChars := "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for _, char := range suffix {
		if !strings.ContainsRune(validChars, char) {
			t.Errorf("Invalid character found: %c", char)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[string]int{
		KindEodNotFound:            404,
		KindSessionConflict:        403,
		KindNotStartedByCaller:     403,
		KindBranchLockedForTrading: 423,
		KindWrongStep:              400,
		KindWrongStatus:            400,
		KindValidationFailed:       400,
		KindPrintRequired:          400,
		KindSessionInvalid:         400,
		KindLedgerMutationFailed:   500,
		"something_else":           500,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestPaginateResponse(t *testing.T) {
	total := int64(100)
	page := 1
	limit := 10
	data := []string{"item1", "item2"}

	res := PaginateResponse(data, total, page, limit, "")

	if res.CurrentPage != 1 {
		t.Errorf("Expected CurrentPage 1, got %d", res.CurrentPage)
	}
	if res.LastPage != 10 {
		t.Errorf("Expected LastPage 10, got %d", res.LastPage)
	}
	if res.NextPage != 2 {
		t.Errorf("Expected NextPage 2, got %d", res.NextPage)
	}
	if res.PrevPage != 0 {
		t.Errorf("Expected PrevPage 0, got %d", res.PrevPage)
	}
	if res.Count != 100 {
		t.Errorf("Expected Count 100, got %d", res.Count)
	}

	// Last page
	page = 10
	res = PaginateResponse(data, total, page, limit, "")
	if res.NextPage != 0 {
		t.Errorf("Expected NextPage 0 for last page, got %d", res.NextPage)
	}

	// Middle page
	page = 5
	res = PaginateResponse(data, total, page, limit, "")
	if res.PrevPage != 4 {
		t.Errorf("Expected PrevPage 4, got %d", res.PrevPage)
	}
	if res.NextPage != 6 {
		t.Errorf("Expected NextPage 6, got %d", res.NextPage)
	}
}

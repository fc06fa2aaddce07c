package indicator

import (
	"errors"
	"testing"
)

func TestParseRequestRoundTrip(t *testing.T) {
	specs := []string{"SMA_20", "EMA_12", "BOLLINGER_20", "RSI_14", "MACD_12_26_9", "VOLUME"}
	for _, spec := range specs {
		req, err := ParseRequest(spec)
		if err != nil {
			t.Errorf("ParseRequest(%q): %v", spec, err)
			continue
		}
		if got := req.Name(); got != spec {
			t.Errorf("ParseRequest(%q).Name() = %q", spec, got)
		}
	}
}

func TestParseRequestCaseInsensitive(t *testing.T) {
	req, err := ParseRequest("rsi_14")
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Kind != KindRSI || req.Period != 14 {
		t.Errorf("got %+v", req)
	}
}

func TestParseRequestRejectsMalformed(t *testing.T) {
	bad := []string{"", "SMA", "SMA_x", "SMA_20_5", "MACD_12_26", "MACD_26_12_9", "VOLUME_10", "VWAP_20"}
	for _, spec := range bad {
		_, err := ParseRequest(spec)
		var ipe *InvalidParameterError
		if !errors.As(err, &ipe) {
			t.Errorf("ParseRequest(%q) error = %v, want InvalidParameterError", spec, err)
		}
	}
}

func TestParseRequestsList(t *testing.T) {
	reqs, err := ParseRequests("SMA_20, RSI_14,MACD_12_26_9")
	if err != nil {
		t.Fatalf("ParseRequests: %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("got %d requests, want 3", len(reqs))
	}

	if reqs, err := ParseRequests("  "); err != nil || reqs != nil {
		t.Errorf("blank list: got %v, %v", reqs, err)
	}

	if _, err := ParseRequests("SMA_20,BOGUS_3"); err == nil {
		t.Error("expected error for list with malformed spec")
	}
}

package venue

import "testing"

func TestClassifyEnvelopeKnownErrno(t *testing.T) {
	t.Parallel()

	if err := classifyEnvelope(0, ""); err != nil {
		t.Errorf("classifyEnvelope(0) = %v, want nil", err)
	}
	if err := classifyEnvelope(10207, "insufficient balance"); err == nil || err.Kind != KindInsufficientBalance {
		t.Errorf("classifyEnvelope(10207) = %v, want Kind=InsufficientBalance", err)
	}
	if err := classifyEnvelope(10403, "region blocked"); err == nil || err.Kind != KindRegionBlocked {
		t.Errorf("classifyEnvelope(10403) = %v, want Kind=RegionBlocked", err)
	}
}

func TestClassifyEnvelopeBusinessRejectionsByMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		errmsg string
		want   Kind
	}{
		{"price is out of band for this market", KindPriceOutOfBand},
		{"order size below min allowed", KindSizeBelowMin},
		{"market is closed", KindMarketClosed},
		{"something else entirely", KindOther},
	}
	for _, c := range cases {
		got := classifyEnvelope(1, c.errmsg)
		if got == nil || got.Kind != c.want {
			t.Errorf("classifyEnvelope(1, %q) = %v, want Kind=%s", c.errmsg, got, c.want)
		}
	}
}

func TestErrorRetryableOnlyForNetworkKind(t *testing.T) {
	t.Parallel()

	if (&Error{Kind: KindNetwork}).Retryable() != true {
		t.Error("expected Network errors to be retryable")
	}
	if (&Error{Kind: KindOther}).Retryable() {
		t.Error("expected non-Network errors not to be retryable")
	}
}

package model

import (
	"errors"
	"testing"
)

func TestStatusForBlock(t *testing.T) {
	cases := []struct {
		name    string
		current AuctionStatus
		block   uint64
		want    AuctionStatus
	}{
		{"before start", AuctionCreated, 50, AuctionPlanned},
		{"at start", AuctionPlanned, 100, AuctionActive},
		{"mid sale", AuctionActive, 150, AuctionActive},
		{"at end", AuctionActive, 200, AuctionEnded},
		{"at claim", AuctionEnded, 300, AuctionClaimable},
		{"past claim", AuctionActive, 500, AuctionClaimable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := StatusForBlock(tc.current, tc.block, 100, 200, 300)
			if got != tc.want {
				t.Fatalf("StatusForBlock(%s, %d) = %s, want %s", tc.current, tc.block, got, tc.want)
			}
		})
	}
}

func TestStatusForBlockNeverDowngradesGraduated(t *testing.T) {
	if got := StatusForBlock(AuctionGraduated, 250, 100, 200, 300); got != AuctionGraduated {
		t.Fatalf("graduated at block 250 = %s", got)
	}
	if got := StatusForBlock(AuctionGraduated, 300, 100, 200, 300); got != AuctionClaimable {
		t.Fatalf("graduated at claim block = %s", got)
	}
}

func TestStatusForBlockZeroBoundaries(t *testing.T) {
	// Unset boundaries (positional config decode can leave them zero) never
	// advance the status.
	if got := StatusForBlock(AuctionCreated, 1_000_000, 0, 0, 0); got != AuctionPlanned {
		t.Fatalf("status with zero boundaries = %s", got)
	}
}

func TestClassifyError(t *testing.T) {
	le := NewLogError(ErrValidation, "AuctionCreated", "bad steps")
	if kind := ClassifyError(le, ErrStore); kind != ErrValidation {
		t.Fatalf("classified = %s", kind)
	}
	if kind := ClassifyError(errors.New("boom"), ErrStore); kind != ErrStore {
		t.Fatalf("fallback = %s", kind)
	}
}

func TestLogErrorMessage(t *testing.T) {
	err := MissingParam("BidSubmitted", "bidId")
	want := `missing_params: BidSubmitted: missing required parameter "bidId"`
	if err.Error() != want {
		t.Fatalf("message = %q", err.Error())
	}
}

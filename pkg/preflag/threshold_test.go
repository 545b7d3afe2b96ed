package preflag

import (
	"testing"
)

func TestFlagsOverThreshold(t *testing.T) {
	flags := make([]bool, 100)
	for i := 0; i < 80; i++ {
		flags[i] = true
	}

	over, err := FlagsOverThreshold(flags, 0.8)
	if err != nil {
		t.Fatalf("FlagsOverThreshold failed: %v", err)
	}
	if over {
		t.Error("80 of 100 flags should sit exactly on the threshold, not over it")
	}

	flags[80] = true
	over, err = FlagsOverThreshold(flags, 0.8)
	if err != nil {
		t.Fatalf("FlagsOverThreshold failed: %v", err)
	}
	if !over {
		t.Error("81 of 100 flags should be over a 0.8 threshold")
	}
}

func TestFlagsOverThresholdEmpty(t *testing.T) {
	over, err := FlagsOverThreshold(nil, 0.5)
	if err != nil {
		t.Fatalf("FlagsOverThreshold failed: %v", err)
	}
	if over {
		t.Error("an empty flag slice can never be over the threshold")
	}
}

func TestFlagsOverThresholdBadFraction(t *testing.T) {
	for _, thresh := range []float64{-0.1, 1.2} {
		if _, err := FlagsOverThreshold([]bool{true}, thresh); err == nil {
			t.Errorf("threshold %v should be rejected", thresh)
		}
	}
}

package domain

import "testing"

func TestRiskLevelForScore(t *testing.T) {
	cases := []struct {
		score int
		want  RiskLevel
	}{
		{0, RiskLow},
		{25, RiskLow},
		{26, RiskMedium},
		{50, RiskMedium},
		{51, RiskHigh},
		{75, RiskHigh},
		{76, RiskCritical},
		{100, RiskCritical},
	}
	for _, c := range cases {
		if got := RiskLevelForScore(c.score); got != c.want {
			t.Errorf("RiskLevelForScore(%d) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestScoreDelta(t *testing.T) {
	if ScoreDelta(RiskHigh) != 30 {
		t.Fatalf("expected 30 for RiskHigh")
	}
	if ScoreDelta(RiskMedium) != 15 {
		t.Fatalf("expected 15 for RiskMedium")
	}
}

func TestClampScore(t *testing.T) {
	if ClampScore(150) != 100 {
		t.Fatalf("expected clamp to 100")
	}
	if ClampScore(-10) != 0 {
		t.Fatalf("expected clamp to 0")
	}
	if ClampScore(42) != 42 {
		t.Fatalf("expected 42 unchanged")
	}
}

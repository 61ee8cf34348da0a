package settlement

import (
	"claims_settlement/internal/domain"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompletionAdjusted(t *testing.T) {
	tests := []struct {
		name string
		pct  int
		want int
	}{
		{"from base", 50, 45},
		{"one step above floor", 10, 5},
		{"within one step of floor", 8, 5},
		{"at floor stays at floor", 5, 5},
		{"from ceiling", 100, 95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompletionAdjusted(tt.pct))
		})
	}
}

func TestDisputeAdjusted(t *testing.T) {
	tests := []struct {
		name string
		pct  int
		step int
		want int
	}{
		{"patient from base", 50, domain.PatientPenaltyPct, 70},
		{"doctor from base", 50, domain.DoctorPenaltyPct, 60},
		{"patient capped", 90, domain.PatientPenaltyPct, 100},
		{"doctor capped", 95, domain.DoctorPenaltyPct, 100},
		{"at ceiling stays at ceiling", 100, domain.PatientPenaltyPct, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisputeAdjusted(tt.pct, tt.step))
		})
	}
}

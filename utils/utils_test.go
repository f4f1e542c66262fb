package utils

import (
	"math"
	"testing"
	"time"

	"github.com/rso-iota/rso-bots/bot/domain"
)

func TestFiniteVec(t *testing.T) {
	if !FiniteVec(domain.Vector{X: 1, Y: -1}) {
		t.Error("finite vector reported as non-finite")
	}
	if FiniteVec(domain.Vector{X: math.NaN()}) {
		t.Error("NaN vector reported as finite")
	}
	if FiniteVec(domain.Vector{Y: math.Inf(-1)}) {
		t.Error("Inf vector reported as finite")
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Duration
	}{
		{name: "unset", raw: "", want: time.Second},
		{name: "duration", raw: "30ms", want: 30 * time.Millisecond},
		{name: "seconds", raw: "0.5", want: 500 * time.Millisecond},
		{name: "garbage", raw: "soon", want: time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RSO_TEST_DURATION", tt.raw)
			if got := GetEnvDuration("RSO_TEST_DURATION", time.Second); got != tt.want {
				t.Errorf("GetEnvDuration = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("RSO_TEST_INT", "7")
	if got := GetEnvInt("RSO_TEST_INT", 3); got != 7 {
		t.Errorf("GetEnvInt = %d, want 7", got)
	}
	t.Setenv("RSO_TEST_INT", "seven")
	if got := GetEnvInt("RSO_TEST_INT", 3); got != 3 {
		t.Errorf("GetEnvInt = %d, want 3", got)
	}
}

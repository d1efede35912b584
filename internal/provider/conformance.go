package provider

import (
	"fmt"
	"reflect"

	"github.com/masterchef/catalogcheck/internal/config"
)

type ConformanceReport struct {
	ProviderType   string `json:"provider_type"`
	Resource       string `json:"resource,omitempty"`
	IdempotentPass bool   `json:"idempotent_pass"`
	Error          string `json:"error,omitempty"`
}

// CheckIdempotency validates sample, feeds the normalized params back through
// Validate and expects the same result.
func CheckIdempotency(h Handler, sample config.Resource) ConformanceReport {
	rep := ConformanceReport{
		ProviderType: h.Type(),
	}
	first, err := h.Validate(sample)
	if err != nil {
		rep.Error = fmt.Sprintf("first validate failed: %v", err)
		return rep
	}
	again := sample
	again.Params = first
	second, err := h.Validate(again)
	if err != nil {
		rep.Error = fmt.Sprintf("second validate failed: %v", err)
		return rep
	}
	if !reflect.DeepEqual(first, second) {
		rep.Error = fmt.Sprintf("normalized params changed on second validate: %v != %v", first, second)
		return rep
	}
	rep.IdempotentPass = true
	return rep
}

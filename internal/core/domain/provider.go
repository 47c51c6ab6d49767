package domain

import "time"

// ProviderStatus is the administrative health state of a settlement provider.
type ProviderStatus string

const (
	ProviderActive      ProviderStatus = "active"
	ProviderInactive    ProviderStatus = "inactive"
	ProviderMaintenance ProviderStatus = "maintenance"
	ProviderDegraded    ProviderStatus = "degraded"
)

// Provider tracks the health, priority and capability of an external
// settlement provider. Counters are best-effort: a lost increment only
// affects future ranking, never settlement correctness.
type Provider struct {
	Name               string            `json:"name"`
	SupportedServices  []TransactionType `json:"supported_services"`
	Status             ProviderStatus    `json:"status"`
	Priority           int               `json:"priority"` // lower = tried first
	SuccessfulRequests int64             `json:"successful_requests"`
	FailedRequests     int64             `json:"failed_requests"`
	TotalRequests      int64             `json:"total_requests"`
	SuccessRate        float64           `json:"success_rate"`
	MaintenanceStart   *time.Time        `json:"maintenance_start,omitempty"`
	MaintenanceEnd     *time.Time        `json:"maintenance_end,omitempty"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Supports reports whether the provider can fulfill the given service.
func (p *Provider) Supports(service TransactionType) bool {
	for _, s := range p.SupportedServices {
		if s == service {
			return true
		}
	}
	return false
}

// InMaintenance reports whether now falls inside the maintenance window.
func (p *Provider) InMaintenance(now time.Time) bool {
	if p.MaintenanceStart == nil || p.MaintenanceEnd == nil {
		return false
	}
	return !now.Before(*p.MaintenanceStart) && !now.After(*p.MaintenanceEnd)
}

// EligibleFor reports whether the provider may be selected for a service:
// it must support the service, be active or degraded, and be outside any
// maintenance window.
func (p *Provider) EligibleFor(service TransactionType, now time.Time) bool {
	if !p.Supports(service) {
		return false
	}
	if p.Status != ProviderActive && p.Status != ProviderDegraded {
		return false
	}
	return !p.InMaintenance(now)
}

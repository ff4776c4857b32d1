package dispatcher

import "github.com/samber/lo"

// ProviderStatus is a point-in-time view of one provider
type ProviderStatus struct {
	Name                   string  `json:"name"`
	Model                  string  `json:"model"`
	Available              bool    `json:"available"`
	Active                 bool    `json:"active"`
	UsageToday             int64   `json:"usage_today"`
	DailyLimit             int     `json:"daily_limit"`
	CredentialCount        int     `json:"credential_count"`
	CurrentCredentialIndex int     `json:"current_credential_index"`
	CredentialUsage        []int64 `json:"credential_usage"`
	LastResetDate          string  `json:"last_reset_date"`
}

// Status reports every provider in pool order. It never mutates state: a
// provider last touched on an earlier day is shown as it will look once it
// rolls over, with zero usage and its first credential selected.
func (d *Dispatcher) Status() []ProviderStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	today := d.today()

	return lo.Map(d.providers, func(p *provider, _ int) ProviderStatus {
		status := ProviderStatus{
			Name:            p.spec.Name,
			Model:           p.spec.Model,
			DailyLimit:      p.spec.DailyLimit,
			CredentialCount: len(p.spec.Credentials),
		}

		if p.day != today {
			status.Available = true
			status.Active = true
			status.CredentialUsage = make([]int64, len(p.usage))
			status.LastResetDate = today
			return status
		}

		status.Active = p.active
		status.Available = p.active && p.hasUsable()
		status.UsageToday = p.total()
		status.CurrentCredentialIndex = p.current
		status.CredentialUsage = append([]int64(nil), p.usage...)
		status.LastResetDate = p.day
		return status
	})
}

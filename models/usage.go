package models

import "time"

// CredentialUsage is the request count of one provider credential on one day.
type CredentialUsage struct {
	Provider        string    `json:"provider" gorm:"primaryKey;size:100"`
	CredentialIndex int       `json:"credential_index" gorm:"primaryKey;autoIncrement:false"`
	UsageDay        string    `json:"usage_day" gorm:"primaryKey;size:10;index"`
	RequestCount    int64     `json:"request_count" gorm:"not null;default:0"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName pins the table name shared by the SQL backends.
func (CredentialUsage) TableName() string {
	return "credential_usage"
}

// ProviderReset records the last day a provider's counters were zeroed.
type ProviderReset struct {
	Provider  string    `json:"provider" gorm:"primaryKey;size:100"`
	ResetDay  string    `json:"reset_day" gorm:"size:10;not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name shared by the SQL backends.
func (ProviderReset) TableName() string {
	return "provider_resets"
}

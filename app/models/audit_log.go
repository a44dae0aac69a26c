package models

import "time"

// AuditLog records security-relevant actions. Writes are best-effort and
// must never block or fail the request that triggered them.
type AuditLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       *uint     `gorm:"index" json:"user_id,omitempty"`
	Action       string    `gorm:"type:varchar(50);not null;index" json:"action"`
	Resource     string    `gorm:"type:varchar(50);default:''" json:"resource"`
	ResourceID   string    `gorm:"type:varchar(100);default:''" json:"resource_id"`
	Details      string    `gorm:"type:longtext" json:"details"`
	IPAddress    string    `gorm:"type:varchar(45);default:''" json:"ip_address"`
	UserAgent    string    `gorm:"type:varchar(255);default:''" json:"user_agent"`
	Success      bool      `gorm:"default:true" json:"success"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	Severity     string    `gorm:"type:varchar(10);not null;default:'INFO'" json:"severity"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

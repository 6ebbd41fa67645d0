package auth

import (
	"time"

	"github.com/google/uuid"
)

// Caller is the authenticated identity behind a request
type Caller struct {
	UserID         uuid.UUID  `json:"user_id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	IsAdmin        bool       `json:"is_admin"`
}

// Profile is the stored account profile a token resolves to
type Profile struct {
	UserID          uuid.UUID  `json:"user_id" gorm:"primaryKey;type:uuid"`
	OrganizationID  *uuid.UUID `json:"organization_id" gorm:"type:uuid;index"`
	FullName        string     `json:"full_name"`
	IsPlatformAdmin bool       `json:"is_platform_admin" gorm:"default:false"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName pins the gorm table name
func (Profile) TableName() string { return "profiles" }

// Caller converts a profile into the request identity
func (p *Profile) Caller() Caller {
	return Caller{
		UserID:         p.UserID,
		OrganizationID: p.OrganizationID,
		IsAdmin:        p.IsPlatformAdmin,
	}
}

package models

import "github.com/uptrace/bun"

// Registration is a rider's event registration, owned by the registration
// portal. The race core reads it but never mutates it.
type Registration struct {
	bun.BaseModel `bun:"table:registrations,alias:rg"`

	ID             int    `bun:"id,pk,autoincrement" json:"id"`
	RegistrationID string `bun:"registration_id,notnull,unique" json:"registrationID"`
	QRToken        string `bun:"qr_token,notnull,unique" json:"-"`
	FullName       string `bun:"full_name,notnull" json:"fullName"`
	EnrollmentNo   string `bun:"enrollment_no,notnull" json:"enrollmentNo"`
	College        string `bun:"college" json:"college"`
	Rounds         int    `bun:"rounds,notnull,default:1" json:"rounds"`
	IsPaid         bool   `bun:"is_paid,notnull,default:false" json:"isPaid"`
	Status         string `bun:"status,notnull,default:''" json:"status"`
}

// Eligible reports whether the rider may be admitted to the queue.
func (r *Registration) Eligible() bool {
	return r.IsPaid && r.Status == "PAID"
}

// LapQuota returns the rider's assigned lap count, defaulting to one.
func (r *Registration) LapQuota() int {
	if r.Rounds < 1 {
		return 1
	}
	return r.Rounds
}

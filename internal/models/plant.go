package models

import "time"

type Plant struct {
	ID      uint   `gorm:"primaryKey"`
	Name    string `gorm:"size:100;not null;unique"`
	Address string `gorm:"size:255"`
	// AVCP-System des Werks (z.B. "4" für System 4, "1+" für zertifizierungspflichtige Produkte)
	AVCPSystem string `gorm:"size:10"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Users []User
}

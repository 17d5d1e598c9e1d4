package model

import (
	"time"
)

// User is a portal account: a student who signed up or a provisioned staff member.
type User struct {
	ID           string    `gorm:"type:varchar(64);primaryKey" json:"id" bson:"_id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email" bson:"email"`
	FullName     string    `gorm:"type:varchar(255);not null" json:"full_name" bson:"full_name"`
	MatricNumber *string   `gorm:"type:varchar(32);uniqueIndex" json:"matric_number,omitempty" bson:"matric_number,omitempty"`
	Password     string    `gorm:"type:varchar(255);not null" json:"-" bson:"password"` // bcrypt hash
	Role         Role      `gorm:"type:varchar(16);not null" json:"role" bson:"role"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at" bson:"updated_at"`
}

// Actor returns the workflow identity of u.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Name: u.FullName, Role: u.Role}
}

// Matric returns the matric number or "" for staff.
func (u *User) Matric() string {
	if u.MatricNumber == nil {
		return ""
	}
	return *u.MatricNumber
}

// RefreshToken stores long-lived tokens allowing users to request new access tokens
type RefreshToken struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id" bson:"_id"`
	UserID    string    `gorm:"type:varchar(64);not null;index" json:"user_id" bson:"user_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-" bson:"-"`
	Token     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"token" bson:"token"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at" bson:"created_at"`
}

package model

// Sequence is a named monotonically increasing counter.
type Sequence struct {
	Name  string `gorm:"type:varchar(64);primaryKey" json:"name" bson:"_id"`
	Value int64  `gorm:"not null" json:"value" bson:"value"`
}

// TableName pins the table name.
func (Sequence) TableName() string {
	return "sequences"
}

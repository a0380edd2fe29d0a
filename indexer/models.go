package indexer

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Record is one committed protocol event.
type Record struct {
	ID         string  `gorm:"primaryKey;size:64"`
	Seq        uint64  `gorm:"uniqueIndex"`
	Type       string  `gorm:"index;size:64"`
	Position   *uint64 `gorm:"index"`
	Pool       string  `gorm:"index;size:66"`
	Account    string  `gorm:"index;size:64"`
	Attributes string  `gorm:"type:text"`
	CreatedAt  time.Time
}

// TableName pins the table name independent of gorm's pluralisation.
func (Record) TableName() string { return "vedex_events" }

// Attrs decodes the stored attribute map.
func (r Record) Attrs() map[string]string {
	out := make(map[string]string)
	if r.Attributes == "" {
		return out
	}
	_ = json.Unmarshal([]byte(r.Attributes), &out)
	return out
}

// AutoMigrate performs the schema migrations for the event index.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

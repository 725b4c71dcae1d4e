package dbmysql

import (
	"time"
)

// Message is the append-only direct-message record. Immutable once written
// except the read flag, which only ever transitions false -> true.
type Message struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	SenderID   string    `gorm:"index:idx_sender;size:36" json:"senderId"`
	ReceiverID string    `gorm:"index:idx_receiver;size:36" json:"receiverId"`
	Content    string    `gorm:"type:text" json:"content"`
	Read       bool      `gorm:"default:false" json:"read"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}

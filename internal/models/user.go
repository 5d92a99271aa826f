package models

import "time"

// User - проекция пользователя, нужная для доставки (адрес, настройки).
// Сами пользователи принадлежат внешнему сервису.
type User struct {
	BaseModel
	Email              string     `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName        string     `json:"displayName"`
	Status             UserStatus `gorm:"type:varchar(20);default:'active'" json:"status"`
	EmailNotifications bool       `gorm:"default:true" json:"emailNotifications"`
}

// DAOMember - членство пользователя в DAO.
type DAOMember struct {
	DAOID    string    `gorm:"type:uuid;primaryKey" json:"daoId"`
	UserID   string    `gorm:"type:uuid;primaryKey;index" json:"userId"`
	Role     string    `gorm:"type:varchar(20);default:'member'" json:"role"`
	JoinedAt time.Time `gorm:"default:now()" json:"joinedAt"`
}

func (DAOMember) TableName() string {
	return "dao_members"
}

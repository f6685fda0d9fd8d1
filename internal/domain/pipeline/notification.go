package pipeline

import (
	"net/url"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Notification struct {
	ID           uuid.UUID                             `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID  uuid.UUID                             `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Type         string                                `gorm:"column:type;not null;index" json:"type"`
	Label        string                                `gorm:"column:label;not null" json:"label"`
	Icon         string                                `gorm:"column:icon" json:"icon"`
	Message      string                                `gorm:"column:message;type:text" json:"message,omitempty"`
	TargetRoute  string                                `gorm:"column:target_route" json:"target_route,omitempty"`
	TargetParams datatypes.JSONType[map[string]string] `gorm:"column:target_params" json:"target_params"`
	IsRead       bool                                  `gorm:"column:is_read;not null;default:false;index" json:"is_read"`
	CreatedAt    time.Time                             `gorm:"not null;index" json:"created_at"`
}

func (Notification) TableName() string { return "notification" }

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

func (n Notification) Params() map[string]string { return n.TargetParams.Data() }

// Href joins the target route and its params into "route?k=v". Keys are sorted.
// A notification without a route has no href.
func (n Notification) Href() string {
	if n.TargetRoute == "" {
		return ""
	}
	params := n.Params()
	if len(params) == 0 {
		return n.TargetRoute
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return n.TargetRoute + "?" + q.Encode()
}

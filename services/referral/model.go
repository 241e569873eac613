package referral

import "time"

// Invite links an inviter to an invitee. An invitee has exactly one inviter.
type Invite struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	InviterID string    `gorm:"column:inviter_id;not null;uniqueIndex:idx_invites_pair,priority:1" json:"inviter_id"`
	InviteeID string    `gorm:"column:invitee_id;not null;uniqueIndex;uniqueIndex:idx_invites_pair,priority:2" json:"invitee_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

type LinkRequest struct {
	InviteCode string `json:"invite_code" binding:"required"`
}

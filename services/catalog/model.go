package catalog

import (
	"time"

	"gorm.io/datatypes"
)

const DefaultCategory = "general"

// Task is a normalized provider offer. Tasks are deactivated, never deleted.
type Task struct {
	ID             string         `gorm:"column:id;primaryKey" json:"id"`
	InternalTaskID string         `gorm:"column:internal_task_id;uniqueIndex;not null" json:"internal_task_id"`
	ProviderName   string         `gorm:"column:provider_name;not null;uniqueIndex:idx_tasks_provider_task,priority:1" json:"provider_name"`
	ProviderTaskID string         `gorm:"column:provider_task_id;not null;uniqueIndex:idx_tasks_provider_task,priority:2" json:"provider_task_id"`
	Title          string         `gorm:"column:title;not null" json:"title"`
	Description    string         `gorm:"column:description" json:"description,omitempty"`
	Category       string         `gorm:"column:category;index;not null;default:general" json:"category"`
	ProviderReward int64          `gorm:"column:provider_reward;not null;default:0" json:"provider_reward"`
	AdminRewardCap int64          `gorm:"column:admin_reward_cap;not null;default:0" json:"admin_reward_cap"`
	IsActive       bool           `gorm:"column:is_active;index;not null;default:true" json:"is_active"`
	IsCompleted    bool           `gorm:"column:is_completed;not null;default:false" json:"is_completed"`
	RawPayload     datatypes.JSON `gorm:"column:raw_payload" json:"-"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Cap returns the amount credited for reward. A zero cap leaves reward unchanged.
func (t *Task) Cap(reward int64) int64 {
	if t.AdminRewardCap > 0 && reward > t.AdminRewardCap {
		return t.AdminRewardCap
	}
	return reward
}

// TaskCategory is the admin-managed category table. The "referral" row carries the referral bonus.
type TaskCategory struct {
	ID                  string    `gorm:"column:id;primaryKey" json:"id"`
	Code                string    `gorm:"column:code;uniqueIndex;not null" json:"code"`
	Name                string    `gorm:"column:name;not null" json:"name"`
	RewardAmount        int64     `gorm:"column:reward_amount;not null;default:0" json:"reward_amount"`
	MaxDailyCompletions int       `gorm:"column:max_daily_completions;not null;default:0" json:"max_daily_completions"`
	Active              bool      `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

type FetchStatus string

const (
	FetchSuccess FetchStatus = "success"
	FetchFailed  FetchStatus = "failed"
)

// TaskFetchLog is written once per provider per refresh.
type TaskFetchLog struct {
	ID           string      `gorm:"column:id;primaryKey" json:"id"`
	Provider     string      `gorm:"column:provider;index;not null" json:"provider"`
	Status       FetchStatus `gorm:"column:status;not null" json:"status"`
	Message      string      `gorm:"column:message" json:"message,omitempty"`
	FetchedCount int         `gorm:"column:fetched_count;not null;default:0" json:"fetched_count"`
	CreatedCount int         `gorm:"column:created_count;not null;default:0" json:"created_count"`
	CreatedAt    time.Time   `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

type UpsertParams struct {
	Provider       string
	ProviderTaskID string
	Title          string
	Description    string
	Reward         int64
	Category       string
	RawPayload     datatypes.JSON
}

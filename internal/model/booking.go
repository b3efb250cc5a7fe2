package model

import "time"

// Booking は受講者によるクラス枠の予約を表す。
// キャンセル時は物理削除される。
type Booking struct {
	ID         string
	UserID     string
	ScheduleID string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Schedule は結合取得した場合のみ設定される。
	Schedule *Schedule
}

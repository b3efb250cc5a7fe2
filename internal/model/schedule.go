package model

import (
	"fmt"
	"time"
)

// 日付・時刻の入力フォーマット。
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Schedule はトレーナーが担当する予約可能なクラス枠を表す。
// 作成後は変更されない。開始は常に終了より前。
type Schedule struct {
	ID            string
	TrainerID     string
	StartDateTime time.Time
	EndDateTime   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Overlaps は区間 [StartDateTime, EndDateTime) が [start, end) と重なるかを返す。
// 端点が接するだけの区間は重ならない。
func (s *Schedule) Overlaps(start, end time.Time) bool {
	return Overlaps(s.StartDateTime, s.EndDateTime, start, end)
}

// HasStarted はnow時点でクラスが開始済みかどうかを返す。
func (s *Schedule) HasStarted(now time.Time) bool {
	return !s.StartDateTime.After(now)
}

// Overlaps は半開区間 [aStart, aEnd) と [bStart, bEnd) が重なるかを返す。
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// DayBounds はtを含むUTC暦日の [00:00, 翌00:00) を返す。
func DayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// ParseDate は YYYY-MM-DD をUTCの0時として解釈する。
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// ParseClock は HH:MM を0時からの経過時間に変換する。
func ParseClock(s string) (time.Duration, error) {
	c, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return time.Duration(c.Hour())*time.Hour + time.Duration(c.Minute())*time.Minute, nil
}

// ScheduleFilter はスケジュール一覧の絞り込み条件。
// ゼロ値のフィールドは条件に含めない。
type ScheduleFilter struct {
	// Date が非ゼロの場合、開始時刻がそのUTC暦日に含まれる枠のみ返す。
	Date      time.Time
	TrainerID string
}

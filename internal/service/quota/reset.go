package quota

import (
	"fmt"
	"time"
)

// 리셋 모드
const (
	ResetModeFixed   = "fixed"   // 공급자 벽시계 기준 (예: Pacific 자정)
	ResetModeRolling = "rolling" // 마지막 리셋으로부터 24시간
)

// ResetPolicy: 쿼터 윈도우의 경계를 결정하는 리셋 정책
// fixed 모드는 구성된 타임존의 리셋 시각을, rolling 모드는 24시간 경과를 기준으로 한다.
type ResetPolicy struct {
	mode     string
	hour     int
	location *time.Location
}

// NewResetPolicy: 리셋 정책을 생성한다. fixed 모드에서는 타임존을 로드한다.
func NewResetPolicy(mode string, hour int, timezone string) (*ResetPolicy, error) {
	if mode != ResetModeFixed && mode != ResetModeRolling {
		return nil, fmt.Errorf("unknown reset mode: %s", mode)
	}
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("reset hour must be in [0,23]: %d", hour)
	}

	loc := time.UTC
	if mode == ResetModeFixed {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("failed to load reset timezone: %w", err)
		}
	}

	return &ResetPolicy{
		mode:     mode,
		hour:     hour,
		location: loc,
	}, nil
}

// Mode 는 동작을 수행한다.
func (p *ResetPolicy) Mode() string {
	return p.mode
}

// WindowStart: now가 속한 쿼터 윈도우의 시작 시각을 반환한다. (fixed 모드 전용 의미)
func (p *ResetPolicy) WindowStart(now time.Time) time.Time {
	local := now.In(p.location)
	boundary := time.Date(local.Year(), local.Month(), local.Day(), p.hour, 0, 0, 0, p.location)
	if boundary.After(local) {
		boundary = boundary.AddDate(0, 0, -1)
	}
	return boundary
}

// Due: 마지막 리셋 이후 새 윈도우가 시작되었는지 판단한다.
func (p *ResetPolicy) Due(lastResetAt, now time.Time) bool {
	if p.mode == ResetModeRolling {
		return now.Sub(lastResetAt) >= 24*time.Hour
	}
	return lastResetAt.Before(p.WindowStart(now))
}

// ResetAnchor: 리셋 수행 시 기록할 새 lastResetAt 값을 반환한다.
// fixed 모드는 현재 윈도우 시작, rolling 모드는 24시간 단위로 따라잡은 시각이다.
func (p *ResetPolicy) ResetAnchor(lastResetAt, now time.Time) time.Time {
	if p.mode == ResetModeFixed {
		return p.WindowStart(now)
	}

	anchor := lastResetAt
	if anchor.IsZero() {
		return now
	}
	for !anchor.Add(24 * time.Hour).After(now) {
		anchor = anchor.Add(24 * time.Hour)
	}
	return anchor
}

// NextReset: 다음 리셋 시각을 반환한다. (wait-for-reset 대안 계산용)
func (p *ResetPolicy) NextReset(lastResetAt, now time.Time) time.Time {
	if p.mode == ResetModeRolling {
		if lastResetAt.IsZero() {
			return now.Add(24 * time.Hour)
		}
		next := lastResetAt.Add(24 * time.Hour)
		for !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		return next
	}
	return p.WindowStart(now).AddDate(0, 0, 1)
}

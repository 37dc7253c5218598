package util

import "math"

// CeilFraction: limit × percent를 올림하여 정수로 반환합니다.
// 비상 예비 쿼터 계산에 사용한다.
func CeilFraction(limit int64, percent float64) int64 {
	if limit <= 0 || percent <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(limit) * percent))
}

// Percent: used/limit를 백분율로 반환합니다. limit이 0이면 0을 반환한다.
func Percent(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(used) / float64(limit) * 100.0
}

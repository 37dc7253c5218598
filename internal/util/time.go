package util

// HourDistance: 24시간 시계에서 두 시각(hour-of-day) 사이의 최소 거리를 계산합니다.
// 예: 23시와 1시의 거리는 2시간.
func HourDistance(a, b int) int {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	if wrap := 24 - diff; wrap < diff {
		return wrap
	}
	return diff
}

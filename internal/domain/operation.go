package domain

import "sort"

// Priority: 작업 우선순위 클래스. 값이 낮을수록 먼저 admit된다.
type Priority int

// 우선순위 정의 (CRITICAL이 최우선)
const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityAdmin
	PriorityLow
)

// String 은 동작을 수행한다.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityAdmin:
		return "ADMIN"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// ParsePriority: 문자열을 Priority로 변환한다. 알 수 없는 값은 MEDIUM으로 처리한다.
func ParsePriority(s string) Priority {
	switch s {
	case "CRITICAL":
		return PriorityCritical
	case "HIGH":
		return PriorityHigh
	case "MEDIUM":
		return PriorityMedium
	case "ADMIN":
		return PriorityAdmin
	case "LOW":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Operation: 고정 쿼터 비용과 우선순위를 갖는 불변의 작업 단위
type Operation struct {
	Name     string
	Cost     int64
	Priority Priority
}

// CostTable: 작업 이름 → 작업 정의의 정적 비용 테이블. 시작 시 한 번 로드된다.
type CostTable map[string]Operation

// DefaultCostTable: YouTube Data API 기준 기본 비용/우선순위 테이블을 반환한다.
func DefaultCostTable() CostTable {
	ops := []Operation{
		{Name: "list", Cost: 1, Priority: PriorityMedium},
		{Name: "search", Cost: 100, Priority: PriorityLow},
		{Name: "insert", Cost: 50, Priority: PriorityCritical},
		{Name: "chatList", Cost: 5, Priority: PriorityHigh},
		{Name: "update", Cost: 50, Priority: PriorityAdmin},
	}

	table := make(CostTable, len(ops))
	for _, op := range ops {
		table[op.Name] = op
	}
	return table
}

// Lookup: 작업 정의를 조회한다. 미등록 작업은 ok=false를 반환한다.
func (t CostTable) Lookup(name string) (Operation, bool) {
	op, ok := t[name]
	return op, ok
}

// Names: 테이블에 등록된 작업 이름을 정렬하여 반환한다.
func (t CostTable) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

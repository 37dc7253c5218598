package config

import (
	"testing"

	"github.com/kapu/youtube-quota-broker-go/internal/domain"
)

func TestCollectCredentialSets(t *testing.T) {
	t.Setenv("YT_CREDENTIALS_FILE_1", "secret_1.json")
	t.Setenv("YT_CREDENTIALS_FILE_3", "secret_3.json")
	t.Setenv("YT_TOKEN_FILE_3", "custom_token.json")
	t.Setenv("YT_DAILY_LIMIT_3", "20000")

	sets := collectCredentialSets()
	if len(sets) != 2 {
		t.Fatalf("sets = %d, want 2 (empty slots skipped)", len(sets))
	}

	if sets[0].ID != "set_1" || sets[0].TokenRef != "token_set_1.json" || sets[0].DailyLimit != 10000 {
		t.Fatalf("unexpected slot 1: %+v", sets[0])
	}
	if sets[1].ID != "set_3" || sets[1].TokenRef != "custom_token.json" || sets[1].DailyLimit != 20000 {
		t.Fatalf("unexpected slot 3: %+v", sets[1])
	}
}

func TestLoadCostTableOverride(t *testing.T) {
	table := loadCostTable("search:150,liveChat:10:HIGH,broken")

	search, ok := table.Lookup("search")
	if !ok || search.Cost != 150 {
		t.Fatalf("search override not applied: %+v", search)
	}
	// 우선순위를 생략하면 기존 우선순위를 유지한다
	if search.Priority != domain.PriorityLow {
		t.Fatalf("search priority = %s, want LOW", search.Priority)
	}

	liveChat, ok := table.Lookup("liveChat")
	if !ok || liveChat.Cost != 10 || liveChat.Priority != domain.PriorityHigh {
		t.Fatalf("new operation not registered: %+v", liveChat)
	}

	// 기본 테이블 항목은 그대로 남는다
	if _, ok := table.Lookup("insert"); !ok {
		t.Fatalf("default entries must survive overrides")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Credentials: CredentialsConfig{
				Sets: []domain.CredentialSetConfig{{ID: "set_1", DailyLimit: 10000}},
			},
			Quota: QuotaConfig{
				ReservePercent: 0.05,
				ResetMode:      "fixed",
				ResetHour:      0,
				ResetTimezone:  "America/Los_Angeles",
			},
			Server: ServerConfig{Port: 30080},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := base()
	cfg.Credentials.Sets = nil
	if err := cfg.Validate(); err == nil {
		t.Fatalf("config without credentials or API key must fail")
	}

	cfg = base()
	cfg.Credentials.Sets = nil
	cfg.YouTube.APIKey = "key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("API key only config must pass: %v", err)
	}

	cfg = base()
	cfg.Quota.ReservePercent = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("reserve percent out of range must fail")
	}

	cfg = base()
	cfg.Quota.ResetMode = "hourly"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown reset mode must fail")
	}

	cfg = base()
	cfg.Quota.ResetTimezone = "Not/AZone"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("invalid timezone must fail")
	}

	cfg = base()
	cfg.Credentials.Sets[0].DailyLimit = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("non-positive daily limit must fail")
	}
}

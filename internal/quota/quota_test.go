package quota

import (
	"context"
	"testing"
)

func TestNullManager_AlwaysAdmits(t *testing.T) {
	m := NewNullManager()
	res, err := m.CheckQuota(context.Background(), "openai", "user-1", 1000, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.CanProceed {
		t.Error("NullManager should always admit")
	}
	if err := m.RecordUsage(context.Background(), "openai", "user-1", 100, 0.1, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	status, err := m.Status(context.Background(), "openai", "user-1")
	if err != nil || status != nil {
		t.Errorf("expected nil status and nil error, got %v, %v", status, err)
	}
}

func TestInMemoryManager_NoLimitsConfiguredAlwaysAdmits(t *testing.T) {
	m := NewInMemoryManager(nil)
	res, err := m.CheckQuota(context.Background(), "openai", "user-1", 1000, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.CanProceed {
		t.Error("a provider with no configured limits should always be admitted")
	}
}

func TestInMemoryManager_DailyRequestLimitEnforced(t *testing.T) {
	m := NewInMemoryManager(map[string]Limits{"openai": {DailyRequests: 2}})

	for i := 0; i < 2; i++ {
		res, err := m.CheckQuota(context.Background(), "openai", "", 0, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.CanProceed {
			t.Fatalf("request %d should be admitted", i)
		}
		if err := m.RecordUsage(context.Background(), "openai", "", 10, 0, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	res, err := m.CheckQuota(context.Background(), "openai", "", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CanProceed {
		t.Fatal("third request should be denied at daily limit 2")
	}
	if res.TimeUntilReset <= 0 {
		t.Error("expected a positive time-until-reset")
	}
}

func TestInMemoryManager_DailyTokenLimitEnforced(t *testing.T) {
	m := NewInMemoryManager(map[string]Limits{"openai": {DailyTokens: 100}})

	res, err := m.CheckQuota(context.Background(), "openai", "", 150, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CanProceed {
		t.Fatal("estimated tokens exceeding the remaining daily budget should be denied")
	}
}

func TestInMemoryManager_MonthlyCostLimitEnforced(t *testing.T) {
	m := NewInMemoryManager(map[string]Limits{"openai": {MonthlyCost: 10}})

	if err := m.RecordUsage(context.Background(), "openai", "", 0, 9.5, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := m.CheckQuota(context.Background(), "openai", "", 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CanProceed {
		t.Fatal("projected cost exceeding the monthly cap should be denied")
	}
}

func TestInMemoryManager_FailedCallsCountRequestsNotTokens(t *testing.T) {
	m := NewInMemoryManager(map[string]Limits{"openai": {DailyRequests: 5, DailyTokens: 1000}})

	if err := m.RecordUsage(context.Background(), "openai", "", 500, 1, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := m.Status(context.Background(), "openai", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var daily *Status
	for i := range status {
		if status[i].Window == "daily" {
			daily = &status[i]
		}
	}
	if daily == nil || daily.Consumed != 1 {
		t.Fatalf("expected one recorded request, got %+v", daily)
	}

	res, err := m.CheckQuota(context.Background(), "openai", "", 1000, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.CanProceed {
		t.Fatal("a failed call's tokens must not count against the token budget")
	}
}

func TestInMemoryManager_ScopesAreIndependent(t *testing.T) {
	m := NewInMemoryManager(map[string]Limits{"openai": {DailyRequests: 1}})

	m.RecordUsage(context.Background(), "openai", "user-a", 0, 0, true)

	res, _ := m.CheckQuota(context.Background(), "openai", "user-a", 0, 0)
	if res.CanProceed {
		t.Fatal("user-a should be exhausted")
	}

	res, _ = m.CheckQuota(context.Background(), "openai", "user-b", 0, 0)
	if !res.CanProceed {
		t.Fatal("user-b has its own independent scope")
	}
}

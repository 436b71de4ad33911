package privacy

import (
	"sync"
	"testing"

	"github.com/raaihank/snapvault/internal/config"
	"github.com/raaihank/snapvault/internal/logger"
)

func newTestDetector(t *testing.T, detectors ...string) *Detector {
	t.Helper()
	if len(detectors) == 0 {
		detectors = []string{"all"}
	}
	d, err := New(config.PrivacyConfig{Enabled: true, Detectors: detectors}, 3, logger.NewNop())
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}
	return d
}

func TestClassify(t *testing.T) {
	d := newTestDetector(t)

	cases := []struct {
		word string
		want Category
		ok   bool
	}{
		{"jane.doe@example.com", CategoryEmail, true},
		{"sk-ABCDEFGHIJKLMNOPQRSTU", CategoryAPIKey, true},
		{"token_abcdefghijklmnop1234", CategoryAPIKey, true},
		{"+15551234567", CategoryPhone, true},
		{"(555)123-4567", CategoryPhone, true},
		{"192.168.10.1", CategoryIPAddress, true},
		{"999.999.999.999", CategoryIPAddress, true}, // no octet range validation
		{"4111-1111-1111-1111", CategoryPhone, true},  // phone is checked before credit_card
		{"hello", "", false},
		{"sk-short", "", false},
		{"ab", "", false},
		{"12", "", false},
		{"  ", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.word, func(t *testing.T) {
			got, ok := d.Classify(tc.word)
			if ok != tc.ok || got != tc.want {
				t.Errorf("Classify(%q) = (%q, %v), want (%q, %v)", tc.word, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	// matches both the email and the api_key patterns
	word := "secret_ABCDEFGHIJKLMNOP@example.com"

	d := newTestDetector(t)
	if got, _ := d.Classify(word); got != CategoryEmail {
		t.Fatalf("expected email to win, got %q", got)
	}

	if err := d.DisableRule(string(CategoryEmail)); err != nil {
		t.Fatalf("DisableRule failed: %v", err)
	}
	if got, _ := d.Classify(word); got != CategoryAPIKey {
		t.Fatalf("expected api_key once email is disabled, got %q", got)
	}
}

func TestCreditCardReachableWithoutPhone(t *testing.T) {
	d := newTestDetector(t, "credit_card")
	got, ok := d.Classify("4111-1111-1111-1111")
	if !ok || got != CategoryCreditCard {
		t.Fatalf("expected credit_card, got (%q, %v)", got, ok)
	}
}

func TestConfigure(t *testing.T) {
	t.Run("unknown detector", func(t *testing.T) {
		_, err := New(config.PrivacyConfig{Enabled: true, Detectors: []string{"passport"}}, 3, logger.NewNop())
		if err == nil {
			t.Fatal("expected unknown detector to fail")
		}
	})

	t.Run("subset", func(t *testing.T) {
		d := newTestDetector(t, "email", "ip_address")
		enabled := d.GetEnabledRules()
		if len(enabled) != 2 || enabled[0] != "email" || enabled[1] != "ip_address" {
			t.Fatalf("unexpected enabled rules: %v", enabled)
		}
		if _, ok := d.Classify("+15551234567"); ok {
			t.Error("phone detector should be disabled")
		}
	})

	t.Run("globally disabled", func(t *testing.T) {
		d := newTestDetector(t)
		if err := d.Configure(config.PrivacyConfig{Enabled: false, Detectors: []string{"all"}}); err != nil {
			t.Fatalf("Configure failed: %v", err)
		}
		if _, ok := d.Classify("jane.doe@example.com"); ok {
			t.Error("disabled detector should not classify")
		}
	})

	t.Run("rule toggles", func(t *testing.T) {
		d := newTestDetector(t)
		if err := d.EnableRule("nope"); err == nil {
			t.Error("expected error for unknown rule")
		}
		if err := d.DisableRule("nope"); err == nil {
			t.Error("expected error for unknown rule")
		}
	})
}

func TestConfigureConcurrentWithClassify(t *testing.T) {
	d := newTestDetector(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				d.Classify("jane.doe@example.com")
			}
		}()
	}
	for j := 0; j < 50; j++ {
		_ = d.Configure(config.PrivacyConfig{Enabled: true, Detectors: []string{"email"}})
	}
	wg.Wait()
}

func TestSummarize(t *testing.T) {
	findings := Summarize([]Category{CategoryPhone, CategoryEmail, CategoryEmail})
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %v", findings)
	}
	if findings[0].Category != CategoryEmail || findings[0].Count != 2 {
		t.Errorf("unexpected first finding: %+v", findings[0])
	}
	if findings[1].Category != CategoryPhone || findings[1].Count != 1 {
		t.Errorf("unexpected second finding: %+v", findings[1])
	}
}

package permission

import "testing"

func TestParseActionRoundTrip(t *testing.T) {
	for a := Action(0); a < actionCount; a++ {
		parsed, err := ParseAction(a.String())
		if err != nil {
			t.Fatalf("ParseAction(%s) error: %v", a, err)
		}
		if parsed != a {
			t.Fatalf("ParseAction(%s) = %s", a, parsed)
		}
	}
}

func TestParseActionRejectsNonCanonical(t *testing.T) {
	for _, bad := range []string{"", "delete", "Delete", " DELETE", "DELETE ", "DROP"} {
		if _, err := ParseAction(bad); err == nil {
			t.Fatalf("ParseAction(%q): expected error", bad)
		}
	}
}

func TestParsePermission(t *testing.T) {
	p, err := Parse("TASK:DELETE")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if p.Resource != "TASK" || p.Action != ActionDelete {
		t.Fatalf("Parse = %+v", p)
	}
	if p.String() != "TASK:DELETE" {
		t.Fatalf("String = %s", p.String())
	}

	for _, bad := range []string{"", "TASK", ":DELETE", "TASK:", "TASK:delete", "TASK:DROP"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("Parse(%q): expected error", bad)
		}
	}
}

func TestVocabularyLifecycle(t *testing.T) {
	v := NewVocabulary()

	if err := v.Register("TASK"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := v.Register("EXPENSE"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := v.Register("TASK"); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := v.Register(""); err == nil {
		t.Fatal("expected empty resource to fail")
	}

	v.Freeze()
	if err := v.Register("REPORT"); err == nil {
		t.Fatal("expected frozen vocabulary to reject registration")
	}

	if !v.Contains("TASK") || v.Contains("REPORT") {
		t.Fatal("unexpected Contains results")
	}
	if v.Count() != 2 {
		t.Fatalf("Count = %d, want 2", v.Count())
	}

	resources := v.Resources()
	if len(resources) != 2 || resources[0] != "EXPENSE" || resources[1] != "TASK" {
		t.Fatalf("Resources = %v, want sorted [EXPENSE TASK]", resources)
	}
}

package domain

import "testing"

func TestParseEnvironmentNormalizesCase(t *testing.T) {
	env, err := ParseEnvironment(" staging ")
	if err != nil {
		t.Fatalf("ParseEnvironment returned error: %v", err)
	}
	if env != EnvStaging {
		t.Fatalf("expected STAGING, got %s", env)
	}
}

func TestParseEnvironmentRejectsUnknownToken(t *testing.T) {
	if _, err := ParseEnvironment("GREEN"); err == nil {
		t.Fatal("expected error for unknown environment token")
	}
}

func TestCompareOrdersLadder(t *testing.T) {
	for i := 0; i < len(Ladder)-1; i++ {
		if Compare(Ladder[i], Ladder[i+1]) >= 0 {
			t.Fatalf("expected %s < %s", Ladder[i], Ladder[i+1])
		}
	}
	if Compare(EnvProd, EnvProd) != 0 {
		t.Fatal("expected PROD == PROD")
	}
	if Compare(EnvProd, EnvDev) <= 0 {
		t.Fatal("expected PROD > DEV")
	}
}

func TestNextStopsAtTerminalRung(t *testing.T) {
	next, ok := EnvStaging.Next()
	if !ok || next != EnvProd {
		t.Fatalf("expected STAGING -> PROD, got %s (%v)", next, ok)
	}
	if _, ok := EnvProd.Next(); ok {
		t.Fatal("expected no successor after PROD")
	}
}

func TestHighestPicksTopRung(t *testing.T) {
	top, ok := Highest([]Environment{EnvQA, EnvDev, EnvStaging})
	if !ok || top != EnvStaging {
		t.Fatalf("expected STAGING, got %s (%v)", top, ok)
	}
	if _, ok := Highest(nil); ok {
		t.Fatal("expected no highest for empty set")
	}
}

func TestIsContiguousFromBase(t *testing.T) {
	cases := []struct {
		name string
		envs []Environment
		want bool
	}{
		{"empty", nil, true},
		{"dev only", []Environment{EnvDev}, true},
		{"full ladder", []Environment{EnvDev, EnvQA, EnvStaging, EnvProd}, true},
		{"unordered prefix", []Environment{EnvQA, EnvDev}, true},
		{"duplicates", []Environment{EnvDev, EnvDev, EnvQA}, true},
		{"skips qa", []Environment{EnvDev, EnvStaging}, false},
		{"missing base", []Environment{EnvQA}, false},
		{"prod only", []Environment{EnvProd}, false},
	}
	for _, tc := range cases {
		if got := IsContiguousFromBase(tc.envs); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

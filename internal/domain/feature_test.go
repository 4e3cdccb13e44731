package domain

import (
	"errors"
	"testing"
)

func TestValidatePromotionStepAcceptsNextRung(t *testing.T) {
	envs := []Environment{EnvDev, EnvQA}
	if err := ValidatePromotionStep(envs, EnvQA, EnvStaging); err != nil {
		t.Fatalf("expected QA -> STAGING to validate, got %v", err)
	}
}

func TestValidatePromotionStepRejectsSkippedRung(t *testing.T) {
	envs := []Environment{EnvDev}
	if err := ValidatePromotionStep(envs, EnvDev, EnvStaging); !errors.Is(err, ErrInvalidLadderStep) {
		t.Fatalf("expected ErrInvalidLadderStep, got %v", err)
	}
}

func TestValidatePromotionStepRejectsStaleSource(t *testing.T) {
	envs := []Environment{EnvDev, EnvQA, EnvStaging}
	if err := ValidatePromotionStep(envs, EnvQA, EnvStaging); !errors.Is(err, ErrNonContiguousPromotion) {
		t.Fatalf("expected ErrNonContiguousPromotion, got %v", err)
	}
}

func TestValidatePromotionStepRejectsBeyondTerminal(t *testing.T) {
	envs := []Environment{EnvDev, EnvQA, EnvStaging, EnvProd}
	if err := ValidatePromotionStep(envs, EnvProd, "RED"); !errors.Is(err, ErrInvalidLadderStep) {
		t.Fatalf("expected ErrInvalidLadderStep, got %v", err)
	}
}

func TestValidatePromotionStepUnpromotedEntersAtDev(t *testing.T) {
	if err := ValidatePromotionStep(nil, EnvDev, EnvQA); err != nil {
		t.Fatalf("expected unpromoted DEV -> QA to validate, got %v", err)
	}
	if err := ValidatePromotionStep(nil, EnvQA, EnvStaging); !errors.Is(err, ErrNonContiguousPromotion) {
		t.Fatalf("expected ErrNonContiguousPromotion, got %v", err)
	}
}

func TestFeatureVisibility(t *testing.T) {
	feature := Feature{Environments: []Environment{EnvDev, EnvQA}}
	if !feature.VisibleIn(EnvQA) {
		t.Fatal("expected feature visible in QA")
	}
	if feature.VisibleIn(EnvProd) {
		t.Fatal("expected feature hidden in PROD")
	}
	top, ok := feature.HighestEnvironment()
	if !ok || top != EnvQA {
		t.Fatalf("expected highest QA, got %s (%v)", top, ok)
	}
}

package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("assign: %w", NotFound("request %d not found", 7))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped not found to match sentinel")
	}
	if errors.Is(err, ErrValidation) {
		t.Fatalf("not found must not match validation")
	}
	if KindOf(err) != KindNotFound {
		t.Fatalf("KindOf = %q", KindOf(err))
	}
}

func TestInvalidTransition_CarriesCurrent(t *testing.T) {
	err := InvalidTransition("completed", "request %d cannot be assigned", 3)
	if CurrentOf(err) != "completed" {
		t.Fatalf("CurrentOf = %q", CurrentOf(err))
	}
	if got := err.Error(); got != "invalid_transition: request 3 cannot be assigned (current status completed)" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	if k := KindOf(errors.New("boom")); k != "" {
		t.Fatalf("expected empty kind, got %q", k)
	}
}

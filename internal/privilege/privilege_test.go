package privilege

import (
	"context"
	"errors"
	"testing"

	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

type mockChecker struct {
	root       bool
	elevateErr error
	elevations []string
}

func (m *mockChecker) IsRoot() bool { return m.root }

func (m *mockChecker) Elevate(_ context.Context, operation string, _ bool, _ []string) error {
	m.elevations = append(m.elevations, operation)
	if m.elevateErr != nil {
		return m.elevateErr
	}
	m.root = true
	return nil
}

func TestElevateForOperationRejectsUnwhitelistedOp(t *testing.T) {
	checker := &mockChecker{root: false}
	err := ElevateForOperation(context.Background(), checker, "search", false, nil)
	if err == nil {
		t.Fatal("expected an error for a non-whitelisted operation")
	}
	var omgErr *omgerrors.Error
	if !errors.As(err, &omgErr) {
		t.Fatalf("expected *omgerrors.Error, got %T", err)
	}
	if omgErr.Category != omgerrors.CategoryPermissionDenied {
		t.Fatalf("expected CategoryPermissionDenied, got %s", omgErr.Category)
	}
	if len(checker.elevations) != 0 {
		t.Fatal("expected no elevation attempt for a rejected operation")
	}
}

func TestElevateForOperationAllowsWhitelistedOps(t *testing.T) {
	for op := range allowedOps {
		checker := &mockChecker{root: false}
		if err := ElevateForOperation(context.Background(), checker, op, false, nil); err != nil {
			t.Fatalf("operation %q should be whitelisted: %v", op, err)
		}
		if len(checker.elevations) != 1 {
			t.Fatalf("operation %q: expected exactly one elevation attempt, got %d", op, len(checker.elevations))
		}
	}
}

func TestElevateIfNeededSkipsWhenAlreadyRoot(t *testing.T) {
	checker := &mockChecker{root: true}
	if err := ElevateIfNeeded(context.Background(), checker, "install", false, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(checker.elevations) != 0 {
		t.Fatal("expected no elevation attempt when already root")
	}
}

func TestElevateIfNeededPropagatesCheckerFailure(t *testing.T) {
	checker := &mockChecker{root: false, elevateErr: errors.New("sudo: a password is required")}
	err := ElevateIfNeeded(context.Background(), checker, "install", true, nil)
	if err == nil {
		t.Fatal("expected the checker's elevation failure to propagate")
	}
}

func TestNopasswdRemediationNamesSudoersStanza(t *testing.T) {
	err := nopasswdRemediation("install", "/usr/bin/omgctl", errors.New("exit status 1"))
	var omgErr *omgerrors.Error
	if !errors.As(err, &omgErr) {
		t.Fatalf("expected *omgerrors.Error, got %T", err)
	}
	if omgErr.Category != omgerrors.CategoryPermissionDenied {
		t.Fatalf("expected CategoryPermissionDenied, got %s", omgErr.Category)
	}
	if omgErr.Remediation == "" {
		t.Fatal("expected a remediation hint to survive from PermissionDenied")
	}
}

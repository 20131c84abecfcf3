package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/denthubhq/denthub-backend/pkg/db/models"
	pkgerrors "github.com/denthubhq/denthub-backend/pkg/errors"
)

type stubRepo struct {
	modules []models.FeatureModule
}

func (s *stubRepo) WithTx(*gorm.DB) Repository { return s }

func (s *stubRepo) List(context.Context) ([]models.FeatureModule, error) {
	return s.modules, nil
}

func (s *stubRepo) ListCore(context.Context) ([]models.FeatureModule, error) {
	var out []models.FeatureModule
	for _, module := range s.modules {
		if module.IsCore {
			out = append(out, module)
		}
	}
	return out, nil
}

func (s *stubRepo) ListByCodes(_ context.Context, codes []string) ([]models.FeatureModule, error) {
	wanted := map[string]bool{}
	for _, code := range codes {
		wanted[code] = true
	}
	var out []models.FeatureModule
	for _, module := range s.modules {
		if wanted[module.Code] {
			out = append(out, module)
		}
	}
	return out, nil
}

func (s *stubRepo) FindByCode(_ context.Context, code string) (*models.FeatureModule, error) {
	for i := range s.modules {
		if s.modules[i].Code == code {
			return &s.modules[i], nil
		}
	}
	return nil, nil
}

func testRepo() *stubRepo {
	module := func(code string, core bool, deps ...string) models.FeatureModule {
		return models.FeatureModule{
			ID:           uuid.New(),
			Code:         code,
			IsCore:       core,
			Dependencies: pq.StringArray(deps),
		}
	}
	return &stubRepo{modules: []models.FeatureModule{
		module("patients", true),
		module("appointments", true),
		module("clinical_notes", true),
		module("imaging", false, "patients"),
		module("lab_orders", false, "clinical_notes", "imaging"),
		module("sms_reminders", false, "appointments"),
		module("inventory", false),
	}}
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	resolver, err := NewResolver(testRepo())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return resolver
}

func TestResolveDependenciesTransitive(t *testing.T) {
	resolver := newTestResolver(t)

	modules, err := resolver.ResolveDependencies(context.Background(), []string{"lab_orders"})
	if err != nil {
		t.Fatalf("ResolveDependencies: %v", err)
	}

	codes := map[string]bool{}
	for _, module := range modules {
		codes[module.Code] = true
	}
	for _, want := range []string{"lab_orders", "clinical_notes", "imaging", "patients"} {
		if !codes[want] {
			t.Fatalf("missing %s in closure: %v", want, codes)
		}
	}
	if len(codes) != 4 {
		t.Fatalf("expected 4 modules, got %d", len(codes))
	}
	// Requested codes come first.
	if modules[0].Code != "lab_orders" {
		t.Fatalf("first module = %s, want lab_orders", modules[0].Code)
	}
}

func TestResolveDependenciesDeduplicates(t *testing.T) {
	resolver := newTestResolver(t)

	modules, err := resolver.ResolveDependencies(context.Background(), []string{"imaging", "imaging", " imaging "})
	if err != nil {
		t.Fatalf("ResolveDependencies: %v", err)
	}
	if len(modules) != 2 {
		t.Fatalf("expected imaging + patients, got %d modules", len(modules))
	}
}

func TestResolveDependenciesUnknownCode(t *testing.T) {
	resolver := newTestResolver(t)

	_, err := resolver.ResolveDependencies(context.Background(), []string{"orthodontics"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestResolveDependenciesEmpty(t *testing.T) {
	resolver := newTestResolver(t)

	modules, err := resolver.ResolveDependencies(context.Background(), nil)
	if err != nil {
		t.Fatalf("ResolveDependencies: %v", err)
	}
	if len(modules) != 0 {
		t.Fatalf("expected no modules, got %d", len(modules))
	}
}

func TestFindDependentsTransitive(t *testing.T) {
	resolver := newTestResolver(t)

	// lab_orders depends on imaging directly; nothing else reaches patients
	// except imaging and lab_orders.
	dependents, err := resolver.FindDependents(context.Background(), []string{"patients"})
	if err != nil {
		t.Fatalf("FindDependents: %v", err)
	}

	codes := map[string]bool{}
	for _, module := range dependents {
		codes[module.Code] = true
	}
	if !codes["imaging"] || !codes["lab_orders"] {
		t.Fatalf("expected imaging and lab_orders, got %v", codes)
	}
	if len(codes) != 2 {
		t.Fatalf("expected 2 dependents, got %d", len(codes))
	}
}

func TestFindDependentsNone(t *testing.T) {
	resolver := newTestResolver(t)

	dependents, err := resolver.FindDependents(context.Background(), []string{"inventory"})
	if err != nil {
		t.Fatalf("FindDependents: %v", err)
	}
	if len(dependents) != 0 {
		t.Fatalf("expected no dependents, got %v", dependents)
	}
}

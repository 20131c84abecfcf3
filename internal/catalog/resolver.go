package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/denthubhq/denthub-backend/pkg/db/models"
	pkgerrors "github.com/denthubhq/denthub-backend/pkg/errors"
)

// Resolver answers dependency questions over the feature module catalog.
// Dependency edges are the catalog's declared `dependencies` code lists.
type Resolver struct {
	repo Repository
}

// NewResolver builds a resolver backed by the catalog repository.
func NewResolver(repo Repository) (*Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &Resolver{repo: repo}, nil
}

// ListCore returns the catalog's core modules.
func (r *Resolver) ListCore(ctx context.Context) ([]models.FeatureModule, error) {
	return r.repo.ListCore(ctx)
}

// ResolveDependencies expands the requested codes with their transitive
// dependencies. Unknown codes yield a validation error listing them.
func (r *Resolver) ResolveDependencies(ctx context.Context, codes []string) ([]models.FeatureModule, error) {
	requested := normalizeCodes(codes)
	if len(requested) == 0 {
		return nil, nil
	}

	resolved := map[string]models.FeatureModule{}
	pending := requested
	for len(pending) > 0 {
		batch, err := r.repo.ListByCodes(ctx, pending)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog modules")
		}
		byCode := map[string]models.FeatureModule{}
		for _, module := range batch {
			byCode[module.Code] = module
		}

		var unknown []string
		var next []string
		for _, code := range pending {
			module, ok := byCode[code]
			if !ok {
				unknown = append(unknown, code)
				continue
			}
			resolved[code] = module
			for _, dep := range module.Dependencies {
				dep = strings.TrimSpace(dep)
				if dep == "" {
					continue
				}
				if _, seen := resolved[dep]; !seen {
					next = append(next, dep)
				}
			}
		}
		if len(unknown) > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown module codes").
				WithDetails(map[string]any{"module_codes": unknown})
		}
		pending = normalizeCodes(next)
		pending = withoutResolved(pending, resolved)
	}

	return orderedModules(requested, resolved), nil
}

// FindDependents returns catalog modules whose dependency closure contains
// any of the provided codes. Used to cascade removals.
func (r *Resolver) FindDependents(ctx context.Context, codes []string) ([]models.FeatureModule, error) {
	targets := normalizeCodes(codes)
	if len(targets) == 0 {
		return nil, nil
	}

	all, err := r.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog")
	}

	dependsOn := map[string][]string{}
	for _, module := range all {
		dependsOn[module.Code] = module.Dependencies
	}

	targetSet := map[string]bool{}
	for _, code := range targets {
		targetSet[code] = true
	}

	var dependents []models.FeatureModule
	for _, module := range all {
		if targetSet[module.Code] {
			continue
		}
		if reaches(module.Code, targetSet, dependsOn, map[string]bool{}) {
			dependents = append(dependents, module)
		}
	}
	sort.Slice(dependents, func(i, j int) bool { return dependents[i].Code < dependents[j].Code })
	return dependents, nil
}

// reaches walks the dependency edges from code looking for any target.
func reaches(code string, targets map[string]bool, dependsOn map[string][]string, visited map[string]bool) bool {
	if visited[code] {
		return false
	}
	visited[code] = true
	for _, dep := range dependsOn[code] {
		if targets[dep] {
			return true
		}
		if reaches(dep, targets, dependsOn, visited) {
			return true
		}
	}
	return false
}

func normalizeCodes(codes []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

func withoutResolved(codes []string, resolved map[string]models.FeatureModule) []string {
	var out []string
	for _, code := range codes {
		if _, ok := resolved[code]; !ok {
			out = append(out, code)
		}
	}
	return out
}

// orderedModules returns requested codes first (in request order), then the
// transitively discovered dependencies sorted by code.
func orderedModules(requested []string, resolved map[string]models.FeatureModule) []models.FeatureModule {
	out := make([]models.FeatureModule, 0, len(resolved))
	emitted := map[string]bool{}
	for _, code := range requested {
		if module, ok := resolved[code]; ok && !emitted[code] {
			out = append(out, module)
			emitted[code] = true
		}
	}
	var rest []string
	for code := range resolved {
		if !emitted[code] {
			rest = append(rest, code)
		}
	}
	sort.Strings(rest)
	for _, code := range rest {
		out = append(out, resolved[code])
	}
	return out
}

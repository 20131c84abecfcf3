package subscriptions

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/denthubhq/denthub-backend/api/controllers/orgcontext"
	"github.com/denthubhq/denthub-backend/api/responses"
	"github.com/denthubhq/denthub-backend/api/validators"
	subsvc "github.com/denthubhq/denthub-backend/internal/subscriptions"
	"github.com/denthubhq/denthub-backend/pkg/db/models"
	pkgerrors "github.com/denthubhq/denthub-backend/pkg/errors"
	"github.com/denthubhq/denthub-backend/pkg/logger"
)

type moduleChangeFunc func(ctx context.Context, organizationID, id uuid.UUID, input subsvc.ModuleChangeInput) (*models.Subscription, error)

// ModulesAdd attaches add-on modules to a subscription.
func ModulesAdd(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	var apply moduleChangeFunc
	if svc != nil {
		apply = svc.AddModules
	}
	return moduleChangeHandler(apply, logg)
}

// ModulesRemove deactivates add-on modules on a subscription.
func ModulesRemove(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	var apply moduleChangeFunc
	if svc != nil {
		apply = svc.RemoveModules
	}
	return moduleChangeHandler(apply, logg)
}

func moduleChangeHandler(apply moduleChangeFunc, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if apply == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		organizationID, err := orgcontext.ResolveOrganizationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "subscriptionId"), "subscriptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload subsvc.ModuleChangeInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := apply(r.Context(), organizationID, id, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subsvc.ToView(sub))
	}
}

package subscriptions

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/denthubhq/denthub-backend/api/controllers/orgcontext"
	"github.com/denthubhq/denthub-backend/api/responses"
	"github.com/denthubhq/denthub-backend/api/validators"
	subsvc "github.com/denthubhq/denthub-backend/internal/subscriptions"
	pkgerrors "github.com/denthubhq/denthub-backend/pkg/errors"
	"github.com/denthubhq/denthub-backend/pkg/logger"
)

// LicenseValidate answers whether a cabinet may use a module right now.
// A denied check is still a 200, the verdict lives in the body.
func LicenseValidate(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		organizationID, err := orgcontext.ResolveOrganizationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cabinetID, err := validators.ParsePathUUID(chi.URLParam(r, "cabinetId"), "cabinetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		moduleCode := strings.TrimSpace(chi.URLParam(r, "moduleCode"))
		result, err := svc.ValidateLicense(r.Context(), organizationID, cabinetID, moduleCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

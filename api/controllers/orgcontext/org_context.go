package orgcontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/denthubhq/denthub-backend/api/middleware"
	pkgerrors "github.com/denthubhq/denthub-backend/pkg/errors"
)

// ResolveOrganizationID extracts the authenticated tenant from the request.
func ResolveOrganizationID(r *http.Request) (uuid.UUID, error) {
	organizationID := middleware.OrganizationIDFromContext(r.Context())
	if organizationID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "organization context required")
	}
	id, err := uuid.Parse(organizationID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid organization id")
	}
	return id, nil
}

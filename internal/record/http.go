// Copyright (c) 2026 Hilla. All rights reserved.

package record

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/hillalabs/hilla/internal/platform/request"
	"github.com/hillalabs/hilla/internal/platform/respond"
	"github.com/hillalabs/hilla/internal/platform/validate"
	"github.com/hillalabs/hilla/pkg/pagination"
)

// Handler implements catalogue HTTP endpoints.
type Handler struct {
	recordService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{recordService: service}
}

// Routes returns a [chi.Router] configured with catalogue routes.
//
// # Endpoints
//   - GET /        : Paginated record listing (public metadata).
//   - GET /{slug}  : Record detail with access-resolved restricted payload.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.list)
	router.Get("/{slug}", handler.detail)

	return router
}

// AdminRoutes returns the librarian-facing curation routes. These are
// mounted behind the auth and role middlewares.
//
// # Endpoints
//   - POST / : Creates a catalogue record.
func (handler *Handler) AdminRoutes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", handler.create)

	return router
}

// list handles GET /api/v1/records requests.
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	params := pagination.FromRequest(request)

	records, total, err := handler.recordService.ListRecords(request.Context(), params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, records, pagination.NewMeta(params.Page, params.Limit, total))
}

// detail handles GET /api/v1/records/{slug} requests.
//
// # Returns
//   - Writes HTTP 200 OK with the access-resolved view.
//   - Writes HTTP 404 Not Found for an unknown slug.
//   - Writes HTTP 503 Service Unavailable when the entitlement backend
//     cannot be consulted for a restricted record.
func (handler *Handler) detail(writer http.ResponseWriter, request *http.Request) {
	recordSlug := requestutil.Param(request, "slug")

	// The viewer's external identity, or "" for anonymous browsing. The
	// detail route is publicly reachable; restriction is resolved per field,
	// not per route.
	externalID := ""
	if claims := requestutil.Claims(request); claims != nil {
		externalID = claims.ExternalID
	}

	view, err := handler.recordService.GetRecord(request.Context(), recordSlug, externalID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, view)
}

// createRequest represents the JSON payload for record creation.
type createRequest struct {
	Title              string `json:"title"`
	Author             string `json:"author"`
	Format             string `json:"format"`
	Year               int    `json:"year"`
	Description        string `json:"description"`
	Restricted         bool   `json:"restricted"`
	RestrictedNotes    string `json:"restricted_notes"`
	RestrictedLocation string `json:"restricted_location"`
	SourceURL          string `json:"source_url"`
}

// create handles POST /api/v1/admin/records requests.
func (handler *Handler) create(writer http.ResponseWriter, request *http.Request) {
	var input createRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.
		Required("title", input.Title).
		MaxLen("title", input.Title, 500).
		Required("author", input.Author)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	record, err := handler.recordService.CreateRecord(request.Context(), CreateInput{
		Title:              input.Title,
		Author:             input.Author,
		Format:             input.Format,
		Year:               input.Year,
		Description:        input.Description,
		Restricted:         input.Restricted,
		RestrictedNotes:    input.RestrictedNotes,
		RestrictedLocation: input.RestrictedLocation,
		SourceURL:          input.SourceURL,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, record)
}

package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/vbonduro/photographies/internal/domain"
)

type listQuery struct {
	Order string `json:"order" validate:"omitempty,oneof=asc desc"`
}

type deleteMultipleRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,uuid"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"}, "OK")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := listQuery{Order: r.URL.Query().Get("order")}
	if err := s.validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	order, err := domain.ParseSortOrder(q.Order)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ps, err := s.service.ListPhotographies(r.Context(), order)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ps, msgRetrievedMany)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidID)
		return
	}

	p, err := s.service.GetPhotography(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p, msgRetrieved)
}

func (s *Server) handleGetByCode(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.GetPhotographyByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p, msgRetrieved)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidID)
		return
	}

	if err := s.service.DeletePhotography(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil, msgDeleted)
}

func (s *Server) handleDeleteMultiple(w http.ResponseWriter, r *http.Request) {
	var req deleteMultipleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	for i, id := range req.IDs {
		req.IDs[i] = strings.ToLower(strings.TrimSpace(id))
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	if err := s.service.DeletePhotographies(r.Context(), req.IDs); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil, msgDeletedMany)
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteAllPhotographies(r.Context()); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil, msgDeletedMany)
}

// parseID returns the canonical form of the {id} path value.
func parseID(r *http.Request) (string, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return fmt.Sprintf("Validation failed: %v", err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a UUID", fe.Field())
	case "required", "min":
		return fmt.Sprintf("%s must contain at least one item", fe.Field())
	default:
		return fmt.Sprintf("%s failed on the %s rule", fe.Namespace(), fe.Tag())
	}
}

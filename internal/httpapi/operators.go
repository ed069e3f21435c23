package httpapi

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/httputil"
	"github.com/waypoint-tourism/directory/internal/onboarding"
)

const multipartMemory = 32 << 20

// maxFiles bounds how many files one onboarding form may carry.
const maxFiles = 24

// handleOnboard accepts a multipart form: operator fields as values, files
// under logo, cover, gallery and documents. document_types holds one type
// per document, in order.
func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	if s.onboarding == nil {
		httputil.WriteErrorResponse(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "onboarding is not configured", nil)
		return
	}

	limit := s.onboarding.Config().MaxFileSize*maxFiles + multipartMemory
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteErrorResponse(w, r, http.StatusRequestEntityTooLarge, "BAD_REQUEST", "upload too large", nil)
			return
		}
		httputil.BadRequest(w, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	req, err := onboardingRequest(r.MultipartForm)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	res, err := s.onboarding.Onboard(r.Context(), userID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func onboardingRequest(form *multipart.Form) (onboarding.Request, error) {
	value := func(name string) string {
		if v := form.Value[name]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	req := onboarding.Request{
		Operator: domain.OperatorCreate{
			BusinessName: value("business_name"),
			Description:  value("description"),
			ContactEmail: value("contact_email"),
			ContactPhone: value("contact_phone"),
			Website:      value("website"),
			Region:       value("region"),
		},
	}

	total := 0
	for _, key := range []string{"logo", "cover", "gallery", "documents"} {
		total += len(form.File[key])
	}
	if total > maxFiles {
		return req, fmt.Errorf("at most %d files may be uploaded", maxFiles)
	}

	single := func(name string) (*onboarding.File, error) {
		headers := form.File[name]
		switch len(headers) {
		case 0:
			return nil, nil
		case 1:
			f, err := readFile(headers[0])
			return &f, err
		}
		return nil, fmt.Errorf("only one %s may be uploaded", name)
	}

	var err error
	if req.Logo, err = single("logo"); err != nil {
		return req, err
	}
	if req.Cover, err = single("cover"); err != nil {
		return req, err
	}
	for _, fh := range form.File["gallery"] {
		f, err := readFile(fh)
		if err != nil {
			return req, err
		}
		req.Gallery = append(req.Gallery, f)
	}

	docTypes := form.Value["document_types"]
	for i, fh := range form.File["documents"] {
		f, err := readFile(fh)
		if err != nil {
			return req, err
		}
		doc := onboarding.Document{File: f}
		if i < len(docTypes) {
			doc.Type = docTypes[i]
		}
		req.Documents = append(req.Documents, doc)
	}
	return req, nil
}

func readFile(fh *multipart.FileHeader) (onboarding.File, error) {
	src, err := fh.Open()
	if err != nil {
		return onboarding.File{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer src.Close()

	data, err := httputil.ReadAllStrict(src, max(fh.Size, 1))
	if err != nil {
		return onboarding.File{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return onboarding.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *Server) handleMyOperators(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	operators, err := s.repo.ListOperatorsByOwner(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if operators == nil {
		operators = []domain.Operator{}
	}
	httputil.WriteJSON(w, http.StatusOK, operators)
}

// handleOperatorDocuments returns expiring links to an operator's
// verification documents for its owner or an admin.
func (s *Server) handleOperatorDocuments(w http.ResponseWriter, r *http.Request) {
	if _, ok := httputil.RequireUserID(w, r); !ok {
		return
	}
	if s.onboarding == nil {
		httputil.WriteErrorResponse(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "onboarding is not configured", nil)
		return
	}
	actor, err := s.currentProfile(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	links, err := s.onboarding.Documents(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, links)
}

package handler

import (
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"treeadopt/internal/model"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

const (
	imagesField     = "images"
	multipartMemory = 8 << 20
)

// form is a parsed multipart submission: single-valued text fields, the
// repeated captions field and the image files.
type form struct {
	values   map[string]string
	captions []string
	images   []model.Upload
}

// parseForm reads a multipart body of at most maxBytes. Text fields outside
// allowed and file fields other than images are rejected.
func parseForm(w http.ResponseWriter, r *http.Request, maxBytes int64, allowed ...string) (*form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, model.Validation(model.ErrCodeValidation, fmt.Sprintf("Upload exceeds %d MB", maxBytes>>20))
		}
		return nil, model.Validation(model.ErrCodeValidation, "Request must be multipart/form-data")
	}
	defer r.MultipartForm.RemoveAll()

	ok := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		ok[name] = true
	}

	f := &form{values: make(map[string]string)}
	for name, vals := range r.MultipartForm.Value {
		if !ok[name] {
			return nil, model.Validation(model.ErrCodeUnknownFormField, fmt.Sprintf("Unknown form field %q", name))
		}
		if name == "captions" {
			f.captions = vals
			continue
		}
		if len(vals) > 1 {
			return nil, model.Validation(model.ErrCodeValidation, fmt.Sprintf("Field %q must appear once", name))
		}
		f.values[name] = strings.TrimSpace(vals[0])
	}

	for name := range r.MultipartForm.File {
		if name != imagesField {
			return nil, model.Validation(model.ErrCodeUnknownFormField, fmt.Sprintf("Unknown file field %q", name))
		}
	}

	for _, fh := range r.MultipartForm.File[imagesField] {
		upload, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		f.images = append(f.images, upload)
	}

	return f, nil
}

func readUpload(fh *multipart.FileHeader) (model.Upload, error) {
	file, err := fh.Open()
	if err != nil {
		return model.Upload{}, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return model.Upload{}, fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return model.Upload{}, model.Validation(model.ErrCodeValidation, fmt.Sprintf("%s is not an image", fh.Filename))
	}

	return model.Upload{
		Filename:    fh.Filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

// taskRef reads the orderId and taskId fields.
func (f *form) taskRef() (uuid.UUID, string, error) {
	orderID, err := uuid.Parse(f.values["orderId"])
	if err != nil {
		return uuid.Nil, "", model.Validation(model.ErrCodeMissingField, "orderId must be a valid UUID")
	}
	taskID := f.values["taskId"]
	if taskID == "" {
		return uuid.Nil, "", model.Validation(model.ErrCodeMissingField, "taskId is required")
	}
	return orderID, taskID, nil
}

// float reads an optional numeric field.
func (f *form) float(name string) (*float64, error) {
	raw, ok := f.values[name]
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, model.Validation(model.ErrCodeInvalidCoordinates, fmt.Sprintf("%s must be a number", name))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, model.Validation(model.ErrCodeValidation, fmt.Sprintf("%s must be a finite number", name))
	}
	return &v, nil
}

// point reads lat and lng, which must be given together.
func (f *form) point() (*orb.Point, error) {
	lat, err := f.float("lat")
	if err != nil {
		return nil, err
	}
	lng, err := f.float("lng")
	if err != nil {
		return nil, err
	}
	if lat == nil && lng == nil {
		return nil, nil
	}
	if lat == nil || lng == nil {
		return nil, model.Validation(model.ErrCodeInvalidCoordinates, "lat and lng must be given together")
	}
	return &orb.Point{*lng, *lat}, nil
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/YohanV1/TissueLab-Scheduler/internal/common"
	"github.com/YohanV1/TissueLab-Scheduler/internal/files"
)

// maxUploadBytes caps slide uploads at 2 GiB.
const maxUploadBytes = 2 << 30

var allowedSlideExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// FileHandler serves slide uploads and metadata lookups.
type FileHandler struct {
	files  *files.Service
	logger arbor.ILogger
}

func NewFileHandler(fs *files.Service) *FileHandler {
	return &FileHandler{
		files:  fs,
		logger: common.GetLogger(),
	}
}

// UploadHandler accepts a multipart upload under the "file" field and
// returns the indexed metadata.
func (h *FileHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	tenant, ok := RequireTenant(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Missing file field: "+err.Error())
		return
	}
	defer file.Close()

	dot := strings.LastIndex(header.Filename, ".")
	if dot < 0 || !allowedSlideExts[strings.ToLower(header.Filename[dot:])] {
		WriteError(w, http.StatusBadRequest, "Unsupported slide format: "+header.Filename)
		return
	}

	record, err := h.files.SaveUpload(tenant, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		WriteKindError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, record)
}

// GetHandler returns one file's metadata.
func (h *FileHandler) GetHandler(fileID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := RequireTenant(w, r)
		if !ok {
			return
		}
		record, err := h.files.Get(tenant, fileID)
		if err != nil {
			WriteKindError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, record)
	}
}

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tartampluch/photo-time-sleuth/internal/ai"
	"github.com/tartampluch/photo-time-sleuth/internal/config"
	"github.com/tartampluch/photo-time-sleuth/internal/engine"
	"github.com/tartampluch/photo-time-sleuth/internal/photo"
	"github.com/tartampluch/photo-time-sleuth/internal/secret"
)

type ageDateRequest struct {
	PersonName string          `json:"person_name"`
	Age        json.RawMessage `json:"age"`
	Season     string          `json:"season"`
}

type updateMetadataRequest struct {
	ImagePath string `json:"image_path"`
	NewDate   string `json:"new_date"`
}

type aiDateRequest struct {
	ImagePath string `json:"image_path"`
}

type apiKeyRequest struct {
	APIKey string `json:"api_key"`
}

// -----------------------------------------------------------------------------
// Pages
// -----------------------------------------------------------------------------

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := webFS.ReadFile(config.IndexFile)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, config.TKeyErrInternal, nil, err)
		return
	}
	w.Header().Set(config.HeaderContentType, config.MimeHTML)
	w.Header().Set(config.HeaderCacheControl, config.CacheControlNone)
	_, _ = w.Write(page)
}

// -----------------------------------------------------------------------------
// Folder & registry
// -----------------------------------------------------------------------------

func (s *Server) handleFolderPath(w http.ResponseWriter, r *http.Request) {
	if s.Settings.PhotoDir == "" {
		s.fail(w, r, http.StatusInternalServerError, config.TKeyErrDirNotConfigured, nil, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"folder_path": s.Settings.PhotoDir})
}

func (s *Server) handlePhotos(w http.ResponseWriter, r *http.Request) {
	photos, err := s.Photos.List(r.Context())
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, config.TKeyErrInvalidDirectory, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"photos": photos})
}

func (s *Server) handleNamesAndBdays(w http.ResponseWriter, r *http.Request) {
	records, ok := s.loadRegistry(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string][]engine.BirthdayRecord{"names_and_bdays": records})
}

// loadRegistry reads the registry for one request and reports failures itself.
func (s *Server) loadRegistry(w http.ResponseWriter, r *http.Request) ([]engine.BirthdayRecord, bool) {
	records, err := engine.LoadRegistry(s.Settings.BdayFile)
	if err == nil {
		return records, true
	}

	var fe *engine.FormatError
	if errors.As(err, &fe) {
		s.fail(w, r, http.StatusBadRequest, config.TKeyErrRegistryFormat, map[string]any{"Detail": fe.Error()}, err)
	} else {
		s.fail(w, r, http.StatusInternalServerError, config.TKeyErrInternal, nil, err)
	}
	return nil, false
}

// -----------------------------------------------------------------------------
// Date estimation
// -----------------------------------------------------------------------------

func (s *Server) handleGetAgeDate(w http.ResponseWriter, r *http.Request) {
	var req ageDateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, http.StatusBadRequest, config.TKeyErrBadRequest, nil, err)
		return
	}

	if !validPersonName(req.PersonName) {
		s.fail(w, r, http.StatusBadRequest, config.TKeyErrInvalidPerson, nil, nil)
		return
	}
	age, ok := parseAge(req.Age)
	if !ok {
		s.fail(w, r, http.StatusBadRequest, config.TKeyErrInvalidAge, nil, nil)
		return
	}
	anchor, err := engine.ParseAnchor(req.Season)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, config.TKeyErrInvalidSeason, nil, err)
		return
	}

	records, ok := s.loadRegistry(w, r)
	if !ok {
		return
	}
	person, found := engine.FindByName(records, req.PersonName)
	if !found {
		s.fail(w, r, http.StatusNotFound, config.TKeyErrPersonNotFound, nil, nil)
		return
	}

	date, err := engine.EstimateString(person.Birthday, age, anchor)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, config.TKeyErrInvalidBirthday, nil, err)
		return
	}

	slog.Debug(config.MsgEstimated,
		config.LogKeyComponent, config.CompEngine,
		config.LogKeyRequestID, requestID(r.Context()),
		config.LogKeyName, person.Name,
		config.LogKeyDOB, person.Birthday,
		config.LogKeyAge, age,
		config.LogKeyAnchor, anchor,
		config.LogKeyResult, date,
	)
	writeJSON(w, http.StatusOK, map[string]string{"estimated_date": date})
}

func validPersonName(name string) bool {
	return strings.TrimSpace(name) != "" &&
		!strings.Contains(name, config.PathTraversal) &&
		!strings.Contains(name, config.PathSeparator)
}

// parseAge accepts a JSON integer or a string holding one, in [0, MaxAgeYears].
func parseAge(raw json.RawMessage) (int, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}

	var text string
	switch t := v.(type) {
	case json.Number:
		text = t.String()
	case string:
		text = strings.TrimSpace(t)
	default:
		return 0, false
	}

	age, err := strconv.Atoi(text)
	if err != nil || age < 0 || age > config.MaxAgeYears {
		return 0, false
	}
	return age, true
}

// -----------------------------------------------------------------------------
// Photo metadata
// -----------------------------------------------------------------------------

func (s *Server) handlePhotoDate(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get(config.QueryImagePath)
	date, err := s.Photos.GetDate(r.Context(), name)
	if err != nil {
		s.failPhoto(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"date": date})
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var req updateMetadataRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, http.StatusBadRequest, config.TKeyErrBadRequest, nil, err)
		return
	}

	if !validImageName(req.ImagePath) {
		s.fail(w, r, http.StatusBadRequest, config.TKeyErrInvalidImagePath, nil, nil)
		return
	}
	if s.Settings.PhotoDir == "" {
		s.fail(w, r, http.StatusInternalServerError, config.TKeyErrDirNotConfigured, nil, nil)
		return
	}
	if _, err := s.Photos.Path(req.ImagePath); err != nil {
		s.failPhoto(w, r, err)
		return
	}

	date, ok := NormalizeExifDate(req.NewDate)
	if !ok {
		s.fail(w, r, http.StatusBadRequest, config.TKeyErrInvalidDateFmt, nil, nil)
		return
	}

	if err := s.Photos.SetDate(r.Context(), req.ImagePath, date); err != nil {
		s.failPhoto(w, r, err)
		return
	}

	msg := s.tr(r).GetWith(config.TKeyMsgDateChanged, map[string]any{"Path": req.ImagePath})
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func validImageName(name string) bool {
	return name != "" &&
		!strings.Contains(name, config.PathTraversal) &&
		!strings.Contains(name, config.PathSeparator)
}

// NormalizeExifDate turns the accepted date inputs into YYYY:MM:DD HH:MM:SS.
// A bare YYYY-MM-DD or YYYY:MM:DD gets midnight appended.
func NormalizeExifDate(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if photo.ValidateExifDate(value) == nil {
		return value, true
	}

	for _, layout := range []string{config.DateFormatISO, config.DateFormatExifDay} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(config.DateFormatExifDay) + config.ExifMidnightSuffix, true
		}
	}
	return "", false
}

// failPhoto maps photo store errors to responses.
func (s *Server) failPhoto(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, photo.ErrInvalidName):
		s.fail(w, r, http.StatusBadRequest, config.TKeyErrInvalidImagePath, nil, err)
	case errors.Is(err, photo.ErrNotFound):
		s.fail(w, r, http.StatusNotFound, config.TKeyErrImageNotFound, nil, err)
	case errors.Is(err, photo.ErrNoDate):
		s.fail(w, r, http.StatusNotFound, config.TKeyErrNoDate, nil, err)
	case errors.Is(err, photo.ErrBadDate):
		s.fail(w, r, http.StatusBadRequest, config.TKeyErrInvalidDateFmt, nil, err)
	case errors.Is(err, photo.ErrUnsupported):
		s.fail(w, r, http.StatusInternalServerError, config.TKeyErrUnsupported, nil, err)
	default:
		s.fail(w, r, http.StatusInternalServerError, config.TKeyErrInternal, nil, err)
	}
}

// -----------------------------------------------------------------------------
// AI date guess & API key
// -----------------------------------------------------------------------------

func (s *Server) handleAIDate(w http.ResponseWriter, r *http.Request) {
	var req aiDateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, http.StatusBadRequest, config.TKeyErrBadRequest, nil, err)
		return
	}

	path, err := s.Photos.Path(req.ImagePath)
	if err != nil {
		s.failPhoto(w, r, err)
		return
	}

	key, err := s.Keys.Load()
	if err != nil {
		if errors.Is(err, secret.ErrNoKey) {
			s.fail(w, r, http.StatusPreconditionFailed, config.TKeyErrNoAPIKey, nil, err)
		} else {
			s.fail(w, r, http.StatusInternalServerError, config.TKeyErrInternal, nil, err)
		}
		return
	}

	image, err := readLimited(path, config.MaxImageUpload)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, config.TKeyErrUnsupported, nil, err)
		return
	}

	date, err := s.AI.EstimateDate(r.Context(), image, mimeFor(path), key)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"date": date})
	case errors.Is(err, ai.ErrNoDateInReply):
		s.fail(w, r, http.StatusNotFound, config.TKeyErrNoDate, nil, err)
	default:
		s.fail(w, r, http.StatusBadGateway, config.TKeyErrAIFailed, nil, err)
	}
}

// readLimited reads a whole file, refusing files larger than limit.
func readLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errors.New(config.ErrImageTooLarge)
	}
	return data, nil
}

func mimeFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), config.ExtPNG) {
		return config.MimePNG
	}
	return config.MimeJPEG
}

func (s *Server) handleGetAPIKey(w http.ResponseWriter, r *http.Request) {
	_, err := s.Keys.Load()
	if err != nil && !errors.Is(err, secret.ErrNoKey) {
		slog.Warn(config.ErrKeyRead,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyRequestID, requestID(r.Context()),
			config.LogKeyError, err,
		)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"has_key": err == nil})
}

func (s *Server) handleSaveAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apiKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, http.StatusBadRequest, config.TKeyErrBadRequest, nil, err)
		return
	}

	if err := s.Keys.Save(req.APIKey); err != nil {
		if errors.Is(err, secret.ErrKeyEmpty) {
			s.fail(w, r, http.StatusBadRequest, config.TKeyErrBadRequest, nil, err)
		} else {
			s.fail(w, r, http.StatusInternalServerError, config.TKeyErrInternal, nil, err)
		}
		return
	}

	slog.Info(config.MsgKeySaved, config.LogKeyComponent, config.CompServer)
	writeJSON(w, http.StatusOK, map[string]string{"message": s.tr(r).Get(config.TKeyMsgKeySaved)})
}

// -----------------------------------------------------------------------------
// Photo files
// -----------------------------------------------------------------------------

func (s *Server) handlePhotoFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue(config.PathParamFile)
	path, err := s.Photos.Path(name)
	if err != nil {
		s.failPhoto(w, r, err)
		return
	}

	width := queryInt(r, config.QueryWidth)
	height := queryInt(r, config.QueryHeight)
	if width <= 0 && height <= 0 {
		http.ServeFile(w, r, path)
		return
	}

	var buf bytes.Buffer
	if err := s.Photos.Thumbnail(r.Context(), name, width, height, &buf); err != nil {
		s.failPhoto(w, r, err)
		return
	}
	w.Header().Set(config.HeaderContentType, config.MimeJPEG)
	w.Header().Set(config.HeaderContentLength, strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

// queryInt reads an integer query parameter; missing or invalid values are 0.
func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}

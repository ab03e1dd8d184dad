package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/photo-time-sleuth/internal/ai"
	"github.com/tartampluch/photo-time-sleuth/internal/config"
	"github.com/tartampluch/photo-time-sleuth/internal/locale"
	"github.com/tartampluch/photo-time-sleuth/internal/photo"
	"github.com/tartampluch/photo-time-sleuth/internal/secret"
)

// -----------------------------------------------------------------------------
// Test doubles & fixtures
// -----------------------------------------------------------------------------

type MockClock struct {
	CurrentTime time.Time
}

func (m MockClock) Now() time.Time {
	return m.CurrentTime
}

type MockKeys struct {
	mock.Mock
}

func (m *MockKeys) Load() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockKeys) Save(key string) error {
	return m.Called(key).Error(0)
}

type MockGuesser struct {
	mock.Mock
}

func (m *MockGuesser) EstimateDate(ctx context.Context, image []byte, mimeType, apiKey string) (string, error) {
	args := m.Called(ctx, image, mimeType, apiKey)
	return args.String(0), args.Error(1)
}

const testRegistry = "# family\nAlice\t2000-05-10\nBob\t1990-12-25\n"

type fixture struct {
	srv      *Server
	handler  http.Handler
	dir      string
	bdayFile string
	keys     *MockKeys
	ai       *MockGuesser
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	bdayFile := filepath.Join(dir, "bdays.txt")
	require.NoError(t, os.WriteFile(bdayFile, []byte(testRegistry), 0o644))

	writeImage(t, filepath.Join(dir, "beach.jpg"), 40, 20, jpegEncode)
	writeImage(t, filepath.Join(dir, "scan.png"), 40, 20, pngEncode)

	cat, err := locale.Load("en")
	require.NoError(t, err)

	settings := config.DefaultSettings()
	settings.PhotoDir = dir
	settings.BdayFile = bdayFile
	settings.Port = 0

	keys := &MockKeys{}
	guesser := &MockGuesser{}
	clock := MockClock{CurrentTime: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

	srv := New(settings, photo.NewDirStore(dir), keys, guesser, cat, clock)
	return &fixture{
		srv:      srv,
		handler:  srv.Handler(),
		dir:      dir,
		bdayFile: bdayFile,
		keys:     keys,
		ai:       guesser,
	}
}

func jpegEncode(w io.Writer, img image.Image) error { return jpeg.Encode(w, img, nil) }
func pngEncode(w io.Writer, img image.Image) error  { return png.Encode(w, img) }

func writeImage(t *testing.T, path string, w, h int, encode func(io.Writer, image.Image) error) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func (f *fixture) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// -----------------------------------------------------------------------------
// Pages & listings
// -----------------------------------------------------------------------------

func TestHandler_IndexAndStatic(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.MimeHTML, rec.Header().Get(config.HeaderContentType))
	assert.Contains(t, rec.Body.String(), "Photo Time Sleuth")

	rec = f.do(http.MethodGet, "/static/app.js", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/get_age_date")
}

func TestHandler_RequestID(t *testing.T) {
	f := newFixture(t)

	first := f.do(http.MethodGet, "/api/folder_path", "")
	second := f.do(http.MethodGet, "/api/folder_path", "", config.HeaderRequestID, "client-chosen")

	id := first.Header().Get(config.HeaderRequestID)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, "client-chosen", second.Header().Get(config.HeaderRequestID))
	assert.NotEqual(t, id, second.Header().Get(config.HeaderRequestID))
}

func TestHandler_FolderPath(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/folder_path", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.dir, decodeBody(t, rec)["folder_path"])

	f.srv.Settings.PhotoDir = ""
	rec = f.do(http.MethodGet, "/api/folder_path", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Photo directory is not configured", decodeBody(t, rec)["error"])
}

func TestHandler_Photos(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/photos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"beach.jpg", "scan.png"}, decodeBody(t, rec)["photos"])

	f.srv.Photos = photo.NewDirStore(filepath.Join(f.dir, "missing"))
	rec = f.do(http.MethodGet, "/api/photos", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid directory", decodeBody(t, rec)["error"])
}

func TestHandler_NamesAndBdays(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/names_and_bdays", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		People []map[string]string `json:"names_and_bdays"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []map[string]string{
		{"name": "Alice", "bday": "2000-05-10"},
		{"name": "Bob", "bday": "1990-12-25"},
	}, body.People)
}

func TestHandler_NamesAndBdays_BadRegistry(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.bdayFile, []byte("Alice 2000-05-10\n"), 0o644))

	rec := f.do(http.MethodGet, "/api/names_and_bdays", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg, _ := decodeBody(t, rec)["error"].(string)
	assert.Contains(t, msg, "not formatted correctly")
	assert.Contains(t, msg, "line 1")
}

// -----------------------------------------------------------------------------
// Age-based estimation
// -----------------------------------------------------------------------------

func TestHandler_GetAgeDate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{"Numeric age", `{"person_name":"Alice","age":5,"season":"birthday"}`, http.StatusOK, "estimated_date", "2005-05-10"},
		{"String age", `{"person_name":"Alice","age":"5","season":"birthday"}`, http.StatusOK, "estimated_date", "2005-05-10"},
		{"Age zero", `{"person_name":"Bob","age":0,"season":"christmas"}`, http.StatusOK, "estimated_date", "1990-12-25"},
		{"Malformed JSON", `{"person_name":`, http.StatusBadRequest, "error", "Malformed request"},
		{"Empty name", `{"person_name":" ","age":5,"season":"summer"}`, http.StatusBadRequest, "error", "Invalid person name"},
		{"Traversal name", `{"person_name":"../etc","age":5,"season":"summer"}`, http.StatusBadRequest, "error", "Invalid person name"},
		{"Negative age", `{"person_name":"Alice","age":-1,"season":"summer"}`, http.StatusBadRequest, "error", "Invalid age"},
		{"Fractional age", `{"person_name":"Alice","age":2.5,"season":"summer"}`, http.StatusBadRequest, "error", "Invalid age"},
		{"Missing age", `{"person_name":"Alice","season":"summer"}`, http.StatusBadRequest, "error", "Invalid age"},
		{"Unknown season", `{"person_name":"Alice","age":5,"season":"monsoon"}`, http.StatusBadRequest, "error", "Invalid season"},
		{"Unknown person", `{"person_name":"Carol","age":5,"season":"summer"}`, http.StatusNotFound, "error", "Person not found in the birthday file"},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/get_age_date", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantValue, decodeBody(t, rec)[tt.wantKey])
		})
	}
}

func TestHandler_GetAgeDate_Localized(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/get_age_date",
		`{"person_name":"Alice","age":-3,"season":"summer"}`,
		config.HeaderAcceptLanguage, "fr-CA,fr;q=0.9,en;q=0.5")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Âge invalide", decodeBody(t, rec)["error"])
}

func TestHandler_GetAgeDate_ImpossibleBirthday(t *testing.T) {
	f := newFixture(t)
	// The registry only range-checks days, so Feb 30 loads but cannot be estimated.
	require.NoError(t, os.WriteFile(f.bdayFile, []byte("Zed\t2021-02-30\n"), 0o644))

	rec := f.do(http.MethodPost, "/api/get_age_date", `{"person_name":"Zed","age":1,"season":"summer"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid birthday or age", decodeBody(t, rec)["error"])
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		raw    string
		want   int
		wantOK bool
	}{
		{`5`, 5, true},
		{`0`, 0, true},
		{`200`, 200, true},
		{`"7"`, 7, true},
		{`" 12 "`, 12, true},
		{`-1`, 0, false},
		{`201`, 0, false},
		{`2.5`, 0, false},
		{`"abc"`, 0, false},
		{`null`, 0, false},
		{`true`, 0, false},
		{``, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseAge(json.RawMessage(tt.raw))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// -----------------------------------------------------------------------------
// Photo metadata
// -----------------------------------------------------------------------------

func TestHandler_UpdateMetadataThenPhotoDate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/photo_date?image_path=beach.jpg", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No date found in the photo metadata", decodeBody(t, rec)["error"])

	rec = f.do(http.MethodPost, "/api/update_metadata", `{"image_path":"beach.jpg","new_date":"2001-02-03"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Date of beach.jpg updated", decodeBody(t, rec)["message"])

	rec = f.do(http.MethodGet, "/api/photo_date?image_path=beach.jpg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2001:02:03 00:00:00", decodeBody(t, rec)["date"])

	rec = f.do(http.MethodPost, "/api/update_metadata", `{"image_path":"beach.jpg","new_date":"2002:03:04 05:06:07"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/photo_date?image_path=beach.jpg", "")
	assert.Equal(t, "2002:03:04 05:06:07", decodeBody(t, rec)["date"])
}

func TestHandler_UpdateMetadata_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{"Malformed JSON", `nope`, http.StatusBadRequest, "Malformed request"},
		{"Empty path", `{"image_path":"","new_date":"2001-02-03"}`, http.StatusBadRequest, "Invalid image path"},
		{"Traversal", `{"image_path":"../beach.jpg","new_date":"2001-02-03"}`, http.StatusBadRequest, "Invalid image path"},
		{"Missing file", `{"image_path":"gone.jpg","new_date":"2001-02-03"}`, http.StatusNotFound, "Image not found"},
		{"Bad date", `{"image_path":"beach.jpg","new_date":"yesterday"}`, http.StatusBadRequest, "Invalid date format. Use 'YYYY:MM:DD HH:MM:SS'"},
		{"PNG", `{"image_path":"scan.png","new_date":"2001-02-03"}`, http.StatusInternalServerError, "Only JPEG photos can be updated"},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/update_metadata", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decodeBody(t, rec)["error"])
		})
	}
}

func TestHandler_PhotoDate_InvalidPath(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/photo_date?image_path=..%2Fsecret.jpg", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/photo_date?image_path=gone.jpg", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNormalizeExifDate(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"2001:02:03 04:05:06", "2001:02:03 04:05:06", true},
		{" 2001:02:03 04:05:06 ", "2001:02:03 04:05:06", true},
		{"2001-02-03", "2001:02:03 00:00:00", true},
		{"2001:02:03", "2001:02:03 00:00:00", true},
		{"2001-2-3", "", false},
		{"2001-02-30", "", false},
		{"2001:02:03 25:00:00", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeExifDate(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// -----------------------------------------------------------------------------
// AI date guess & API key
// -----------------------------------------------------------------------------

func TestHandler_AIDate(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(k *MockKeys, g *MockGuesser)
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{
			name: "Success",
			setup: func(k *MockKeys, g *MockGuesser) {
				k.On("Load").Return("sk-test", nil)
				g.On("EstimateDate", mock.Anything, mock.Anything, config.MimeJPEG, "sk-test").Return("1998-07-04", nil)
			},
			wantStatus: http.StatusOK,
			wantKey:    "date",
			wantValue:  "1998-07-04",
		},
		{
			name: "No key",
			setup: func(k *MockKeys, _ *MockGuesser) {
				k.On("Load").Return("", secret.ErrNoKey)
			},
			wantStatus: http.StatusPreconditionFailed,
			wantKey:    "error",
			wantValue:  "No OpenAI API key is configured",
		},
		{
			name: "No date in reply",
			setup: func(k *MockKeys, g *MockGuesser) {
				k.On("Load").Return("sk-test", nil)
				g.On("EstimateDate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", ai.ErrNoDateInReply)
			},
			wantStatus: http.StatusNotFound,
			wantKey:    "error",
			wantValue:  "No date found in the photo metadata",
		},
		{
			name: "Service failure",
			setup: func(k *MockKeys, g *MockGuesser) {
				k.On("Load").Return("sk-test", nil)
				g.On("EstimateDate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", ai.ErrRequest)
			},
			wantStatus: http.StatusBadGateway,
			wantKey:    "error",
			wantValue:  "The AI service could not estimate a date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f.keys, f.ai)

			rec := f.do(http.MethodPost, "/api/ai_date", `{"image_path":"beach.jpg"}`)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantValue, decodeBody(t, rec)[tt.wantKey])
			f.keys.AssertExpectations(t)
			f.ai.AssertExpectations(t)
		})
	}
}

func TestHandler_AIDate_SendsPhotoBytes(t *testing.T) {
	f := newFixture(t)
	want, err := os.ReadFile(filepath.Join(f.dir, "scan.png"))
	require.NoError(t, err)

	f.keys.On("Load").Return("sk-test", nil)
	f.ai.On("EstimateDate", mock.Anything, want, config.MimePNG, "sk-test").Return("2010-10-10", nil)

	rec := f.do(http.MethodPost, "/api/ai_date", `{"image_path":"scan.png"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	f.ai.AssertExpectations(t)
}

func TestHandler_AIDate_BadPathSkipsService(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/ai_date", `{"image_path":"../beach.jpg"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.keys.AssertNotCalled(t, "Load")
	f.ai.AssertNotCalled(t, "EstimateDate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_APIKey(t *testing.T) {
	t.Run("Has key", func(t *testing.T) {
		f := newFixture(t)
		f.keys.On("Load").Return("sk-test", nil)

		rec := f.do(http.MethodGet, "/api/api_key", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["has_key"])
	})

	t.Run("Backend failure reads as no key", func(t *testing.T) {
		f := newFixture(t)
		f.keys.On("Load").Return("", errors.New("keyring locked"))

		rec := f.do(http.MethodGet, "/api/api_key", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, decodeBody(t, rec)["has_key"])
	})

	t.Run("Save", func(t *testing.T) {
		f := newFixture(t)
		f.keys.On("Save", "sk-new").Return(nil)

		rec := f.do(http.MethodPost, "/api/api_key", `{"api_key":"sk-new"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "API key saved", decodeBody(t, rec)["message"])
		f.keys.AssertExpectations(t)
	})

	t.Run("Save empty", func(t *testing.T) {
		f := newFixture(t)
		f.keys.On("Save", "").Return(secret.ErrKeyEmpty)

		rec := f.do(http.MethodPost, "/api/api_key", `{"api_key":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Save failure", func(t *testing.T) {
		f := newFixture(t)
		f.keys.On("Save", "sk-new").Return(errors.New("disk full"))

		rec := f.do(http.MethodPost, "/api/api_key", `{"api_key":"sk-new"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal error", decodeBody(t, rec)["error"])
	})
}

// -----------------------------------------------------------------------------
// Photo files
// -----------------------------------------------------------------------------

func TestHandler_PhotoFile(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/photos/beach.jpg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	original, err := os.ReadFile(filepath.Join(f.dir, "beach.jpg"))
	require.NoError(t, err)
	assert.Equal(t, original, rec.Body.Bytes())

	rec = f.do(http.MethodGet, "/photos/scan.png?width=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.MimeJPEG, rec.Header().Get(config.HeaderContentType))
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Width)
	assert.Equal(t, 5, cfg.Height)

	rec = f.do(http.MethodGet, "/photos/gone.jpg?width=10", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/photos/..%2Fbdays.txt", "")
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

// -----------------------------------------------------------------------------
// Calendar feed
// -----------------------------------------------------------------------------

func TestHandler_Calendar(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/birthdays.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.MimeTextCalendar, rec.Header().Get(config.HeaderContentType))
	assert.Equal(t, config.MimeNoSniff, rec.Header().Get(config.HeaderXContentType))
	assert.Contains(t, rec.Header().Get(config.HeaderCacheControl), "no-cache")
	assert.NotEmpty(t, rec.Header().Get(config.HeaderLastModified))
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, rec.Body.String(), "Alice")

	etag := rec.Header().Get(config.HeaderETag)
	require.NotEmpty(t, etag)

	rec = f.do(http.MethodGet, "/api/birthdays.ics", "", config.HeaderIfNoneMatch, etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	rec = f.do(http.MethodHead, "/api/birthdays.ics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, etag, rec.Header().Get(config.HeaderETag))
	assert.Empty(t, rec.Body.Bytes())
}

func TestHandler_Calendar_ConditionalRequests(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/birthdays.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get(config.HeaderETag)
	lastMod := rec.Header().Get(config.HeaderLastModified)
	modTime, err := time.Parse(http.TimeFormat, lastMod)
	require.NoError(t, err)

	tests := []struct {
		name    string
		headers []string
		want    int
	}{
		{"Same Last-Modified", []string{config.HeaderIfModSince, lastMod}, http.StatusNotModified},
		{"Later client copy", []string{config.HeaderIfModSince, modTime.Add(time.Hour).Format(http.TimeFormat)}, http.StatusNotModified},
		{"Older client copy", []string{config.HeaderIfModSince, modTime.Add(-time.Hour).Format(http.TimeFormat)}, http.StatusOK},
		{"Unparsable date", []string{config.HeaderIfModSince, "yesterday"}, http.StatusOK},
		{"Stale ETag wins over date", []string{config.HeaderIfNoneMatch, `"stale"`, config.HeaderIfModSince, lastMod}, http.StatusOK},
		{"Matching ETag", []string{config.HeaderIfNoneMatch, etag}, http.StatusNotModified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodGet, "/api/birthdays.ics", "", tt.headers...)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNotModified {
				assert.Empty(t, rec.Body.Bytes())
			} else {
				assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")
			}
		})
	}
}

func TestHandler_Calendar_RebuildsWhenRegistryChanges(t *testing.T) {
	f := newFixture(t)

	first := f.do(http.MethodGet, "/api/birthdays.ics", "")
	require.Equal(t, http.StatusOK, first.Code)
	cached := f.srv.calendar.Load()
	require.NotNil(t, cached)

	second := f.do(http.MethodGet, "/api/birthdays.ics", "")
	assert.Same(t, cached, f.srv.calendar.Load(), "unchanged registry must reuse the cache")
	assert.Equal(t, first.Header().Get(config.HeaderETag), second.Header().Get(config.HeaderETag))

	require.NoError(t, os.WriteFile(f.bdayFile, []byte(testRegistry+"Carol\t1975-03-03\n"), 0o644))

	third := f.do(http.MethodGet, "/api/birthdays.ics", "")
	require.Equal(t, http.StatusOK, third.Code)
	assert.NotEqual(t, first.Header().Get(config.HeaderETag), third.Header().Get(config.HeaderETag))
	assert.Contains(t, third.Body.String(), "Carol")
}

func TestHandler_Calendar_BadRegistry(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.bdayFile, []byte("broken\n"), 0o644))

	rec := f.do(http.MethodGet, "/api/birthdays.ics", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestServer_CalendarRace hammers the feed from many goroutines while the
// registry changes underneath. Run with -race.
func TestServer_CalendarRace(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	end := time.Now().Add(300 * time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		extra := ""
		for time.Now().Before(end) {
			extra += "X\t2001-01-01\n"
			_ = os.WriteFile(f.bdayFile, []byte(testRegistry+extra), 0o644)
			time.Sleep(time.Millisecond)
		}
	}()

	for r := 0; r < 10; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) {
				rec := f.do(http.MethodGet, "/api/birthdays.ics", "")
				// A reader can catch the file mid-write; anything but 200/400 is a bug.
				if rec.Code != http.StatusOK && rec.Code != http.StatusBadRequest {
					t.Errorf("unexpected status during race test: %d", rec.Code)
				}
			}
		}()
	}

	wg.Wait()
}

// -----------------------------------------------------------------------------
// Network helpers & lifecycle
// -----------------------------------------------------------------------------

func TestPickLANAddr(t *testing.T) {
	ipNet := func(s string) net.Addr {
		return &net.IPNet{IP: net.ParseIP(s), Mask: net.CIDRMask(24, 32)}
	}

	tests := []struct {
		name  string
		addrs []net.Addr
		want  string
	}{
		{"First LAN address wins", []net.Addr{ipNet("127.0.0.1"), ipNet("10.0.0.4"), ipNet("192.168.1.20"), ipNet("192.168.2.2")}, "192.168.1.20"},
		{"IPv6 ignored", []net.Addr{ipNet("fe80::1"), ipNet("192.168.0.9")}, "192.168.0.9"},
		{"Non IPNet skipped", []net.Addr{&net.IPAddr{IP: net.ParseIP("192.168.5.5")}}, config.LocalhostName},
		{"No LAN address", []net.Addr{ipNet("10.1.2.3")}, config.LocalhostName},
		{"Empty", nil, config.LocalhostName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickLANAddr(tt.addrs))
		})
	}
}

func TestServeURL(t *testing.T) {
	url := ServeURL(5000)
	assert.True(t, strings.HasPrefix(url, "http://"))
	assert.True(t, strings.HasSuffix(url, ":5000"))
}

// TestServer_Lifecycle runs a real listener and checks graceful shutdown.
func TestServer_Lifecycle(t *testing.T) {
	f := newFixture(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	url := "http://" + ln.Addr().String() + "/api/folder_path"

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- f.srv.Serve(ctx, ln)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 50*time.Millisecond, "server failed to serve in time")

	cancel()

	select {
	case err := <-errChan:
		assert.NoError(t, err, "server should shut down gracefully")
	case <-time.After(5 * time.Second):
		t.Fatal("server shutdown timed out")
	}
}

func TestServer_StartFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	f := newFixture(t)
	f.srv.Settings.BindAddr = "127.0.0.1"
	f.srv.Settings.Port = ln.Addr().(*net.TCPAddr).Port

	err = f.srv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.ErrServerStartup)
}

package server

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tartampluch/photo-time-sleuth/internal/config"
)

// cacheItem stores the rendered calendar and its metadata for HTTP caching.
type cacheItem struct {
	source       string // registry state the feed was rendered from
	data         []byte
	etag         string
	lastModified string // RFC1123 format required by HTTP headers
}

// calendarSource identifies the registry content and the current day, which
// together determine the feed.
func (s *Server) calendarSource() string {
	day := s.Calendar.Clock.Now().Format(config.DateFormatISO)
	info, err := os.Stat(s.Settings.BdayFile)
	if err != nil {
		return fmt.Sprintf(config.FormatCalendarKey, day, int64(0), int64(-1))
	}
	return fmt.Sprintf(config.FormatCalendarKey, day, info.ModTime().UnixNano(), info.Size())
}

// renderCalendar returns the cached feed, rebuilding it when the registry or
// the day changed.
func (s *Server) renderCalendar(w http.ResponseWriter, r *http.Request) (*cacheItem, bool) {
	source := s.calendarSource()
	if item := s.calendar.Load(); item != nil && item.source == source {
		return item, true
	}

	records, ok := s.loadRegistry(w, r)
	if !ok {
		return nil, false
	}
	data, err := s.Calendar.Export(records)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, config.TKeyErrInternal, nil, err)
		return nil, false
	}

	hash := sha256.Sum256(data)
	item := &cacheItem{
		source:       source,
		data:         data,
		etag:         fmt.Sprintf(config.FormatETag, hex.EncodeToString(hash[:])),
		lastModified: time.Now().UTC().Format(http.TimeFormat),
	}
	s.calendar.Store(item)

	slog.Debug(config.MsgCacheUpdated,
		config.LogKeyComponent, config.CompServer,
		config.LogKeySizeBytes, len(data),
		config.LogKeyETag, item.etag,
	)
	return item, true
}

// handleCalendar serves the birthdays feed with ETag and Last-Modified support.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	item, ok := s.renderCalendar(w, r)
	if !ok {
		return
	}

	w.Header().Set(config.HeaderContentType, config.MimeTextCalendar)
	w.Header().Set(config.HeaderXContentType, config.MimeNoSniff)
	w.Header().Set(config.HeaderCacheControl, config.CacheControlNone)
	w.Header().Set(config.HeaderETag, item.etag)
	w.Header().Set(config.HeaderLastModified, item.lastModified)

	if notModified(r, item) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if r.Method == http.MethodGet {
		if _, err := w.Write(item.data); err != nil {
			slog.Error(config.ErrWriteResp,
				config.LogKeyComponent, config.CompServer,
				config.LogKeyError, err,
			)
		}
	}
}

// notModified reports whether the client copy is current. If-None-Match takes
// precedence; If-Modified-Since is only consulted without it.
func notModified(r *http.Request, item *cacheItem) bool {
	if match := r.Header.Get(config.HeaderIfNoneMatch); match != "" {
		return match == item.etag
	}

	since := r.Header.Get(config.HeaderIfModSince)
	if since == "" {
		return false
	}
	clientTime, err := time.Parse(http.TimeFormat, since)
	if err != nil {
		return false
	}
	serverTime, err := time.Parse(http.TimeFormat, item.lastModified)
	if err != nil {
		return false
	}
	return !serverTime.After(clientTime)
}

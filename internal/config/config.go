package config

import (
	"io/fs"
	"time"
)

// -----------------------------------------------------------------------------
// Build Information
// -----------------------------------------------------------------------------

// Build variables are injected via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent identifies the HTTP client.
var UserAgent = "Photo-Time-Sleuth/" + Version

// -----------------------------------------------------------------------------
// Application Constants
// -----------------------------------------------------------------------------

const (
	AppName             = "Photo Time Sleuth"
	AppID               = "com.github.tartampluch.photo-time-sleuth"
	KeyringService      = "com.github.tartampluch.photo-time-sleuth"
	KeyringUser         = "openai"
	LogFileName         = "app.log"
	LogFilePrevName     = "app.prev.log"
	DefaultBdayFileName = "bdays.txt"
	APIKeyFileName      = "openai_key.txt"
	DefaultConfigPath   = "~/.config/photo-time-sleuth/config.toml"
)

// -----------------------------------------------------------------------------
// Exit Codes
// -----------------------------------------------------------------------------

const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// -----------------------------------------------------------------------------
// System & File Permissions
// -----------------------------------------------------------------------------

const (
	// FilePermUserRW represents -rw------- (Read/Write for owner only).
	// Used for sensitive files like logs and the API key file.
	FilePermUserRW fs.FileMode = 0600

	// FilePermShared represents -rw-r--r--, used for the sample registry.
	FilePermShared fs.FileMode = 0644

	// DirPermUserRWX represents drwx------ (Read/Write/Exec for owner only).
	DirPermUserRWX fs.FileMode = 0700

	// ChannelBufferSize defines the standard buffer size for internal signaling channels.
	ChannelBufferSize = 1
)

// -----------------------------------------------------------------------------
// CLI Commands, Flags & Descriptions
// -----------------------------------------------------------------------------

const (
	CmdRootUse       = "photo-time-sleuth"
	CmdRootShort     = "Browse photos and fix their capture dates from birthdays"
	CmdServeUse      = "serve"
	CmdServeShort    = "Start the local web application (default)"
	CmdEstimateUse   = "estimate <birthday> <age> <season>"
	CmdEstimateShort = "Estimate a date from a birthday, an age and a season"
	CmdCheckUse      = "check-registry <file>"
	CmdCheckShort    = "Validate a birthday registry file"

	FlagVersion   = "version"
	FlagDebug     = "debug"
	FlagDirectory = "directory"
	FlagBdayFile  = "bday-file"
	FlagConfig    = "config"
	FlagPort      = "port"
	FlagHeadless  = "headless"

	FlagDescVersion   = "Show application version and exit"
	FlagDescDebug     = "Enable debug logging to stdout"
	FlagDescDirectory = "Path to the directory containing photos (defaults to the working directory)"
	FlagDescBdayFile  = "Path to the birthday registry (defaults to bdays.txt in the photo directory)"
	FlagDescConfig    = "Path to the TOML settings file"
	FlagDescPort      = "Port of the web application"
	FlagDescHeadless  = "Serve without opening the desktop window"

	MsgVersionOutput = "%s version %s (%s/%s)\n"
	MsgRegistryOK    = "%s: %d entries\n"
	MsgServingOn     = "Serving %s on %s\n"
)

// -----------------------------------------------------------------------------
// Default Values & Business Logic
// -----------------------------------------------------------------------------

const (
	DefaultPort          = 5000
	DefaultBindAddr      = "0.0.0.0"
	DefaultLanguage      = "en"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o"
	KeyBackendKeyring    = "keyring"
	KeyBackendFile       = "file"
	DefaultKeyBackend    = KeyBackendKeyring
	LANAddrPrefix        = "192.168."
	LocalhostName        = "localhost"

	MinPort = 1
	MaxPort = 65535

	// Registry bounds.
	MinRegistryYear = 1900
	MaxRegistryYear = 2100
	MinMonth        = 1
	MaxMonth        = 12
	MinDay          = 1
	MaxDay          = 31

	// A year is counted as 365.25 days: 365 whole days plus a quarter day.
	DaysPerYear        = 365
	HoursPerQuarterDay = 6
	QuarterDaysPerDay  = 4

	RegistryComment   = "#"
	RegistrySeparator = "\t"
	DateSeparator     = "-"
	DateParts         = 3
	RegistryFields    = 2
)

// SupportedLanguages defines the list of available UI languages (ISO 639-1).
var SupportedLanguages = []string{"en", "fr"}

// PhotoExtensions lists the (lowercase) suffixes shown in the photo list.
var PhotoExtensions = []string{"jpg", "jpeg", "png"}

// -----------------------------------------------------------------------------
// Date Formats
// -----------------------------------------------------------------------------

const (
	// DateFormatISO is strict: two-digit month and day.
	DateFormatISO = "2006-01-02"
	// DateFormatISOLoose accepts one or two digit month and day.
	DateFormatISOLoose = "2006-1-2"
	DateFormatExif     = "2006:01:02 15:04:05"
	DateFormatExifDay  = "2006:01:02"
	ExifMidnightSuffix = " 00:00:00"

	// vCard BDAY layouts that carry a year.
	DateFormatFullBasic = "20060102"
	DateFormatRFC3339   = time.RFC3339
	DateFormatFullT     = "2006-01-02T15:04:05Z"
)

// -----------------------------------------------------------------------------
// Photos, EXIF & Thumbnails
// -----------------------------------------------------------------------------

const (
	ThumbnailQuality  = 85
	MaxThumbnailSide  = 4096
	ExifDateLength    = 19 // "YYYY:MM:DD HH:MM:SS"
	TempFilePattern   = ".pts-*.tmp"
	ChangeLogFileName = "photo_changes.log"

	// IFD paths and tag names understood by the EXIF builder.
	ExifIFDRoot              = "IFD"
	ExifIFDExif              = "IFD/Exif"
	ExifTagDateTime          = "DateTime"
	ExifTagDateTimeOriginal  = "DateTimeOriginal"
	ExifTagDateTimeDigitized = "DateTimeDigitized"
)

// -----------------------------------------------------------------------------
// AI Date Guess
// -----------------------------------------------------------------------------

const (
	OpenAIKeyEnv   = "OPENAI_API_KEY"
	AIMaxTokens    = 20
	AIPrompt       = "Estimate the date this photo was taken. Respond only with a date in YYYY-MM-DD format."
	FormatDataURL  = "data:%s;base64,%s"
	MaxImageUpload = 20 * 1024 * 1024
	MaxAgeYears    = 200
)

// -----------------------------------------------------------------------------
// Standards: iCalendar & vCard
// -----------------------------------------------------------------------------

const (
	ICalVersion = "2.0"
	ICalProdid  = "-//Photo Time Sleuth//Registry//EN"
	ICalCalName = "Birthdays"
	ICalMethod  = "PUBLISH"
	ICalScale   = "GREGORIAN"
	ICalDomain  = "phototimesleuth"

	PropUID        = "UID"
	PropSummary    = "SUMMARY"
	PropDTStart    = "DTSTART"
	PropDTStamp    = "DTSTAMP"
	PropVersion    = "VERSION"
	PropProdid     = "PRODID"
	PropXWRCalName = "X-WR-CALNAME"
	PropCalScale   = "CALSCALE"
	PropMethod     = "METHOD"

	VCardBDAY = "BDAY"
	VCardFN   = "FN"

	UIDSalt         = "photo-time-sleuth-v1-"
	UIDHashLength   = 16
	FormatHashInput = "%s|%s|%s"
	FormatUID       = "%s-%d@%s"
	FormatSummary   = "Birthday: %s"

	ExtVCF   = ".vcf"
	ExtVCard = ".vcard"
	ExtPNG   = ".png"

	// StubVCalendar is the minimal valid iCalendar object used when the registry is empty.
	StubVCalendar = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + ICalProdid + "\r\nEND:VCALENDAR\r\n"
)

// -----------------------------------------------------------------------------
// Network & Timeouts
// -----------------------------------------------------------------------------

const (
	HTTPTimeout        = 60 * time.Second
	ShutdownTimeout    = 5 * time.Second
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 90 * time.Second
	ServerIdleTimeout  = 60 * time.Second
	MaxRequestBody     = 1 * 1024 * 1024
	AddrSeparator      = ":"
	FormatServeURL     = "http://%s:%d"
)

// Routes use Go 1.22 ServeMux patterns.
const (
	RouteIndex          = "GET /{$}"
	RouteStatic         = "GET /static/"
	RouteFolderPath     = "GET /api/folder_path"
	RoutePhotos         = "GET /api/photos"
	RouteNamesAndBdays  = "GET /api/names_and_bdays"
	RouteGetAgeDate     = "POST /api/get_age_date"
	RoutePhotoDate      = "GET /api/photo_date"
	RouteUpdateMetadata = "POST /api/update_metadata"
	RouteAIDate         = "POST /api/ai_date"
	RouteGetAPIKey      = "GET /api/api_key"
	RouteSaveAPIKey     = "POST /api/api_key"
	RouteCalendar       = "GET /api/birthdays.ics"
	RoutePhotoFile      = "GET /photos/{file}"

	PathParamFile   = "file"
	QueryWidth      = "width"
	QueryHeight     = "height"
	QueryImagePath  = "image_path"
	StaticDir       = "web"
	IndexFile       = "web/index.html"
	PathTraversal   = ".."
	PathSeparator   = "/"
	PathSeparatorNT = "\\"
)

// -----------------------------------------------------------------------------
// HTTP Headers & MIME Types
// -----------------------------------------------------------------------------

const (
	HeaderContentType    = "Content-Type"
	HeaderCacheControl   = "Cache-Control"
	HeaderETag           = "ETag"
	HeaderXContentType   = "X-Content-Type-Options"
	HeaderUserAgent      = "User-Agent"
	HeaderIfNoneMatch    = "If-None-Match"
	HeaderIfModSince     = "If-Modified-Since"
	HeaderAcceptLanguage = "Accept-Language"
	HeaderRequestID      = "X-Request-ID"
	HeaderLastModified   = "Last-Modified"
	HeaderContentLength  = "Content-Length"

	MimeJSON         = "application/json; charset=utf-8"
	MimeHTML         = "text/html; charset=utf-8"
	MimeJPEG         = "image/jpeg"
	MimePNG          = "image/png"
	MimeTextCalendar = "text/calendar; charset=utf-8"
	MimeNoSniff      = "nosniff"
	CacheControlNone = "private, no-cache"

	// FormatETag expects a string argument.
	FormatETag = `"%s"`
	// FormatCalendarKey is day|registry mtime|registry size.
	FormatCalendarKey = "%s|%d|%d"
)

// -----------------------------------------------------------------------------
// Error Messages (Technical/Logs)
// -----------------------------------------------------------------------------

const (
	ErrInvalidDate      = "invalid date"
	ErrUnknownAnchor    = "unknown season anchor"
	ErrRegistryFormat   = "registry format error"
	ErrRegistryRead     = "failed to read registry"
	ErrRegistryWrite    = "failed to write sample registry"
	ErrICalEncode       = "failed to encode iCalendar data"
	ErrServerStartup    = "server startup failed"
	ErrServerShutdown   = "server shutdown failed"
	ErrPortRange        = "server port must be between 1 and 65535"
	ErrDirMissing       = "photo directory does not exist or is not accessible"
	ErrPathEmpty        = "path is empty"
	ErrHomeDir          = "resolve home dir"
	ErrConfigOpen       = "open config"
	ErrConfigRead       = "read config"
	ErrConfigParse      = "parse config"
	ErrLogFile          = "failed to open log file"
	ErrCacheDir         = "could not determine user cache dir"
	ErrCreateDir        = "could not create app cache dir"
	ErrAppFailed        = "application failed unexpectedly"
	ErrWriteResp        = "failed to write response body"
	ErrLocalesAccess    = "failed to access embedded locales"
	ErrLocaleLoad       = "failed to load locale file"
	ErrInvalidName      = "invalid photo name"
	ErrPhotoNotFound    = "photo not found"
	ErrNoDate           = "no date in photo metadata"
	ErrUnsupported      = "unsupported image format"
	ErrCorruptExif      = "corrupt EXIF data"
	ErrChangeLog        = "failed to write photo change log"
	ErrBadExifDate      = "EXIF date must be YYYY:MM:DD HH:MM:SS"
	ErrPhotoDirRead     = "failed to read photo directory"
	ErrPhotoRead        = "failed to read photo"
	ErrPhotoWrite       = "failed to write photo"
	ErrImageDecode      = "failed to decode image"
	ErrImageEncode      = "failed to encode thumbnail"
	ErrNoKey            = "no API key stored"
	ErrKeyRead          = "failed to read API key"
	ErrKeyWrite         = "failed to store API key"
	ErrKeyEmpty         = "API key is empty"
	ErrAIRequest        = "AI request failed"
	ErrAIStatus         = "AI service returned unexpected status"
	ErrAIDecode         = "failed to decode AI response"
	ErrImageTooLarge    = "image too large to send"
	ErrNoDateInReply    = "AI reply contains no date"
	ErrTrayNotSupported = "system tray not supported on this platform/driver"
	ErrAgeArg           = "age must be a whole number between 0 and 200"
)

// -----------------------------------------------------------------------------
// Registry Format Errors (user-facing, carry the offending value)
// -----------------------------------------------------------------------------

const (
	RuleMissingTab  = "missing tab separator"
	RuleFieldCount  = "field count"
	RuleEmptyName   = "empty name"
	RuleDateParts   = "date parts"
	RuleYearRange   = "year range"
	RuleMonthRange  = "month range"
	RuleDayRange    = "day range"
	MsgMissingTab   = "It looks like the bday file is not formatted correctly. Make sure each line has a tab between the name and the date."
	MsgFieldCount   = "Make sure each line has exactly one tab between the name and the date (got %q)."
	MsgEmptyName    = "A line in the bday file has a date (%s) but no name."
	MsgDateParts    = "Invalid date in bday file. Make sure the date (%s) is written as YYYY-MM-DD."
	MsgYearRange    = "Invalid year in bday file. Make sure the year (%d) is between 1900 and 2100. Also make sure that the order is correct (e.g. YYYY-MM-DD)."
	MsgMonthRange   = "Invalid month in bday file. Make sure the month (%d) is between 1 and 12. Also make sure that the order is correct (e.g. YYYY-MM-DD)."
	MsgDayRange     = "Invalid day in bday file. Make sure the day (%d) is between 1 and 31. Also make sure that the order is correct (e.g. YYYY-MM-DD)."
	FormatLineError = "line %d: %s"
)

// DefaultRegistry is written next to the photos when no registry exists yet.
const DefaultRegistry = `# Birthday registry for Photo Time Sleuth.
# One person per line: the name, a single TAB, then the birthday as YYYY-MM-DD.
# Lines starting with # are ignored.
Jane Doe	1990-04-12
John Doe	1988-11-03
`

// -----------------------------------------------------------------------------
// Log Messages
// -----------------------------------------------------------------------------

const (
	MsgAppStop        = "Application stopped gracefully"
	MsgAppStarting    = "Starting application"
	MsgSettingsReady  = "Settings resolved"
	MsgCtxCancel      = "Context cancelled, shutting down UI"
	MsgLogReady       = "Log file ready"
	MsgServerListen   = "HTTP server listening"
	MsgServerStop     = "Shutting down HTTP server..."
	MsgRequest        = "HTTP request"
	MsgRequestFailed  = "HTTP request failed"
	MsgRegistryLoaded = "Registry loaded"
	MsgRegistryMiss   = "Registry file not found, using empty registry"
	MsgRegistryMade   = "Sample registry created"
	MsgSkippedCard    = "Skipping malformed vCard"
	MsgSkippedDate    = "Skipping invalid date format"
	MsgCalendarBuilt  = "Calendar export generated"
	MsgDateChanged    = "SUCCESS: photo date updated"
	MsgDateFailed     = "ERROR: failed to update photo date"
	MsgDateReadFailed = "ERROR: failed to read photo date"
	MsgExifInserted   = "Photo had no EXIF segment, inserted one"
	MsgEstimated      = "Date estimated"
	MsgAIRequest      = "Requesting AI date estimate"
	MsgAIReply        = "AI date estimate received"
	MsgKeyFallback    = "Keyring unavailable, falling back to key file"
	MsgKeySaved       = "API key stored"
	MsgCacheUpdated   = "Calendar cache updated"
	MsgLocaleSkip     = "Skipping non-locale file"
	MsgLocaleBadName  = "Skipping malformed locale filename"
	MsgLocaleLoaded   = "Locale loaded successfully"
	MsgTransMissing   = "Missing translation key"
	MsgLogWarning     = "Warning: %s at %s: %v\n"
	MsgOpenBrowser    = "Opening browser"
	LogMsgOpenWin     = "Opening registry window"
	LogMsgSorted      = "Registry table sorted"
)

// -----------------------------------------------------------------------------
// Translation Keys (I18n)
// -----------------------------------------------------------------------------

const (
	// HTTP error bodies.
	TKeyErrInvalidImagePath = "err_invalid_image_path"
	TKeyErrDirNotConfigured = "err_dir_not_configured"
	TKeyErrInvalidDirectory = "err_invalid_directory"
	TKeyErrImageNotFound    = "err_image_not_found"
	TKeyErrInvalidDateFmt   = "err_invalid_date_format"
	TKeyErrInvalidPerson    = "err_invalid_person_name"
	TKeyErrInvalidAge       = "err_invalid_age"
	TKeyErrInvalidSeason    = "err_invalid_season"
	TKeyErrPersonNotFound   = "err_person_not_found"
	TKeyErrInvalidBirthday  = "err_invalid_birthday"
	TKeyErrRegistryFormat   = "err_registry_format" // Requires Detail
	TKeyErrNoDate           = "err_no_date"
	TKeyErrNoAPIKey         = "err_no_api_key"
	TKeyErrAIFailed         = "err_ai_failed"
	TKeyErrUnsupported      = "err_unsupported_format"
	TKeyErrBadRequest       = "err_bad_request"
	TKeyErrInternal         = "err_internal"
	TKeyMsgDateChanged      = "msg_date_changed" // Requires Path
	TKeyMsgKeySaved         = "msg_key_saved"

	// Desktop window.
	TKeyWinTitle         = "win_title"
	TKeyWinRegistry      = "win_registry_title"
	TKeyLblServing       = "lbl_serving"
	TKeyLblFolder        = "lbl_folder"
	TKeyLblRegistry      = "lbl_registry"
	TKeyLblRegistryCount = "lbl_registry_count" // Requires Count
	TKeyBtnOpenBrowser   = "btn_open_browser"
	TKeyBtnShowRegistry  = "btn_show_registry"
	TKeyBtnQuit          = "btn_quit"
	TKeyColName          = "col_name"
	TKeyColBirthday      = "col_birthday"
	TKeyNotifStartError  = "notif_start_error" // Requires Port
	TKeyLblEstimate      = "lbl_estimate"
	TKeyLblPerson        = "lbl_person"
	TKeyLblAge           = "lbl_age"
	TKeyLblSeason        = "lbl_season"
	TKeyBtnEstimate      = "btn_estimate"
)

// -----------------------------------------------------------------------------
// UI Constants
// -----------------------------------------------------------------------------

const (
	MainWinWidth      = 420
	MainWinHeight     = 200
	RegistryWinWidth  = 420
	RegistryWinHeight = 400
	ColIDName         = 0
	ColIDBirthday     = 1
	ColCount          = 2
	ColWidthName      = 260
	ColWidthBirthday  = 120
	TablePlaceholder  = "Cell Content"
	SortIconAsc       = " ▲"
	SortIconDesc      = " ▼"
	TitleStartupError = "Startup Error"
)

// -----------------------------------------------------------------------------
// Structured Logging Keys (slog)
// -----------------------------------------------------------------------------

const (
	LogKeyComponent = "component"
	LogKeyError     = "error"
	LogKeyURL       = "url"
	LogKeyStatus    = "status_code"
	LogKeyFile      = "file"
	LogKeyLang      = "lang"
	LogKeyKey       = "key"
	LogKeyAddr      = "addr"
	LogKeyPort      = "port"
	LogKeyDir       = "directory"
	LogKeyMethod    = "method"
	LogKeyPath      = "path"
	LogKeyDebug     = "debug"
	LogKeyRequestID = "request_id"
	LogKeyNew       = "new"
	LogKeyOldOrig   = "old_original"
	LogKeyOldDigit  = "old_digitized"
	LogKeyOldImage  = "old_image"
	LogKeyValue     = "value"
	LogKeyCount     = "count"
	LogKeyName      = "name"
	LogKeyDOB       = "date_of_birth"
	LogKeyAge       = "age"
	LogKeyAnchor    = "anchor"
	LogKeyResult    = "result"
	LogKeyBackend   = "backend"
	LogKeyModel     = "model"
	LogKeySizeBytes = "size_bytes"
	LogKeyETag      = "etag"
	LogKeyDuration  = "duration_ms"
	LogKeySortAsc   = "sort_asc"
	LogKeySortCol   = "sort_col"

	// Startup Info Keys
	LogKeyBuild   = "build"
	LogKeyApp     = "app"
	LogKeyVersion = "version"
	LogKeyCommit  = "commit"
	LogKeyDate    = "date"
	LogKeyGoVer   = "go_version"
	LogKeyEnv     = "env"
	LogKeyOS      = "os"
	LogKeyArch    = "arch"
	LogKeyPID     = "pid"
)

// -----------------------------------------------------------------------------
// Log Components
// -----------------------------------------------------------------------------

const (
	CompUI     = "ui"
	CompEngine = "engine"
	CompServer = "server"
	CompPhoto  = "photo"
	CompSecret = "secret"
	CompAI     = "ai"
	CompMain   = "main"
	CompI18n   = "i18n"
	CompConfig = "config"
)

package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tartampluch/photo-time-sleuth/internal/config"
)

// ErrFormat classifies every registry parsing failure. Use errors.As with
// *FormatError to get the offending line and value.
var ErrFormat = errors.New(config.ErrRegistryFormat)

// BirthdayRecord is one line of the registry.
type BirthdayRecord struct {
	Name string `json:"name"`
	// Birthday is kept exactly as written in the registry (YYYY-MM-DD).
	Birthday string `json:"bday"`
}

// Date parses the record's birthday as a real calendar date.
// The registry only range-checks the day, so "2021-02-30" parses in the
// registry but fails here.
func (r BirthdayRecord) Date() (time.Time, error) {
	return ParseCalendarDate(r.Birthday)
}

// FormatError describes the first registry line that broke a rule.
type FormatError struct {
	Line  int    // 1-based line number
	Rule  string // config.Rule* identifier
	Value string // offending text
	Msg   string // human-readable explanation
}

func (e *FormatError) Error() string {
	return fmt.Sprintf(config.FormatLineError, e.Line, e.Msg)
}

// Is lets errors.Is(err, ErrFormat) match any FormatError.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// ParseRegistry parses a name<TAB>YYYY-MM-DD registry.
// Blank lines and lines starting with # are skipped. Parsing stops at the
// first malformed line. The result keeps file order and is never nil.
func ParseRegistry(text string) ([]BirthdayRecord, error) {
	records := make([]BirthdayRecord, 0)

	for i, raw := range strings.Split(text, "\n") {
		lineNo := i + 1
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, config.RegistryComment) {
			continue
		}

		if !strings.Contains(line, config.RegistrySeparator) {
			return nil, &FormatError{Line: lineNo, Rule: config.RuleMissingTab, Value: line, Msg: config.MsgMissingTab}
		}

		fields := strings.Split(line, config.RegistrySeparator)
		if len(fields) != config.RegistryFields {
			return nil, &FormatError{Line: lineNo, Rule: config.RuleFieldCount, Value: line,
				Msg: fmt.Sprintf(config.MsgFieldCount, line)}
		}
		name, bday := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
		if name == "" {
			return nil, &FormatError{Line: lineNo, Rule: config.RuleEmptyName, Value: bday,
				Msg: fmt.Sprintf(config.MsgEmptyName, bday)}
		}

		if err := validateBirthday(bday); err != nil {
			err.Line = lineNo
			return nil, err
		}

		records = append(records, BirthdayRecord{Name: name, Birthday: bday})
	}

	return records, nil
}

// validateBirthday checks the year-month-day shape and ranges. The day is only
// range-checked, not checked against the month's length.
func validateBirthday(bday string) *FormatError {
	parts := strings.Split(bday, config.DateSeparator)
	if len(parts) != config.DateParts {
		return &FormatError{Rule: config.RuleDateParts, Value: bday, Msg: fmt.Sprintf(config.MsgDateParts, bday)}
	}

	var nums [config.DateParts]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return &FormatError{Rule: config.RuleDateParts, Value: bday, Msg: fmt.Sprintf(config.MsgDateParts, bday)}
		}
		nums[i] = n
	}
	year, month, day := nums[0], nums[1], nums[2]

	switch {
	case year < config.MinRegistryYear || year > config.MaxRegistryYear:
		return &FormatError{Rule: config.RuleYearRange, Value: strconv.Itoa(year), Msg: fmt.Sprintf(config.MsgYearRange, year)}
	case month < config.MinMonth || month > config.MaxMonth:
		return &FormatError{Rule: config.RuleMonthRange, Value: strconv.Itoa(month), Msg: fmt.Sprintf(config.MsgMonthRange, month)}
	case day < config.MinDay || day > config.MaxDay:
		return &FormatError{Rule: config.RuleDayRange, Value: strconv.Itoa(day), Msg: fmt.Sprintf(config.MsgDayRange, day)}
	}
	return nil
}

// FindByName returns the first record whose name equals name.
// Duplicated names are allowed in the registry; later entries are never returned.
func FindByName(records []BirthdayRecord, name string) (BirthdayRecord, bool) {
	for _, r := range records {
		if r.Name == name {
			return r, true
		}
	}
	return BirthdayRecord{}, false
}

// LoadRegistry reads and parses the registry at path.
// An empty path or a missing file is an empty registry. Files with a vCard
// extension are imported from their BDAY fields instead.
func LoadRegistry(path string) ([]BirthdayRecord, error) {
	log := slog.With(config.LogKeyComponent, config.CompEngine, config.LogKeyFile, path)

	if path == "" {
		return []BirthdayRecord{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug(config.MsgRegistryMiss)
			return []BirthdayRecord{}, nil
		}
		return nil, fmt.Errorf("%s: %w", config.ErrRegistryRead, err)
	}
	defer func() { _ = f.Close() }()

	var records []BirthdayRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case config.ExtVCF, config.ExtVCard:
		records, err = ParseVCardRegistry(f)
	default:
		var data []byte
		data, err = io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", config.ErrRegistryRead, err)
		}
		records, err = ParseRegistry(string(data))
	}
	if err != nil {
		return nil, err
	}

	log.Debug(config.MsgRegistryLoaded, config.LogKeyCount, len(records))
	return records, nil
}

// EnsureRegistry writes the sample registry to path when no file exists there.
// It reports whether a file was created.
func EnsureRegistry(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("%s: %w", config.ErrRegistryRead, err)
	}

	if err := os.WriteFile(path, []byte(config.DefaultRegistry), config.FilePermShared); err != nil {
		return false, fmt.Errorf("%s: %w", config.ErrRegistryWrite, err)
	}
	slog.Info(config.MsgRegistryMade, config.LogKeyComponent, config.CompEngine, config.LogKeyFile, path)
	return true, nil
}

package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/tartampluch/photo-time-sleuth/internal/config"
)

// ParseVCardRegistry imports a contacts export as registry records.
// Name strategy: FN (Formatted) > N (Structured). Cards without a name, without
// a BDAY, with a year-less BDAY or with a year outside the registry bounds are
// skipped; malformed cards are logged and skipped.
func ParseVCardRegistry(r io.Reader) ([]BirthdayRecord, error) {
	decoder := vcard.NewDecoder(r)
	records := make([]BirthdayRecord, 0)

	for {
		card, err := decoder.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Log error but continue to next card to maximize data recovery
			slog.Warn(config.MsgSkippedCard,
				config.LogKeyComponent, config.CompEngine,
				config.LogKeyError, err)
			continue
		}

		bday := card.Get(config.VCardBDAY)
		if bday == nil || bday.Value == "" {
			continue
		}

		birthDate, err := parseVCardDate(bday.Value)
		if err != nil || birthDate.Year() < config.MinRegistryYear || birthDate.Year() > config.MaxRegistryYear {
			slog.Debug(config.MsgSkippedDate,
				config.LogKeyComponent, config.CompEngine,
				config.LogKeyValue, bday.Value)
			continue
		}

		var name string
		if fn := card.Get(config.VCardFN); fn != nil && fn.Value != "" {
			name = fn.Value
		} else if n := card.Name(); n != nil {
			name = strings.TrimSpace(n.GivenName + " " + n.FamilyName)
		}
		if name == "" {
			continue
		}

		records = append(records, BirthdayRecord{Name: name, Birthday: birthDate.Format(config.DateFormatISO)})
	}

	return records, nil
}

// parseVCardDate handles the vCard date formats that carry a year.
func parseVCardDate(value string) (time.Time, error) {
	formats := []string{
		config.DateFormatISO,
		config.DateFormatFullBasic,
		config.DateFormatRFC3339,
		config.DateFormatFullT,
	}

	for _, f := range formats {
		if t, err := time.Parse(f, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
}

package ui

import (
	"log/slog"
	"sort"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/tartampluch/photo-time-sleuth/internal/config"
	"github.com/tartampluch/photo-time-sleuth/internal/engine"
)

// sortRecords orders records by the given column. Name sorting ignores case;
// birthday sorting compares the YYYY-MM-DD text and breaks ties by name.
// Records equal on the sort key keep their relative order in both directions.
func sortRecords(records []engine.BirthdayRecord, col int, asc bool) {
	less := func(a, b engine.BirthdayRecord) bool {
		if col == config.ColIDBirthday && a.Birthday != b.Birthday {
			return a.Birthday < b.Birthday
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if asc {
			return less(records[i], records[j])
		}
		return less(records[j], records[i])
	})
}

// ShowRegistryWindow displays the registry in a sortable table.
// Only one registry window exists; a second call focuses it.
func (app *SleuthApp) ShowRegistryWindow() {
	if app.registryWindow != nil {
		app.registryWindow.RequestFocus()
		return
	}

	if err := app.ReloadRegistry(); err != nil {
		slog.Warn(config.ErrRegistryRead,
			config.LogKeyComponent, config.CompUI,
			config.LogKeyError, err)
	}
	rows := app.snapshot()

	app.registryWindow = app.App.NewWindow(app.Tr.Get(config.TKeyWinRegistry))
	app.registryWindow.Resize(fyne.NewSize(config.RegistryWinWidth, config.RegistryWinHeight))

	slog.Info(config.LogMsgOpenWin,
		config.LogKeyComponent, config.CompUI,
		config.LogKeyCount, len(rows))

	sortCol := config.ColIDName
	sortAsc := true
	sortRecords(rows, sortCol, sortAsc)

	table := widget.NewTable(
		func() (int, int) {
			return len(rows), config.ColCount
		},
		func() fyne.CanvasObject {
			return widget.NewLabel(config.TablePlaceholder)
		},
		func(id widget.TableCellID, o fyne.CanvasObject) {
			label := o.(*widget.Label)
			if id.Row >= len(rows) {
				return
			}
			label.SetText(cellText(rows[id.Row], id.Col))
		},
	)

	table.ShowHeaderRow = true
	table.CreateHeader = func() fyne.CanvasObject {
		return widget.NewButton(config.TablePlaceholder, func() {})
	}
	table.UpdateHeader = func(id widget.TableCellID, o fyne.CanvasObject) {
		btn := o.(*widget.Button)

		text := app.Tr.Get(config.TKeyColName)
		if id.Col == config.ColIDBirthday {
			text = app.Tr.Get(config.TKeyColBirthday)
		}
		if id.Col == sortCol {
			if sortAsc {
				text += config.SortIconAsc
			} else {
				text += config.SortIconDesc
			}
		}
		btn.SetText(text)

		btn.OnTapped = func() {
			if sortCol == id.Col {
				sortAsc = !sortAsc
			} else {
				sortCol = id.Col
				sortAsc = true
			}
			sortRecords(rows, sortCol, sortAsc)
			slog.Debug(config.LogMsgSorted,
				config.LogKeyComponent, config.CompUI,
				config.LogKeySortCol, sortCol,
				config.LogKeySortAsc, sortAsc)
			table.Refresh()
		}
	}

	table.SetColumnWidth(config.ColIDName, config.ColWidthName)
	table.SetColumnWidth(config.ColIDBirthday, config.ColWidthBirthday)

	app.registryWindow.SetContent(container.NewBorder(nil, nil, nil, nil, table))
	app.registryWindow.SetOnClosed(func() {
		app.registryWindow = nil
	})
	app.registryWindow.Show()
}

func cellText(r engine.BirthdayRecord, col int) string {
	if col == config.ColIDBirthday {
		return r.Birthday
	}
	return r.Name
}

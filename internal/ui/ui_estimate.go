package ui

import (
	"log/slog"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/tartampluch/photo-time-sleuth/internal/config"
	"github.com/tartampluch/photo-time-sleuth/internal/engine"
)

// buildEstimateForm is the desktop twin of the web page's age estimate.
func (app *SleuthApp) buildEstimateForm() fyne.CanvasObject {
	app.personSelect = widget.NewSelect(nil, nil)
	app.ageEntry = NewAgeEntry()

	anchors := engine.Anchors()
	seasons := make([]string, 0, len(anchors))
	for _, a := range anchors {
		seasons = append(seasons, string(a))
	}
	app.seasonSelect = widget.NewSelect(seasons, nil)
	app.seasonSelect.SetSelected(string(engine.AnchorBirthday))

	app.resultLabel = widget.NewLabel("")

	form := widget.NewForm(
		widget.NewFormItem(app.Tr.Get(config.TKeyLblPerson), app.personSelect),
		widget.NewFormItem(app.Tr.Get(config.TKeyLblAge), app.ageEntry),
		widget.NewFormItem(app.Tr.Get(config.TKeyLblSeason), app.seasonSelect),
	)

	button := widget.NewButton(app.Tr.Get(config.TKeyBtnEstimate), func() {
		app.resultLabel.SetText(app.QuickEstimate())
	})

	return container.NewVBox(
		widget.NewLabelWithStyle(app.Tr.Get(config.TKeyLblEstimate), fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		form,
		container.NewHBox(button, app.resultLabel),
	)
}

// QuickEstimate runs the estimator on the form's current values and returns
// the date, or a localized error message.
func (app *SleuthApp) QuickEstimate() string {
	age, ok := app.ageEntry.Age()
	if !ok {
		return app.Tr.Get(config.TKeyErrInvalidAge)
	}
	anchor, err := engine.ParseAnchor(app.seasonSelect.Selected)
	if err != nil {
		return app.Tr.Get(config.TKeyErrInvalidSeason)
	}

	person, found := engine.FindByName(app.snapshot(), app.personSelect.Selected)
	if !found {
		return app.Tr.Get(config.TKeyErrPersonNotFound)
	}

	date, err := engine.EstimateString(person.Birthday, age, anchor)
	if err != nil {
		return app.Tr.Get(config.TKeyErrInvalidBirthday)
	}

	slog.Debug(config.MsgEstimated,
		config.LogKeyComponent, config.CompUI,
		config.LogKeyName, person.Name,
		config.LogKeyAge, age,
		config.LogKeyAnchor, anchor,
		config.LogKeyResult, date)
	return date
}

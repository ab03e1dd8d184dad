package ui

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/tartampluch/photo-time-sleuth/internal/config"
	"github.com/tartampluch/photo-time-sleuth/internal/engine"
	"github.com/tartampluch/photo-time-sleuth/internal/locale"
	"github.com/tartampluch/photo-time-sleuth/internal/server"
)

// Runner is the web server kept alive behind the desktop window.
type Runner interface {
	Start(ctx context.Context) error
}

// SleuthApp is the desktop shell around the web application: a small status
// window, a tray menu and the registry viewer.
type SleuthApp struct {
	App      fyne.App
	Window   fyne.Window
	Ctx      context.Context
	Settings config.Settings
	Server   Runner
	Tr       *locale.Translator
	ServeURL string

	Tray desktop.App
	Menu *fyne.Menu

	// Registry is reloaded from disk each time a view needs it.
	RegistryMut    sync.RWMutex
	Registry       []engine.BirthdayRecord
	RegistryErr    error
	registryWindow fyne.Window

	countLabel   *widget.Label
	personSelect *widget.Select
	ageEntry     *AgeEntry
	seasonSelect *widget.Select
	resultLabel  *widget.Label
}

// NewSleuthApp wires the desktop shell. cat may be nil, in which case labels
// show their translation keys.
func NewSleuthApp(a fyne.App, ctx context.Context, s config.Settings, srv Runner, cat *locale.Catalog) *SleuthApp {
	a.SetIcon(theme.MediaPhotoIcon())

	var tr *locale.Translator
	if cat != nil {
		tr = cat.For(s.Language)
	}

	return &SleuthApp{
		App:      a,
		Ctx:      ctx,
		Settings: s,
		Server:   srv,
		Tr:       tr,
		ServeURL: server.ServeURL(s.Port),
		Registry: make([]engine.BirthdayRecord, 0),
	}
}

// Run starts the web server in the background and blocks on the UI loop.
func (app *SleuthApp) Run() {
	go app.serve()

	app.buildMainWindow()
	if err := app.ReloadRegistry(); err != nil {
		slog.Warn(config.ErrRegistryRead,
			config.LogKeyComponent, config.CompUI,
			config.LogKeyError, err)
	}

	if desk, ok := app.App.(desktop.App); ok {
		app.Tray = desk
		app.Tray.SetSystemTrayIcon(app.App.Icon())
	} else {
		slog.Warn(config.ErrTrayNotSupported,
			config.LogKeyComponent, config.CompUI)
	}
	app.setupTrayMenu()

	app.Window.ShowAndRun()
}

// serve runs the web server until the context ends and reports a failed
// start through a desktop notification.
func (app *SleuthApp) serve() {
	slog.Info(config.MsgServerListen,
		config.LogKeyComponent, config.CompUI,
		config.LogKeyPort, app.Settings.Port,
		config.LogKeyURL, app.ServeURL)

	if err := app.Server.Start(app.Ctx); err != nil {
		slog.Error(config.ErrServerStartup,
			config.LogKeyError, err,
			config.LogKeyComponent, config.CompUI)

		app.App.SendNotification(fyne.NewNotification(
			config.TitleStartupError,
			app.Tr.GetWith(config.TKeyNotifStartError, map[string]any{"Port": app.Settings.Port})))
	}
}

// buildMainWindow lays out the status window. Closing it quits the app.
func (app *SleuthApp) buildMainWindow() {
	w := app.App.NewWindow(app.Tr.Get(config.TKeyWinTitle))
	w.Resize(fyne.NewSize(config.MainWinWidth, config.MainWinHeight))

	link := widget.NewHyperlink(app.ServeURL, nil)
	if u, err := url.Parse(app.ServeURL); err == nil {
		link.URL = u
	}

	app.countLabel = widget.NewLabel("")

	info := widget.NewForm(
		widget.NewFormItem(app.Tr.Get(config.TKeyLblServing), link),
		widget.NewFormItem(app.Tr.Get(config.TKeyLblFolder), widget.NewLabel(app.Settings.PhotoDir)),
		widget.NewFormItem(app.Tr.Get(config.TKeyLblRegistry),
			container.NewVBox(widget.NewLabel(app.Settings.BdayFile), app.countLabel)),
	)

	buttons := container.NewHBox(
		widget.NewButton(app.Tr.Get(config.TKeyBtnOpenBrowser), app.OpenBrowser),
		widget.NewButton(app.Tr.Get(config.TKeyBtnShowRegistry), app.ShowRegistryWindow),
		widget.NewButton(app.Tr.Get(config.TKeyBtnQuit), app.App.Quit),
	)

	w.SetContent(container.NewVBox(
		info,
		widget.NewSeparator(),
		app.buildEstimateForm(),
		widget.NewSeparator(),
		buttons,
	))
	w.SetMaster()
	app.Window = w
}

// setupTrayMenu mirrors the main window buttons in the system tray.
func (app *SleuthApp) setupTrayMenu() {
	app.Menu = fyne.NewMenu(config.AppName,
		fyne.NewMenuItem(app.Tr.Get(config.TKeyBtnOpenBrowser), app.OpenBrowser),
		fyne.NewMenuItem(app.Tr.Get(config.TKeyBtnShowRegistry), app.ShowRegistryWindow),
	)

	if app.Tray != nil {
		app.Tray.SetSystemTrayMenu(app.Menu)
	}
}

// OpenBrowser opens the web application in the default browser.
func (app *SleuthApp) OpenBrowser() {
	u, err := url.Parse(app.ServeURL)
	if err != nil {
		return
	}
	slog.Info(config.MsgOpenBrowser,
		config.LogKeyComponent, config.CompUI,
		config.LogKeyURL, app.ServeURL)

	if err := app.App.OpenURL(u); err != nil {
		slog.Warn(config.MsgOpenBrowser,
			config.LogKeyComponent, config.CompUI,
			config.LogKeyError, err)
	}
}

// ReloadRegistry re-reads the registry file and refreshes every view of it.
// On error the previous records are kept and the count label shows the error.
func (app *SleuthApp) ReloadRegistry() error {
	records, err := engine.LoadRegistry(app.Settings.BdayFile)

	app.RegistryMut.Lock()
	app.RegistryErr = err
	if err == nil {
		app.Registry = records
	}
	app.RegistryMut.Unlock()

	app.refreshRegistryViews()
	return err
}

// snapshot returns a copy of the registry that callers may reorder.
func (app *SleuthApp) snapshot() []engine.BirthdayRecord {
	app.RegistryMut.RLock()
	defer app.RegistryMut.RUnlock()

	records := make([]engine.BirthdayRecord, len(app.Registry))
	copy(records, app.Registry)
	return records
}

func (app *SleuthApp) refreshRegistryViews() {
	records := app.snapshot()

	app.RegistryMut.RLock()
	loadErr := app.RegistryErr
	app.RegistryMut.RUnlock()

	if app.countLabel != nil {
		if loadErr != nil {
			app.countLabel.SetText(loadErr.Error())
		} else {
			app.countLabel.SetText(app.Tr.GetWith(config.TKeyLblRegistryCount, map[string]any{"Count": len(records)}))
		}
	}

	if app.personSelect != nil {
		names := make([]string, 0, len(records))
		for _, r := range records {
			names = append(names, r.Name)
		}
		app.personSelect.SetOptions(names)
	}
}

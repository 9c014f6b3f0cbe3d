package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validForm() SettingsForm {
	return FormFromSettings(DefaultSettings())
}

func TestValidateDefaults(t *testing.T) {
	s, err := validForm().Validate()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestValidateNormalizesAndClamps(t *testing.T) {
	f := validForm()
	f.ActivationHotkey = " shift + ctrl + v "
	f.SelectKey = "enter"
	f.RetainedItemsLimit = "9000"
	f.AutoHideSeconds = "0"
	f.ScreenSide = "right"

	s, err := f.Validate()
	require.NoError(t, err)
	assert.Equal(t, "Ctrl+Shift+V", s.ActivationHotkey)
	assert.Equal(t, "Enter", s.SelectKey)
	assert.Equal(t, 500, s.RetainedItemsLimit)
	assert.Equal(t, 1, s.AutoHideSeconds)
	assert.Equal(t, SideRight, s.ScreenSide)
}

func TestValidateReportsFirstInvalidField(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SettingsForm)
		field   string
		message string
	}{
		{"hotkey without modifier", func(f *SettingsForm) { f.ActivationHotkey = "Q" }, "activationHotkey", "Invalid activation hotkey. Example: CapsLock+D"},
		{"scroll up", func(f *SettingsForm) { f.ScrollUpKey = "??" }, "scrollUpKey", "Invalid scroll up key."},
		{"settings back", func(f *SettingsForm) { f.SettingsBackKey = "" }, "settingsBackKey", "Invalid settings back key."},
		{"retained", func(f *SettingsForm) { f.RetainedItemsLimit = "many" }, "retainedItemsLimit", "Retained items must be a number."},
		{"auto hide", func(f *SettingsForm) { f.AutoHideSeconds = "6s" }, "autoHideSeconds", "Auto-hide seconds must be a number."},
		{"side", func(f *SettingsForm) { f.ScreenSide = "top" }, "screenSide", "Screen side must be Left or Right."},
		{"earliest wins", func(f *SettingsForm) {
			f.AutoHideSeconds = "x"
			f.SelectKey = "xx"
		}, "selectKey", "Invalid select key."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm()
			tt.mutate(&f)

			s, err := f.Validate()
			require.Error(t, err)
			assert.Equal(t, Settings{}, s)

			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
			assert.Equal(t, tt.message, fe.Error())
		})
	}
}

func TestSettingsBindingsFallback(t *testing.T) {
	s := DefaultSettings()
	s.ActivationHotkey = "Q"
	s.SelectKey = "not a key"
	s.HideStripKey = "Escape"

	b := s.Bindings()
	assert.Equal(t, DefaultActivationHotkey, b.Activation)
	assert.Equal(t, Key("S"), b.Select)
	assert.Equal(t, KeyEscape, b.Hide)
	assert.Equal(t, KeyUp, b.ScrollUp)
}

func TestLoadSaveSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	assert.Equal(t, DefaultSettings(), LoadSettings(path))

	s := DefaultSettings()
	s.ScreenSide = SideRight
	s.RetainedItemsLimit = 1000
	s.SelectKey = "Enter"
	require.NoError(t, SaveSettings(path, s))

	loaded := LoadSettings(path)
	assert.Equal(t, SideRight, loaded.ScreenSide)
	assert.Equal(t, 500, loaded.RetainedItemsLimit)
	assert.Equal(t, "Enter", loaded.SelectKey)
}

func TestLoadSettingsPartialAndLegacy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ScreenSide": 1, "SelectKey": "Enter", "Unknown": true}`), 0644))

	s := LoadSettings(path)
	assert.Equal(t, SideRight, s.ScreenSide)
	assert.Equal(t, "Enter", s.SelectKey)
	assert.Equal(t, "CapsLock+D", s.ActivationHotkey)
	assert.Equal(t, 15, s.RetainedItemsLimit)
}

func TestLoadSettingsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"selectKey": `), 0644))
	assert.Equal(t, DefaultSettings(), LoadSettings(path))
}

func TestLoadSettingsClampsAndTolerantSide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ScreenSide": "Top", "RetainedItemsLimit": 9000, "AutoHideSeconds": 0, "SelectKey": "Enter"}`), 0644))

	s := LoadSettings(path)
	assert.Equal(t, SideLeft, s.ScreenSide)
	assert.Equal(t, 500, s.RetainedItemsLimit)
	assert.Equal(t, 1, s.AutoHideSeconds)
	assert.Equal(t, "Enter", s.SelectKey)
}

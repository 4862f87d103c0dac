package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"qr-tracker/pkg/service"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("shortcode", func(fl validator.FieldLevel) bool {
		return service.ValidateShortCode(fl.Field().String())
	})
	return v
}

// Validate checks field constraints and the rules that span sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if c.usesPostgres() && c.Database.URL == "" {
		return errors.New("database.url is required for the postgres backend")
	}
	if c.Storage.Redirects == "sheets" && c.Sheets.RedirectsSpreadsheetID == "" {
		return errors.New("sheets.redirects_spreadsheet_id is required when storage.redirects is sheets")
	}
	if c.Storage.Redirects == "sheets" || c.Sheets.ArchiveSpreadsheetID != "" {
		if c.Sheets.CredentialsFile == "" {
			return errors.New("sheets.credentials_file is required when a spreadsheet is configured")
		}
	}
	if c.Auth.Enabled {
		if len(c.Auth.SessionSecret) < 32 {
			return errors.New("auth.session_secret must be at least 32 characters when auth is enabled")
		}
		if len(c.Auth.Users) == 0 && c.Auth.OIDC.IssuerURL == "" {
			return errors.New("auth is enabled but no users or OIDC issuer are configured")
		}
	}
	if c.Server.TrackRateLimit > 0 && c.Server.TrackRateWindow <= 0 {
		return errors.New("server.track_rate_window must be positive when rate limiting is on")
	}
	return nil
}

func (c *Config) usesPostgres() bool {
	return c.Storage.Redirects == "postgres" || c.Storage.Scans == "postgres"
}

// ArchiveEnabled reports whether scans are mirrored to a spreadsheet.
func (c *Config) ArchiveEnabled() bool {
	return c.Sheets.ArchiveSpreadsheetID != ""
}

// ValidateRestore checks the settings a one-off restore needs: an archive to
// read from and a scan store that outlives the process.
func (c *Config) ValidateRestore() error {
	if !c.ArchiveEnabled() {
		return errors.New("sheets.archive_spreadsheet_id is not set; nothing to restore from")
	}
	if c.Storage.Scans != "postgres" {
		return fmt.Errorf("storage.scans is %q; restore needs the postgres scan store", c.Storage.Scans)
	}
	return nil
}

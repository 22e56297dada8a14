// Package design holds the customer's card description and its lock state.
//
// A design moves draft → validated → locked and never back. Once locked it
// is the frozen input of the print export.
package design

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"iwasp/internal/assetgate"
	"iwasp/internal/layout"
	"iwasp/internal/palette"
)

var (
	ErrNotLocked    = errors.New("design is not locked")
	ErrLocked       = errors.New("design is locked")
	ErrInvalidField = errors.New("invalid design field")
	ErrTransition   = errors.New("invalid status transition")
)

const (
	MaxNameRunes    = 30
	MaxTitleRunes   = 40
	MaxCompanyRunes = 40
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusValidated Status = "validated"
	StatusLocked    Status = "locked"
)

// LogoAsset references an uploaded logo. The quality flags are recomputed
// from the pixel size whenever they matter.
type LogoAsset struct {
	ObjectKey   string `json:"object_key" yaml:"object_key"`
	MIME        string `json:"mime" yaml:"mime"`
	PixelWidth  int    `json:"pixel_width" yaml:"pixel_width"`
	PixelHeight int    `json:"pixel_height" yaml:"pixel_height"`
	Vector      bool   `json:"vector" yaml:"vector"`
}

// Design is the logical card.
type Design struct {
	ID             uint       `json:"id" yaml:"id"`
	SessionID      string     `json:"session_id" yaml:"session_id"`
	OrderNumber    string     `json:"order_number" yaml:"order_number"`
	TemplateID     string     `json:"template_id" yaml:"template_id"`
	ColorID        string     `json:"color_id" yaml:"color_id"`
	PrintedName    string     `json:"printed_name" yaml:"printed_name"`
	PrintedTitle   string     `json:"printed_title,omitempty" yaml:"printed_title"`
	PrintedCompany string     `json:"printed_company,omitempty" yaml:"printed_company"`
	Logo           *LogoAsset `json:"logo,omitempty" yaml:"logo"`
	Status         Status     `json:"status" yaml:"status"`
	ValidatedAt    *time.Time `json:"validated_at,omitempty" yaml:"validated_at"`
	LockedAt       *time.Time `json:"locked_at,omitempty" yaml:"locked_at"`
}

// New creates a draft. An empty color id takes the template's default; an
// unknown one is an error.
func New(sessionID, orderNumber, templateID, colorID string) (*Design, error) {
	if strings.TrimSpace(templateID) == "" {
		templateID = layout.DefaultTemplateID
	}
	tpl, err := layout.Get(templateID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(colorID) == "" {
		colorID = tpl.DefaultColorID
	}
	if _, err := palette.Get(colorID); err != nil {
		return nil, err
	}
	return &Design{
		SessionID:   sessionID,
		OrderNumber: orderNumber,
		TemplateID:  tpl.ID,
		ColorID:     colorID,
		Status:      StatusDraft,
	}, nil
}

// Changes is a partial update; nil fields are left untouched.
type Changes struct {
	TemplateID     *string `json:"template_id"`
	ColorID        *string `json:"color_id"`
	PrintedName    *string `json:"printed_name"`
	PrintedTitle   *string `json:"printed_title"`
	PrintedCompany *string `json:"printed_company"`
}

// Apply validates and applies changes atomically: on error the design is
// unchanged.
func (d *Design) Apply(c Changes) error {
	if d.Status == StatusLocked {
		return ErrLocked
	}
	next := *d
	if c.TemplateID != nil {
		tpl, err := layout.Get(*c.TemplateID)
		if err != nil {
			return err
		}
		next.TemplateID = tpl.ID
		if err := logoFits(next.Logo, tpl); err != nil {
			return err
		}
	}
	if c.ColorID != nil {
		col, err := palette.Get(*c.ColorID)
		if err != nil {
			return err
		}
		next.ColorID = col.ID
	}
	if c.PrintedName != nil {
		next.PrintedName = strings.TrimSpace(*c.PrintedName)
	}
	if c.PrintedTitle != nil {
		next.PrintedTitle = strings.TrimSpace(*c.PrintedTitle)
	}
	if c.PrintedCompany != nil {
		next.PrintedCompany = strings.TrimSpace(*c.PrintedCompany)
	}
	if err := next.checkFields(); err != nil {
		return err
	}
	if next.Status == StatusValidated && next.PrintedName == "" {
		return fmt.Errorf("%w: printed name is required once validated", ErrInvalidField)
	}
	*d = next
	return nil
}

func (d *Design) checkFields() error {
	if n := utf8.RuneCountInString(d.PrintedName); n > MaxNameRunes {
		return fmt.Errorf("%w: printed name has %d characters, max %d", ErrInvalidField, n, MaxNameRunes)
	}
	if n := utf8.RuneCountInString(d.PrintedTitle); n > MaxTitleRunes {
		return fmt.Errorf("%w: printed title has %d characters, max %d", ErrInvalidField, n, MaxTitleRunes)
	}
	if n := utf8.RuneCountInString(d.PrintedCompany); n > MaxCompanyRunes {
		return fmt.Errorf("%w: printed company has %d characters, max %d", ErrInvalidField, n, MaxCompanyRunes)
	}
	for _, s := range []string{d.PrintedName, d.PrintedTitle, d.PrintedCompany} {
		if !utf8.ValidString(s) || strings.ContainsAny(s, "\n\r\t") {
			return fmt.Errorf("%w: text must be a single line", ErrInvalidField)
		}
	}
	return nil
}

// AttachLogo stores the asset only if the quality gate accepted it.
func (d *Design) AttachLogo(asset LogoAsset, report assetgate.QualityReport) error {
	if d.Status == StatusLocked {
		return ErrLocked
	}
	if !report.Valid {
		return report.Err()
	}
	a := asset
	d.Logo = &a
	return nil
}

// DetachLogo removes the logo.
func (d *Design) DetachLogo() error {
	if d.Status == StatusLocked {
		return ErrLocked
	}
	d.Logo = nil
	return nil
}

// Validate moves a draft to validated.
func (d *Design) Validate(now time.Time) error {
	switch d.Status {
	case StatusValidated:
		return nil
	case StatusLocked:
		return ErrLocked
	}
	if d.PrintedName == "" {
		return fmt.Errorf("%w: printed name is required", ErrInvalidField)
	}
	if err := d.checkFields(); err != nil {
		return err
	}
	tpl, err := layout.Get(d.TemplateID)
	if err != nil {
		return err
	}
	if _, err := palette.Get(d.ColorID); err != nil {
		return err
	}
	if err := logoFits(d.Logo, tpl); err != nil {
		return err
	}
	t := now.UTC()
	d.Status = StatusValidated
	d.ValidatedAt = &t
	return nil
}

// Lock freezes a validated design. There is no unlock.
func (d *Design) Lock(now time.Time) error {
	switch d.Status {
	case StatusLocked:
		return nil
	case StatusDraft:
		return fmt.Errorf("%w: validate before locking", ErrTransition)
	}
	tpl, err := layout.Get(d.TemplateID)
	if err != nil {
		return err
	}
	if err := logoFits(d.Logo, tpl); err != nil {
		return err
	}
	t := now.UTC()
	d.Status = StatusLocked
	d.LockedAt = &t
	return nil
}

// logoFits re-applies the resolution floor of tpl's logo slot to an attached
// logo. The floor depends on the slot size, so it must hold for the template
// the design is printed with, not only the one it was uploaded under.
func logoFits(logo *LogoAsset, tpl layout.Template) error {
	if logo == nil || logo.Vector {
		return nil
	}
	pos, ok := tpl.Positions[layout.SlotLogo]
	if !ok {
		return fmt.Errorf("%w: template %s has no logo slot", ErrInvalidField, tpl.ID)
	}
	_, err := assetgate.New(0).ValidateDimensions(logo.PixelWidth, logo.PixelHeight, pos)
	return err
}

// RequireLocked guards print rendering and export.
func (d *Design) RequireLocked() error {
	if d == nil || d.Status != StatusLocked {
		return ErrNotLocked
	}
	return nil
}

// IsLocked reports whether the design is frozen.
func (d *Design) IsLocked() bool { return d != nil && d.Status == StatusLocked }

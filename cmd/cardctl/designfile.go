package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"iwasp/internal/assetgate"
	"iwasp/internal/design"
	"iwasp/internal/layout"
)

// designFile is the on-disk description of a card. Logo paths are relative
// to the file.
//
//	order_number: CMD-2026-0042
//	template_id: iwasp-black
//	color_id: onyx
//	printed_name: Ada Lovelace
//	logo: logo.png
//	locked_at: 2026-04-01T09:30:00Z
type designFile struct {
	SessionID      string     `yaml:"session_id"`
	OrderNumber    string     `yaml:"order_number"`
	TemplateID     string     `yaml:"template_id"`
	ColorID        string     `yaml:"color_id"`
	PrintedName    string     `yaml:"printed_name"`
	PrintedTitle   string     `yaml:"printed_title"`
	PrintedCompany string     `yaml:"printed_company"`
	Logo           string     `yaml:"logo"`
	LockedAt       *time.Time `yaml:"locked_at"`
}

var errAssetOutsideRoot = errors.New("asset path escapes the design directory")

// dirAssets serves logo keys from the design file's directory.
type dirAssets struct {
	root string
}

func (d dirAssets) path(key string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", errAssetOutsideRoot, key)
	}
	return filepath.Join(d.root, rel), nil
}

func (d dirAssets) ReadAsset(_ context.Context, key string) ([]byte, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

func decodeDesignFile(r io.Reader) (designFile, error) {
	var f designFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return designFile{}, fmt.Errorf("decode design file: %w", err)
	}
	return f, nil
}

// loadDesign builds a design through the same rules the API applies: ids
// fail closed, field limits hold and the logo passes the quality gate.
// With lock set the design is validated and locked in memory.
func loadDesign(path string, gate assetgate.Gate, lock bool) (*design.Design, dirAssets, error) {
	assets := dirAssets{root: filepath.Dir(path)}

	fh, err := os.Open(path)
	if err != nil {
		return nil, assets, err
	}
	defer fh.Close()
	f, err := decodeDesignFile(fh)
	if err != nil {
		return nil, assets, err
	}

	sessionID := f.SessionID
	if sessionID == "" {
		sessionID = "cardctl"
	}
	d, err := design.New(sessionID, f.OrderNumber, f.TemplateID, f.ColorID)
	if err != nil {
		return nil, assets, err
	}
	if err := d.Apply(design.Changes{
		PrintedName:    &f.PrintedName,
		PrintedTitle:   &f.PrintedTitle,
		PrintedCompany: &f.PrintedCompany,
	}); err != nil {
		return nil, assets, err
	}

	if f.Logo != "" {
		if err := attachLogo(d, assets, f.Logo, gate); err != nil {
			return nil, assets, err
		}
	}

	if lock {
		now := time.Now().UTC()
		if f.LockedAt != nil {
			now = *f.LockedAt
		}
		if err := d.Validate(now); err != nil {
			return nil, assets, err
		}
		if err := d.Lock(now); err != nil {
			return nil, assets, err
		}
	}
	return d, assets, nil
}

func attachLogo(d *design.Design, assets dirAssets, key string, gate assetgate.Gate) error {
	data, err := assets.ReadAsset(context.Background(), key)
	if err != nil {
		return fmt.Errorf("read logo: %w", err)
	}
	asset, err := assetgate.Inspect(data, 0)
	if err != nil {
		return err
	}
	tpl, err := layout.Get(d.TemplateID)
	if err != nil {
		return err
	}
	pos, ok := tpl.Positions[layout.SlotLogo]
	if !ok {
		return fmt.Errorf("%w: template %s has no logo slot", design.ErrInvalidField, tpl.ID)
	}
	return d.AttachLogo(design.LogoAsset{
		ObjectKey:   filepath.ToSlash(filepath.Clean(key)),
		MIME:        asset.MIME,
		PixelWidth:  asset.PixelWidth,
		PixelHeight: asset.PixelHeight,
		Vector:      asset.Vector,
	}, gate.EvaluateAsset(asset, pos))
}

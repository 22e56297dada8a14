package errcode

import (
	"errors"

	"iwasp/internal/assetgate"
	"iwasp/internal/design"
	"iwasp/internal/export"
	"iwasp/internal/layout"
	"iwasp/internal/palette"
	"iwasp/internal/units"
)

var table = []struct {
	err  error
	code int
}{
	{palette.ErrUnknownColor, UnknownColor},
	{layout.ErrUnknownTemplate, UnknownTemplate},
	{units.ErrUnknownSpec, UnknownSpec},
	{assetgate.ErrAssetTooSmall, AssetTooSmall},
	{assetgate.ErrAssetSuboptimal, AssetSuboptimal},
	{assetgate.ErrUnsupportedType, AssetRejected},
	{assetgate.ErrFileTooLarge, AssetRejected},
	{assetgate.ErrUndecodable, AssetRejected},
	{assetgate.ErrMalware, AssetRejected},
	{assetgate.ErrRemoteFetch, AssetRejected},
	{design.ErrNotLocked, NotLocked},
	{design.ErrInvalidField, InvalidField},
	{design.ErrTransition, InvalidField},
	{design.ErrLocked, DesignLocked},
	{export.ErrInvalidOrder, InvalidField},
	{export.ErrExportInProgress, ExportInProgress},
	{export.ErrRasterizationFailed, RasterizationFailed},
	{export.ErrPDFAssemblyFailed, PdfAssemblyFailed},
}

// Of 将领域错误映射为对外错误码；未识别的错误统一视为系统错误。
func Of(err error) int {
	if err == nil {
		return OK
	}
	for _, e := range table {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return SystemError
}

// IsSystem 判断错误码是否属于 5xxx 系统错误。
func IsSystem(code int) bool { return code >= 5000 }

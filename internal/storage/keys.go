package storage

import (
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// 对象键前缀。
const (
	AssetPrefix  = "card-assets/"
	ExportPrefix = "card-exports/"
)

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func segment(s string) string {
	s = strings.Trim(unsafeSegment.ReplaceAllString(strings.TrimSpace(s), "-"), "-")
	if s == "" {
		return "_"
	}
	return s
}

// NewAssetKey 为会话上传的 Logo 生成唯一对象键：card-assets/<session>/<uuid><ext>。
func NewAssetKey(sessionID, ext string) string {
	return AssetPrefix + segment(sessionID) + "/" + uuid.NewString() + ext
}

// ExportKey 返回打印包文件的对象键：card-exports/<order>/<name>。
func ExportKey(orderNumber, fileName string) string {
	return ExportPrefix + segment(orderNumber) + "/" + path.Base(fileName)
}

// AssetBelongsTo 校验对象键位于该会话的上传目录下，防止引用他人的素材。
func AssetBelongsTo(key, sessionID string) bool {
	clean := path.Clean("/" + key)
	return strings.HasPrefix(clean, "/"+AssetPrefix+segment(sessionID)+"/") && !strings.Contains(key, "..")
}

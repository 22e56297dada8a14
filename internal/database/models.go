package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"iwasp/internal/design"
)

// 导出任务状态。
const (
	ExportQueued    = "queued"
	ExportRunning   = "running"
	ExportCompleted = "completed"
	ExportFailed    = "failed"
)

// Design 持久化一张卡片设计稿，归属于下单会话（SessionID）。
type Design struct {
	gorm.Model
	SessionID      string `gorm:"size:64;index"`
	OrderNumber    string `gorm:"size:64;index"`
	TemplateID     string `gorm:"size:64"`
	ColorID        string `gorm:"size:64"`
	PrintedName    string `gorm:"size:128"`
	PrintedTitle   string `gorm:"size:160"`
	PrintedCompany string `gorm:"size:160"`
	LogoKey        string `gorm:"size:512"`
	LogoMIME       string `gorm:"size:64"`
	LogoWidth      int
	LogoHeight     int
	LogoVector     bool
	Status         string `gorm:"size:16;default:draft"`
	ValidatedAt    *time.Time
	LockedAt       *time.Time
	Exports        []Export `gorm:"constraint:OnDelete:CASCADE"`
}

// Export 记录一次打印包生成。Manifest 为 export.Manifest 的 JSON。
type Export struct {
	gorm.Model
	DesignID      uint   `gorm:"index"`
	OrderNumber   string `gorm:"size:64"`
	Quantity      int
	Status        string         `gorm:"size:16;index"`
	CardKey       string         `gorm:"size:512"`
	InfoSheetKey  string         `gorm:"size:512"`
	Manifest      datatypes.JSON `gorm:"type:jsonb"`
	ErrorCode     int
	ErrorMessage  string `gorm:"size:512"`
	CorrelationID string `gorm:"size:64"`
}

// AutoMigrate 创建或更新全部表结构。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Design{}, &Export{})
}

// ToDomain 转换为领域对象。
func (m *Design) ToDomain() *design.Design {
	d := &design.Design{
		ID:             m.ID,
		SessionID:      m.SessionID,
		OrderNumber:    m.OrderNumber,
		TemplateID:     m.TemplateID,
		ColorID:        m.ColorID,
		PrintedName:    m.PrintedName,
		PrintedTitle:   m.PrintedTitle,
		PrintedCompany: m.PrintedCompany,
		Status:         design.Status(m.Status),
		ValidatedAt:    m.ValidatedAt,
		LockedAt:       m.LockedAt,
	}
	if m.LogoKey != "" {
		d.Logo = &design.LogoAsset{
			ObjectKey:   m.LogoKey,
			MIME:        m.LogoMIME,
			PixelWidth:  m.LogoWidth,
			PixelHeight: m.LogoHeight,
			Vector:      m.LogoVector,
		}
	}
	return d
}

// FromDomain 将领域对象写回模型，保留 gorm.Model 元数据。
func (m *Design) FromDomain(d *design.Design) {
	m.SessionID = d.SessionID
	m.OrderNumber = d.OrderNumber
	m.TemplateID = d.TemplateID
	m.ColorID = d.ColorID
	m.PrintedName = d.PrintedName
	m.PrintedTitle = d.PrintedTitle
	m.PrintedCompany = d.PrintedCompany
	m.Status = string(d.Status)
	m.ValidatedAt = d.ValidatedAt
	m.LockedAt = d.LockedAt
	m.LogoKey, m.LogoMIME, m.LogoWidth, m.LogoHeight, m.LogoVector = "", "", 0, 0, false
	if d.Logo != nil {
		m.LogoKey = d.Logo.ObjectKey
		m.LogoMIME = d.Logo.MIME
		m.LogoWidth = d.Logo.PixelWidth
		m.LogoHeight = d.Logo.PixelHeight
		m.LogoVector = d.Logo.Vector
	}
}

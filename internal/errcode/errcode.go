package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（用户可修正的输入、状态不满足等）
// - 5xxx：系统错误（需要中断流程，可由用户手动重试）
const (
	OK              = 0
	ResourceMissing = 4004

	UnknownColor    = 4010
	UnknownTemplate = 4011
	UnknownSpec     = 4012

	AssetTooSmall   = 4020
	AssetSuboptimal = 4021
	AssetRejected   = 4022

	NotLocked    = 4030
	InvalidField = 4031
	DesignLocked = 4032

	ExportInProgress = 4090

	SystemError         = 5000
	RasterizationFailed = 5010
	PdfAssemblyFailed   = 5011
)

package model

import "gorm.io/datatypes"

// URLRule 一条 nice url 路由规则
type URLRule struct {
	BaseModel
	Type          string         `gorm:"type:varchar(64);index;not null;default:''" json:"type"`
	Pattern       string         `gorm:"type:varchar(512);not null" json:"pattern"`
	Readable      string         `gorm:"type:varchar(512);not null" json:"readable"`
	Template      string         `gorm:"type:varchar(1024);not null" json:"template"`
	ForwardParams datatypes.JSON `gorm:"column:forward_params;type:json" json:"forwardParams"`
	InverseParams datatypes.JSON `gorm:"column:inverse_params;type:json" json:"inverseParams"`
	Enabled       bool           `gorm:"default:true;not null;index:idx_url_rules_enabled_priority,priority:1" json:"enabled"`
	Priority      float64        `gorm:"not null;default:0;index:idx_url_rules_enabled_priority,priority:2" json:"priority"`
}

// TableName 指定表名
func (URLRule) TableName() string {
	return "url_rules"
}

// ParamKind constants
const (
	ParamKindPlain   = "plain"   // 原样透传，url 编码
	ParamKindConvert = "convert" // 交给转换策略处理
)

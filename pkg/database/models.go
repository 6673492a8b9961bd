package database

// Setting is one JSON-encoded settings group.
type Setting struct {
	Group string `gorm:"column:group;primaryKey"`
	JSON  string `gorm:"column:json;type:text"`
}

func (Setting) TableName() string { return "settings" }

type PluginSetting struct {
	Plugin string `gorm:"column:plugin;primaryKey"`
	JSON   string `gorm:"column:json;type:text"`
}

func (PluginSetting) TableName() string { return "plugin_settings" }

type ChatSetting struct {
	ChatType string `gorm:"column:chat_type;primaryKey"`
	ChatID   int64  `gorm:"column:chat_id;primaryKey;autoIncrement:false"`
	Group    string `gorm:"column:group;primaryKey"`
	JSON     string `gorm:"column:json;type:text"`
}

func (ChatSetting) TableName() string { return "chat_settings" }

type Reply struct {
	Group string `gorm:"column:group;primaryKey"`
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value;type:text"`
}

func (Reply) TableName() string { return "replies" }

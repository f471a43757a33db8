package models

// InstalledPlugin is a row of the plugins table, written by an extension's
// install hook.
type InstalledPlugin struct {
	Name       string `json:"name" db:"plugin_name"`
	SystemName string `json:"system_name" db:"plugin_sys_name"`
}

// ProductPlugin links a product to an extension that handles its events.
type ProductPlugin struct {
	ProductID  int64  `json:"product_id" db:"prod_id"`
	SystemName string `json:"system_name" db:"plugin_sys_name"`
}

// PluginInfo is the API view of a loaded extension.
type PluginInfo struct {
	Name        string `json:"name"`
	SystemName  string `json:"system_name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	Author      string `json:"author,omitempty"`
	Installed   bool   `json:"installed"`
}

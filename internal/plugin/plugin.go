// Package plugin hosts catalog extensions: it keeps the in-memory registry of
// loaded extensions, installs and uninstalls them from uploaded archives and
// forwards catalog events to them.
//
// The extension-facing types live in pkg/plugin and are re-exported here so
// internal code imports a single package.
package plugin

import (
	pkgplugin "github.com/goatkit/prodmanager/pkg/plugin"
)

type Extension = pkgplugin.Extension
type Descriptor = pkgplugin.Descriptor
type Manifest = pkgplugin.Manifest
type Factory = pkgplugin.Factory
type Field = pkgplugin.Field
type HostAPI = pkgplugin.HostAPI
type Product = pkgplugin.Product
type Tag = pkgplugin.Tag
type Category = pkgplugin.Category
type Brand = pkgplugin.Brand

// ValidSystemName re-exports the system name check.
var ValidSystemName = pkgplugin.ValidSystemName

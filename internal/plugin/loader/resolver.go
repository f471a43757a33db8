package loader

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	goplugin "plugin"

	"github.com/Masterminds/semver/v3"

	"github.com/goatkit/prodmanager/internal/plugin"
	"github.com/goatkit/prodmanager/internal/plugin/packaging"
	"github.com/goatkit/prodmanager/internal/plugin/signing"
)

// Resolver turns an entry file into an extension instance.
type Resolver interface {
	// Ext is the entry file extension handled, including the dot.
	Ext() string
	// Resolve builds the extension described by the entry file at path.
	// name is the directory name the entry file was found in.
	Resolve(ctx context.Context, path, name string) (plugin.Extension, error)
}

// HostFunc returns the host API handed to the extension called name.
type HostFunc func(name string) plugin.HostAPI

type resolverConfig struct {
	host        HostFunc
	hostVersion *semver.Version
	trusted     []ed25519.PublicKey
}

// ResolverOption configures a resolver.
type ResolverOption func(*resolverConfig)

// WithHost sets the host API given to factories.
func WithHost(fn HostFunc) ResolverOption {
	return func(c *resolverConfig) {
		c.host = fn
	}
}

// WithHostVersion enables checking manifest requires constraints against v.
func WithHostVersion(v *semver.Version) ResolverOption {
	return func(c *resolverConfig) {
		c.hostVersion = v
	}
}

// WithTrustedKeys requires shared objects to carry a <name>.so.sig signature
// made by one of keys. Without keys, signatures are not checked.
func WithTrustedKeys(keys ...ed25519.PublicKey) ResolverOption {
	return func(c *resolverConfig) {
		c.trusted = append(c.trusted, keys...)
	}
}

func newResolverConfig(opts []ResolverOption) resolverConfig {
	c := resolverConfig{host: func(string) plugin.HostAPI { return nil }}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// FactoryResolver resolves <name>.yaml manifests to factories compiled into
// the binary.
type FactoryResolver struct {
	lookup func(string) (plugin.Factory, bool)
	cfg    resolverConfig
}

// NewFactoryResolver creates a resolver. lookup is usually pkg/plugin.Lookup.
func NewFactoryResolver(lookup func(string) (plugin.Factory, bool), opts ...ResolverOption) *FactoryResolver {
	return &FactoryResolver{lookup: lookup, cfg: newResolverConfig(opts)}
}

// Ext implements Resolver.
func (r *FactoryResolver) Ext() string { return ".yaml" }

// Resolve implements Resolver.
func (r *FactoryResolver) Resolve(ctx context.Context, path, name string) (plugin.Extension, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, plugin.NewError("resolve", name, plugin.ErrEntryFileMissing, err)
	}

	m, err := packaging.ValidateManifest(data)
	if err != nil {
		return nil, plugin.NewError("resolve", name, plugin.ErrEntryClassMissing, err)
	}
	if err := checkRequires(m, r.cfg.hostVersion); err != nil {
		return nil, plugin.NewError("resolve", name, plugin.ErrIncompatible, err)
	}

	// The factory is always the one registered under the directory name.
	factory, ok := r.lookup(name)
	if !ok {
		return nil, plugin.NewError("resolve", name, plugin.ErrEntryClassMissing,
			fmt.Errorf("no factory registered as %q", name))
	}

	return construct(name, factory, r.cfg.host(name), m)
}

func checkRequires(m plugin.Manifest, host *semver.Version) error {
	if m.Requires == "" || host == nil {
		return nil
	}
	c, err := semver.NewConstraint(m.Requires)
	if err != nil {
		return err
	}
	if !c.Check(host) {
		return fmt.Errorf("host %s does not satisfy %q", host, m.Requires)
	}
	return nil
}

// construct calls the factory, turning errors and panics into resolve errors.
func construct(name string, f plugin.Factory, host plugin.HostAPI, m plugin.Manifest) (ext plugin.Extension, err error) {
	defer func() {
		if p := recover(); p != nil {
			ext = nil
			err = plugin.NewError("resolve", name, plugin.ErrEntryClassMissing, fmt.Errorf("factory panicked: %v", p))
		}
	}()

	ext, err = f(host, m)
	if err != nil {
		return nil, plugin.NewError("resolve", name, plugin.ErrEntryClassMissing, err)
	}
	if ext == nil {
		return nil, plugin.NewError("resolve", name, plugin.ErrNotAnExtension, fmt.Errorf("factory returned nil"))
	}
	return ext, nil
}

// factorySymbols are tried in order on shared objects.
var factorySymbols = []string{"NewExtension", "New"}

// SharedObjectResolver loads <name>.so Go plugins built with
// -buildmode=plugin. The object must export one of factorySymbols with the
// plugin.Factory signature.
type SharedObjectResolver struct {
	cfg resolverConfig
}

// NewSharedObjectResolver creates a resolver for .so entry files.
func NewSharedObjectResolver(opts ...ResolverOption) *SharedObjectResolver {
	return &SharedObjectResolver{cfg: newResolverConfig(opts)}
}

// Ext implements Resolver.
func (r *SharedObjectResolver) Ext() string { return ".so" }

// Resolve implements Resolver.
func (r *SharedObjectResolver) Resolve(ctx context.Context, path, name string) (plugin.Extension, error) {
	if len(r.cfg.trusted) > 0 {
		if err := signing.VerifyFile(path, signing.SignaturePath(path), r.cfg.trusted); err != nil {
			return nil, plugin.NewError("resolve", name, plugin.ErrEntryClassMissing, err)
		}
	}

	mod, err := goplugin.Open(path)
	if err != nil {
		return nil, plugin.NewError("resolve", name, plugin.ErrEntryClassMissing, err)
	}

	var lastErr error
	for _, symbol := range factorySymbols {
		sym, err := mod.Lookup(symbol)
		if err != nil {
			continue
		}
		factory, err := factoryFromSymbol(sym)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", symbol, err)
			continue
		}
		m := plugin.Manifest{Descriptor: plugin.Descriptor{SystemName: name}}
		return construct(name, factory, r.cfg.host(name), m)
	}

	if lastErr != nil {
		return nil, plugin.NewError("resolve", name, plugin.ErrNotAnExtension, lastErr)
	}
	return nil, plugin.NewError("resolve", name, plugin.ErrEntryClassMissing, fmt.Errorf("no factory symbol exported"))
}

func factoryFromSymbol(sym any) (plugin.Factory, error) {
	switch fn := sym.(type) {
	case plugin.Factory:
		return fn, nil
	case *plugin.Factory:
		return *fn, nil
	case func(plugin.HostAPI, plugin.Manifest) (plugin.Extension, error):
		return fn, nil
	case *func(plugin.HostAPI, plugin.Manifest) (plugin.Extension, error):
		return *fn, nil
	default:
		return nil, fmt.Errorf("incompatible type %T", sym)
	}
}

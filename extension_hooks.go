package sessionvault

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-sessionvault/core"
)

// EventSinkPack is a named group of outbox sinks contributed by an embedding
// application, applied as a unit when the dispatcher is assembled.
type EventSinkPack struct {
	Name  string
	Sinks []core.EventSink
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects downstream contributions before the vault is
// assembled: sink packs for the outbox dispatcher and command/query bundle
// factories built against the facade service. Registration is first-come,
// duplicate names are rejected.
type ExtensionHooks struct {
	mu sync.RWMutex

	sinkPacks map[string]EventSinkPack
	bundles   map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		sinkPacks: map[string]EventSinkPack{},
		bundles:   map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterEventSinkPack(pack EventSinkPack) error {
	if h == nil {
		return fmt.Errorf("sessionvault: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("sessionvault: event sink pack name is required")
	}
	if len(pack.Sinks) == 0 {
		return fmt.Errorf("sessionvault: event sink pack %q has no sinks", name)
	}
	for _, sink := range pack.Sinks {
		if sink == nil {
			return fmt.Errorf("sessionvault: event sink pack %q contains nil sink", name)
		}
	}

	normalized := EventSinkPack{
		Name:  name,
		Sinks: append([]core.EventSink(nil), pack.Sinks...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.sinkPacks[name]; exists {
		return fmt.Errorf("sessionvault: event sink pack %q already registered", name)
	}
	h.sinkPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("sessionvault: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("sessionvault: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("sessionvault: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("sessionvault: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// EventSinks flattens the registered packs in pack-name order, the order the
// dispatcher fans out in.
func (h *ExtensionHooks) EventSinks() []core.EventSink {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.sinkPacks))
	for name := range h.sinkPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := []core.EventSink{}
	for _, name := range names {
		out = append(out, h.sinkPacks[name].Sinks...)
	}
	return out
}

func (h *ExtensionHooks) SinkPacks() []EventSinkPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.sinkPacks))
	for name := range h.sinkPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]EventSinkPack, 0, len(names))
	for _, name := range names {
		pack := h.sinkPacks[name]
		out = append(out, EventSinkPack{
			Name:  pack.Name,
			Sinks: append([]core.EventSink(nil), pack.Sinks...),
		})
	}
	return out
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("sessionvault: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

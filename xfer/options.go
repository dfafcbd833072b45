package xfer

import (
	"fmt"
	"sync"
)

// ValueKind is the sum-type discriminant for an option value. Per the
// DESIGN NOTES in spec.md §9 ("duck-typed gpointer user-data"), the core
// never stores an untyped pointer: every option carries a declared kind,
// and a mismatched Get/Set is a programming error caught at bootstrap.
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindFloat
	KindBool
	KindStringList
	KindBypassList
	KindExtList
)

// Value is a sum-typed option value.
type Value struct {
	Kind   ValueKind
	Str    string
	Int    int
	Float  float64
	Bool   bool
	Strs   []string
	Bypass []BypassEntry
	Exts   []ExtRule
}

// BypassEntry is one entry of the dont_use_proxy option: either a domain
// suffix or an ipv4/mask network.
type BypassEntry struct {
	Suffix string // non-empty for a domain-suffix entry
	Net    string // non-empty CIDR for a network entry, e.g. "10.0.0.0/8"
}

// ExtRule is one entry of the ext option: per-extension ASCII/binary
// transfer-mode decision.
type ExtRule struct {
	Suffix string
	ASCII  bool
}

// OptionDef describes one recognized option, the way an rclone backend's
// init() declares an ordered []fs.Option table (spec.md §9: "option
// metadata as an ordered list of structs with an enum discriminant").
type OptionDef struct {
	Name    string
	Kind    ValueKind
	Default Value
	Help    string
}

// StandardOptions is the table from spec.md §6, in document order. It is
// intentionally a plain slice with no sentinel terminator.
var StandardOptions = []OptionDef{
	{Name: "network_timeout", Kind: KindInt, Default: Value{Kind: KindInt, Int: 20}},
	{Name: "retries", Kind: KindInt, Default: Value{Kind: KindInt, Int: 3}},
	{Name: "sleep_time", Kind: KindInt, Default: Value{Kind: KindInt, Int: 1}},
	{Name: "maxkbs", Kind: KindFloat, Default: Value{Kind: KindFloat, Float: 0}},
	{Name: "passive_transfer", Kind: KindBool, Default: Value{Kind: KindBool, Bool: true}},
	{Name: "ascii_transfers", Kind: KindBool, Default: Value{Kind: KindBool, Bool: false}},
	{Name: "resolve_symlinks", Kind: KindBool, Default: Value{Kind: KindBool, Bool: false}},
	{Name: "show_hidden_files", Kind: KindBool, Default: Value{Kind: KindBool, Bool: false}},
	{Name: "enable_ipv6", Kind: KindBool, Default: Value{Kind: KindBool, Bool: true}},
	{Name: "email", Kind: KindString, Default: Value{Kind: KindString, Str: "anonymous@"}},
	{Name: "ftp_proxy_host", Kind: KindString},
	{Name: "ftp_proxy_port", Kind: KindInt, Default: Value{Kind: KindInt, Int: 21}},
	{Name: "ftp_proxy_username", Kind: KindString},
	{Name: "ftp_proxy_password", Kind: KindString},
	{Name: "ftp_proxy_account", Kind: KindString},
	{Name: "http_proxy_host", Kind: KindString},
	{Name: "http_proxy_port", Kind: KindInt, Default: Value{Kind: KindInt, Int: 8080}},
	{Name: "http_proxy_username", Kind: KindString},
	{Name: "http_proxy_password", Kind: KindString},
	{Name: "proxy_config", Kind: KindString, Default: Value{Kind: KindString, Str: "none"}},
	{Name: "use_http11", Kind: KindBool, Default: Value{Kind: KindBool, Bool: true}},
	{Name: "remote_charsets", Kind: KindString},
	{Name: "remote_lc_time", Kind: KindString},
	{Name: "one_transfer", Kind: KindBool, Default: Value{Kind: KindBool, Bool: false}},
	{Name: "append_transfers", Kind: KindBool, Default: Value{Kind: KindBool, Bool: false}},
	{Name: "dont_use_proxy", Kind: KindBypassList},
	{Name: "ext", Kind: KindExtList},
	{Name: "cache_dir", Kind: KindString},
}

var standardByName = func() map[string]OptionDef {
	m := make(map[string]OptionDef, len(StandardOptions))
	for _, d := range StandardOptions {
		m[d.Name] = d
	}
	return m
}()

// Options is a two-tier lookup: request-local overrides consulted first,
// falling back to a shared global map. Mutation is only safe during
// bootstrap (spec.md §5: "The global options map is read-mostly; writes
// happen only during bootstrap").
type Options struct {
	mu     sync.RWMutex
	global map[string]Value
	local  map[string]Value
}

// NewGlobalOptions builds the process-wide option map, seeded with
// StandardOptions' defaults.
func NewGlobalOptions() *Options {
	o := &Options{global: make(map[string]Value, len(StandardOptions))}
	for _, d := range StandardOptions {
		o.global[d.Name] = d.Default
	}
	return o
}

// NewRequestOptions builds a request-local view layered on top of global.
func (o *Options) NewRequestOptions() *Options {
	return &Options{global: o.global, local: make(map[string]Value)}
}

// Set stores a value. kind must match the option's declared kind or this
// panics, per the "mismatches are programming errors" strategy in
// spec.md §9.
func (o *Options) Set(name string, v Value) {
	def, ok := standardByName[name]
	if ok && def.Kind != v.Kind {
		panic(fmt.Sprintf("xfer: option %q expects kind %v, got %v", name, def.Kind, v.Kind))
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.local != nil {
		o.local[name] = v
		return
	}
	if o.global == nil {
		o.global = make(map[string]Value)
	}
	o.global[name] = v
}

// Get resolves name from local then global, falling back to the
// registered default (or the zero Value if unknown).
func (o *Options) Get(name string) Value {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.local != nil {
		if v, ok := o.local[name]; ok {
			return v
		}
	}
	if v, ok := o.global[name]; ok {
		return v
	}
	if d, ok := standardByName[name]; ok {
		return d.Default
	}
	return Value{}
}

func (o *Options) GetInt(name string) int        { return o.Get(name).Int }
func (o *Options) GetFloat(name string) float64   { return o.Get(name).Float }
func (o *Options) GetBool(name string) bool       { return o.Get(name).Bool }
func (o *Options) GetString(name string) string   { return o.Get(name).Str }
func (o *Options) GetStrings(name string) []string { return o.Get(name).Strs }
func (o *Options) GetBypass(name string) []BypassEntry {
	return o.Get(name).Bypass
}
func (o *Options) GetExts(name string) []ExtRule { return o.Get(name).Exts }

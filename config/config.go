package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/airdcpp-web/dcppcore/hub"
	"github.com/airdcpp-web/dcppcore/identity"
	"github.com/airdcpp-web/dcppcore/refresh"
	"github.com/airdcpp-web/dcppcore/share"
	"github.com/airdcpp-web/dcppcore/upload"
)

// ShareRootConfig is one configured share root: a real filesystem path
// exposed under a virtual name, in zero or more profiles.
type ShareRootConfig struct {
	Path     string
	Virtual  string
	Profiles []string
	Incoming bool
}

// Identity is our own nick/identity/connect parameters, decoded into the
// shape hub.OwnInfo expects once a CID has been parsed.
type Identity struct {
	Nick        string
	Description string
	Application string
	Version     string
	TCPActiveV4 string
	TCPActiveV6 string
	UDPPortV4   string
	UDPPortV6   string
	TCPPort     int
}

// HubConfig is one configured hub to auto-connect to.
type HubConfig struct {
	URL            string
	Host           string
	Port           int
	TLS            bool
	AllowUntrusted bool
	Password       string
	AutoReconnect  bool
}

// Uploads carries the slot scheduler's configured limits.
type Uploads struct {
	MaxSlots        int
	MaxExtraSlots   int
	MaxPartialSlots int
}

// Config is the validated, high-level settings document: everything
// else in the core is constructed from one of these, the same split
// Perkeep keeps between "low-level config" (the raw Obj) and "high
// level config" (this struct).
type Config struct {
	DataDir          string
	CID              identity.CID
	Me               Identity
	ShareRoots       []ShareRootConfig
	Uploads          Uploads
	Hubs             []HubConfig
	SkiplistPatterns []string
	// HashStoreBackend selects the embedded database backing the TTH
	// cache: "leveldb" (default) or "sqlite".
	HashStoreBackend string
}

// Load reads path, decodes it, and validates the result in one call.
func Load(path string) (*Config, error) {
	raw, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := raw.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Decode turns a parsed Obj into a Config, consulting every key Config
// needs via the Required*/Optional* accessors so a subsequent
// raw.Validate() catches both missing and unrecognized keys.
func Decode(raw Obj) (*Config, error) {
	cfg := &Config{
		DataDir: raw.OptionalString("dataDir", "."),
	}

	cidStr := raw.RequiredString("cid")
	if cidStr != "" {
		cid, err := identity.ParseCID(cidStr)
		if err != nil {
			return nil, fmt.Errorf("config: invalid cid: %w", err)
		}
		cfg.CID = cid
	}

	me := raw.RequiredObject("me")
	cfg.Me = Identity{
		Nick:        me.RequiredString("nick"),
		Description: me.OptionalString("description", ""),
		Application: me.OptionalString("application", "dcppd"),
		Version:     me.OptionalString("version", "1.0"),
		TCPActiveV4: me.OptionalString("tcpActiveV4", ""),
		TCPActiveV6: me.OptionalString("tcpActiveV6", ""),
		UDPPortV4:   me.OptionalString("udpPortV4", ""),
		UDPPortV6:   me.OptionalString("udpPortV6", ""),
		TCPPort:     me.OptionalInt("tcpPort", 0),
	}
	if err := me.Validate(); err != nil {
		return nil, fmt.Errorf("config: me: %w", err)
	}

	uploads := raw.OptionalObject("uploads")
	cfg.Uploads = Uploads{
		MaxSlots:        uploads.OptionalInt("maxSlots", 10),
		MaxExtraSlots:   uploads.OptionalInt("maxExtraSlots", 3),
		MaxPartialSlots: uploads.OptionalInt("maxPartialSlots", 1),
	}
	if err := uploads.Validate(); err != nil {
		return nil, fmt.Errorf("config: uploads: %w", err)
	}

	for i, rootObj := range raw.OptionalObjectList("shareRoots") {
		root := ShareRootConfig{
			Path:     rootObj.RequiredString("path"),
			Virtual:  rootObj.RequiredString("virtual"),
			Profiles: rootObj.OptionalList("profiles"),
			Incoming: rootObj.OptionalBool("incoming", false),
		}
		if err := rootObj.Validate(); err != nil {
			return nil, fmt.Errorf("config: shareRoots[%d]: %w", i, err)
		}
		cfg.ShareRoots = append(cfg.ShareRoots, root)
	}

	for i, hubObj := range raw.OptionalObjectList("hubs") {
		h := HubConfig{
			URL:            hubObj.RequiredString("url"),
			Host:           hubObj.RequiredString("host"),
			Port:           hubObj.OptionalInt("port", 412),
			TLS:            hubObj.OptionalBool("tls", false),
			AllowUntrusted: hubObj.OptionalBool("allowUntrusted", false),
			Password:       hubObj.OptionalString("password", ""),
			AutoReconnect:  hubObj.OptionalBool("autoReconnect", true),
		}
		if err := hubObj.Validate(); err != nil {
			return nil, fmt.Errorf("config: hubs[%d]: %w", i, err)
		}
		cfg.Hubs = append(cfg.Hubs, h)
	}

	cfg.SkiplistPatterns = raw.OptionalList("skiplist")
	cfg.HashStoreBackend = raw.OptionalString("hashStoreBackend", "leveldb")

	return cfg, nil
}

// Obj's RequiredObject/OptionalObject mirror jsonconfig's nested-object
// accessors; kept here rather than in jsonconfig.go since only Decode
// needs them.
func (o Obj) RequiredObject(key string) Obj { return o.obj(key, false) }
func (o Obj) OptionalObject(key string) Obj { return o.obj(key, true) }

func (o Obj) obj(key string, optional bool) Obj {
	o.noteKnownKey(key)
	v, ok := o[key]
	if !ok {
		if optional {
			return make(Obj)
		}
		o.appendError(fmt.Errorf("missing required config key %q (object)", key))
		return make(Obj)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		o.appendError(fmt.Errorf("config key %q must be an object, got %T", key, v))
		return make(Obj)
	}
	return Obj(m)
}

// HubClientConfig adapts one configured hub entry into the hub package's
// Config, folding in our own identity parameters.
func (c *Config) HubClientConfig(h HubConfig, shareSize int64, shareFiles int) hub.Config {
	return hub.Config{
		URL:            h.URL,
		Host:           h.Host,
		Port:           h.Port,
		TLS:            h.TLS,
		AllowUntrusted: h.AllowUntrusted,
		Password:       h.Password,
		AutoReconnect:  h.AutoReconnect,
		TCPPort:        c.Me.TCPPort,
		Me: hub.OwnInfo{
			CID:         c.CID,
			Nick:        c.Me.Nick,
			Description: c.Me.Description,
			Application: c.Me.Application,
			Version:     c.Me.Version,
			ShareSize:   shareSize,
			ShareFiles:  shareFiles,
			Slots:       c.Uploads.MaxSlots,
			TCPActiveV4: c.Me.TCPActiveV4,
			TCPActiveV6: c.Me.TCPActiveV6,
			UDPPortV4:   c.Me.UDPPortV4,
			UDPPortV6:   c.Me.UDPPortV6,
		},
	}
}

// UploadLimits adapts the configured slot counts into upload.Limits.
func (c *Config) UploadLimits(autoSlot func() bool) upload.Limits {
	return upload.Limits{
		MaxSlots:        c.Uploads.MaxSlots,
		MaxExtraSlots:   c.Uploads.MaxExtraSlots,
		MaxPartialSlots: c.Uploads.MaxPartialSlots,
		AutoSlotUpload:  autoSlot,
	}
}

// SkiplistValidator compiles the configured skiplist patterns (shell-style
// globs matched against a file or directory's base name, case-insensitive,
// the same matching airdcpp's own skiplist uses) into a refresh.Validator
// rejecting anything that matches, the hashed-file/temp-file exclusion
// ShareManager::Validator performs in airdcpp-core.
func SkiplistValidator(patterns []string) (refresh.Validator, error) {
	var res []*regexp.Regexp
	for _, p := range patterns {
		re, err := globToRegexp(p)
		if err != nil {
			return nil, fmt.Errorf("config: skiplist pattern %q: %w", p, err)
		}
		res = append(res, re)
	}
	return func(realPath string, info os.FileInfo) error {
		name := strings.ToLower(filepath.Base(realPath))
		for _, re := range res {
			if re.MatchString(name) {
				return fmt.Errorf("config: %s matches skiplist pattern", realPath)
			}
		}
		return nil
	}, nil
}

func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '.', '+', '(', ')', '|', '^', '$', '[', ']', '{', '}', '\\':
			b.WriteString("\\")
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString("$")
	return regexp.Compile("(?i)" + b.String())
}

// BuildShareRoots registers every configured share root's profiles against
// tree and returns one share.ShareRoot per configured root, in
// configuration order; the roots are not added to tree here.
func (c *Config) BuildShareRoots(tree *share.Tree) []*share.ShareRoot {
	profilesSeen := make(map[string]bool)
	var roots []*share.ShareRoot
	for _, rc := range c.ShareRoots {
		for _, p := range rc.Profiles {
			if !profilesSeen[p] {
				tree.AddProfile(p, p)
				profilesSeen[p] = true
			}
		}
		root := share.NewShareRoot(rc.Path, rc.Virtual)
		root.Incoming = rc.Incoming
		for _, p := range rc.Profiles {
			root.Profiles[p] = true
		}
		roots = append(roots, root)
	}
	return roots
}

// Package metadata implements the version descriptor model and the
// inheritance-chain resolver/flattener (spec.md §3, §4.1).
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/quasar/pmc/internal/rules"
)

// Descriptor is one version JSON as loaded from versions/<id>/<id>.json,
// before flattening against its ancestors.
type Descriptor struct {
	ID                 string         `json:"id"`
	InheritsFrom       string         `json:"inheritsFrom,omitempty"`
	Type               string         `json:"type,omitempty"`
	MainClass          string         `json:"mainClass,omitempty"`
	AssetIndex         *AssetIndexRef `json:"assetIndex,omitempty"`
	Assets             string         `json:"assets,omitempty"`
	Downloads          *Downloads     `json:"downloads,omitempty"`
	Logging            *Logging       `json:"logging,omitempty"`
	JavaVersion        *JavaVersionReq `json:"javaVersion,omitempty"`
	Libraries          []Library      `json:"libraries,omitempty"`
	Arguments          *Arguments     `json:"arguments,omitempty"`
	MinecraftArguments string         `json:"minecraftArguments,omitempty"`
}

// AssetIndexRef points at an asset index to resolve (spec.md §3).
type AssetIndexRef struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	SHA1      string `json:"sha1"`
	Size      int64  `json:"size"`
	TotalSize int64  `json:"totalSize"`
}

// Artifact is a single downloadable file reference.
type Artifact struct {
	URL  string `json:"url"`
	Path string `json:"path,omitempty"`
	SHA1 string `json:"sha1,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Downloads holds the client (and, incidentally, server) artifact refs.
type Downloads struct {
	Client *Artifact `json:"client,omitempty"`
	Server *Artifact `json:"server,omitempty"`
}

// Logging describes the optional logger-config argument and file.
type Logging struct {
	Client *LoggingClient `json:"client,omitempty"`
}

// LoggingClient carries the argument template and the log4j config file.
type LoggingClient struct {
	Argument string          `json:"argument"`
	File     *LoggingFile    `json:"file"`
	Type     string          `json:"type,omitempty"`
}

// LoggingFile is the downloadable log4j config referenced by Logging.
type LoggingFile struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
}

// JavaVersionReq names the JVM component and major version a descriptor
// requires (spec.md §4.5 defaults this to 8 when absent).
type JavaVersionReq struct {
	Component    string `json:"component"`
	MajorVersion int    `json:"majorVersion"`
}

// Library is one dependency coordinate, gated by Rules, with an optional
// platform-native classifier.
type Library struct {
	Name      string            `json:"name"`
	Downloads *LibraryDownloads `json:"downloads,omitempty"`
	Rules     []rules.Rule      `json:"-"`
	RawRules  []rawRule         `json:"rules,omitempty"`
	Natives   map[string]string `json:"natives,omitempty"`
	Extract   *ExtractRule      `json:"extract,omitempty"`
	URL       string            `json:"url,omitempty"`
}

// ExtractRule lists path prefixes excluded from native extraction.
type ExtractRule struct {
	Exclude []string `json:"exclude,omitempty"`
}

// LibraryDownloads carries the primary artifact and any native
// classifiers for a Library.
type LibraryDownloads struct {
	Artifact    *Artifact            `json:"artifact,omitempty"`
	Classifiers map[string]*Artifact `json:"classifiers,omitempty"`
}

// Arguments is the modern {jvm:[], game:[]} argument shape.
type Arguments struct {
	JVM  []ArgumentFragment `json:"jvm,omitempty"`
	Game []ArgumentFragment `json:"game,omitempty"`
}

// ArgumentFragment is either a literal string or a {rules, value}
// rule-gated fragment (spec.md §9 Open Question: no other object shape is
// accepted — it is rejected as malformed_descriptor at parse time).
type ArgumentFragment struct {
	Rules  []rules.Rule
	Values []string
}

type rawRule struct {
	Action   string            `json:"action"`
	OS       *rules.OSPredicate `json:"os,omitempty"`
	Features map[string]bool   `json:"features,omitempty"`
}

func (r rawRule) toRule() rules.Rule {
	return rules.Rule{Action: rules.Action(r.Action), OS: r.OS, Features: r.Features}
}

func convertRules(raw []rawRule) []rules.Rule {
	if len(raw) == 0 {
		return nil
	}
	out := make([]rules.Rule, len(raw))
	for i, r := range raw {
		out[i] = r.toRule()
	}
	return out
}

// UnmarshalJSON accepts a bare string or a strict {rules?, value} object;
// anything else is malformed.
func (f *ArgumentFragment) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Values = []string{s}
		return nil
	}

	var obj struct {
		Rules []rawRule       `json:"rules"`
		Value json.RawMessage `json:"value"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&obj); err != nil {
		return fmt.Errorf("malformed_descriptor: unsupported argument fragment shape: %w", err)
	}
	if len(obj.Value) == 0 {
		return fmt.Errorf("malformed_descriptor: argument fragment object missing value")
	}

	f.Rules = convertRules(obj.Rules)

	var single string
	if err := json.Unmarshal(obj.Value, &single); err == nil {
		f.Values = []string{single}
		return nil
	}
	var multi []string
	if err := json.Unmarshal(obj.Value, &multi); err == nil {
		f.Values = multi
		return nil
	}
	return fmt.Errorf("malformed_descriptor: argument fragment value must be string or []string")
}

// MarshalJSON round-trips back to the bare-string shape when there are no
// rules, and the {rules, value} shape otherwise.
func (f ArgumentFragment) MarshalJSON() ([]byte, error) {
	if len(f.Rules) == 0 && len(f.Values) == 1 {
		return json.Marshal(f.Values[0])
	}
	var value any
	if len(f.Values) == 1 {
		value = f.Values[0]
	} else {
		value = f.Values
	}
	raw := make([]rawRule, len(f.Rules))
	for i, r := range f.Rules {
		raw[i] = rawRule{Action: string(r.Action), OS: r.OS, Features: r.Features}
	}
	return json.Marshal(struct {
		Rules []rawRule `json:"rules,omitempty"`
		Value any       `json:"value"`
	}{Rules: raw, Value: value})
}

// UnmarshalJSON on Library hydrates RawRules into the rules.Rule form.
func (l *Library) UnmarshalJSON(data []byte) error {
	type alias Library
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*l = Library(a)
	l.Rules = convertRules(l.RawRules)
	return nil
}

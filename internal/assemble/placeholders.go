// Package assemble turns a flattened descriptor, resolved libraries, and
// a set of runtime values into the final JVM + game argv (spec.md §4.7),
// applying the known version-specific fixes along the way (spec.md §4.8).
package assemble

import (
	"os/user"
	"runtime"
	"strings"
)

// Values holds every placeholder an argument template may reference.
// Most zero-value fields substitute to "" rather than erroring — a
// descriptor referencing a placeholder this run doesn't populate is not
// malformed, just unused. See placeholderMap for the exceptions.
type Values struct {
	AuthPlayerName    string
	VersionName       string
	GameDirectory     string
	AssetsRoot        string
	AssetsIndexName   string
	AuthUUID          string
	AuthAccessToken   string
	UserType          string
	VersionType       string
	UserProperties    string
	ClientID          string
	AuthXUID          string
	Resolution        *Resolution
	QuickPlayPath     string
	QuickPlaySingle   string
	QuickPlayMultiplayer string
	QuickPlayRealms   string
	NativesDirectory  string
	LauncherName      string
	LauncherVersion   string
	Classpath         string
	LibraryDirectory  string
	LoggingPath       string
}

// Resolution is populated only when the custom_resolution feature/fix is
// active.
type Resolution struct {
	Width, Height int
}

// placeholderMap builds the ${name} -> value substitution table for v.
// Placeholders with no populated value substitute to "" rather than
// being left in the output, matching Mojang's own launcher behavior for
// optional fields like quickPlayPath on versions that don't support it.
// Exceptions: an empty user_properties becomes "{}", an empty
// launcher_name becomes "pmc", and resolution_width/resolution_height
// are only mapped when Resolution is set, so without it they stay in the
// output unsubstituted.
func placeholderMap(v Values) map[string]string {
	m := map[string]string{
		"auth_player_name":    v.AuthPlayerName,
		"version_name":        v.VersionName,
		"game_directory":      v.GameDirectory,
		"assets_root":         v.AssetsRoot,
		"game_assets":         v.AssetsRoot,
		"assets_index_name":   v.AssetsIndexName,
		"auth_uuid":           v.AuthUUID,
		"auth_access_token":   v.AuthAccessToken,
		"auth_session":        v.AuthAccessToken,
		"user_type":           v.UserType,
		"version_type":        v.VersionType,
		"user_properties":     orDefault(v.UserProperties, "{}"),
		"clientid":            v.ClientID,
		"auth_xuid":           v.AuthXUID,
		"quickPlayPath":       v.QuickPlayPath,
		"quickPlaySingleplayer": v.QuickPlaySingle,
		"quickPlayMultiplayer": v.QuickPlayMultiplayer,
		"quickPlayRealms":     v.QuickPlayRealms,
		"natives_directory":   v.NativesDirectory,
		"launcher_name":       orDefault(v.LauncherName, "pmc"),
		"launcher_version":    v.LauncherVersion,
		"classpath":           v.Classpath,
		"classpath_separator": classpathSeparator(),
		"library_directory":   v.LibraryDirectory,
		"path":                v.LoggingPath,
	}

	if v.Resolution != nil {
		m["resolution_width"] = itoa(v.Resolution.Width)
		m["resolution_height"] = itoa(v.Resolution.Height)
	}

	return m
}

func classpathSeparator() string {
	if runtime.GOOS == "windows" {
		return ";"
	}
	return ":"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}

// substitute replaces every ${name} occurrence in s using m, leaving
// unknown placeholders untouched (a malformed or forward-looking
// descriptor should not corrupt argv with a half-substituted token).
func substitute(s string, m map[string]string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			b.WriteString(s)
			break
		}
		end += start

		name := s[start+2 : end]
		b.WriteString(s[:start])
		if val, ok := m[name]; ok {
			b.WriteString(val)
		} else {
			b.WriteString(s[start : end+1])
		}
		s = s[end+1:]
	}
	return b.String()
}

// currentUsername falls back to "Player" when the OS user lookup fails,
// matching the teacher's offline-mode default player name.
func currentUsername() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "Player"
	}
	return u.Username
}

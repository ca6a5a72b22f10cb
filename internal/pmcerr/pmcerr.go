// Package pmcerr defines the engine's tagged error taxonomy.
//
// Every failure that crosses a component boundary is wrapped into an
// *Error carrying a closed Kind, a kind-specific Payload, and a message
// meant for humans. Callers that need to branch on failure type should
// use errors.As, not string matching.
package pmcerr

import "fmt"

// Kind is a tag from the closed enumeration in the error taxonomy.
type Kind string

const (
	// Base installer
	KindHierarchyLoop      Kind = "hierarchy_loop"
	KindVersionNotFound     Kind = "version_not_found"
	KindMalformedDescriptor Kind = "malformed_descriptor"
	KindAssetIndexNotFound  Kind = "assets_index_not_found"
	KindClientNotFound      Kind = "client_not_found"
	KindLibraryNotFound     Kind = "library_not_found"
	KindJVMNotFound         Kind = "jvm_not_found"
	KindMainClassNotFound   Kind = "main_class_not_found"
	KindDownloadCancelled   Kind = "download_resources_cancelled"
	KindDownload            Kind = "download"

	// Mojang layer
	KindLWJGLFixNotFound Kind = "lwjgl_fix_not_found"

	// Fabric layer
	KindFabricLatestNotFound Kind = "fabric_latest_version_not_found"
	KindFabricGameNotFound   Kind = "fabric_game_version_not_found"
	KindFabricLoaderNotFound Kind = "fabric_loader_version_not_found"

	// Forge layer
	KindForgeLatestNotFound     Kind = "forge_latest_version_not_found"
	KindForgeInstallerNotFound  Kind = "forge_installer_not_found"
	KindForgeMavenMalformed     Kind = "forge_maven_metadata_malformed"
	KindInstallProfileNotFound  Kind = "install_profile_not_found"
	KindInstallProfileIncoherent Kind = "install_profile_incoherent"
	KindInstallerFileNotFound   Kind = "installer_file_not_found"
	KindProcessorNotFound       Kind = "processor_not_found"
	KindProcessorFailed         Kind = "processor_failed"
	KindProcessorCorrupted      Kind = "processor_output_corrupted"

	// Auth
	KindAuthDeclined       Kind = "auth_declined"
	KindAuthTimedOut       Kind = "auth_timed_out"
	KindAuthOutdatedToken  Kind = "auth_outdated_token"
	KindAuthDoesNotOwnGame Kind = "auth_does_not_own_game"
	KindAuthHTTPStatus     Kind = "auth_http_status"
	KindAuthUnknown        Kind = "auth_unknown"

	// Auth DB
	KindAuthDBIO        Kind = "auth_db_io"
	KindAuthDBCorrupted Kind = "auth_db_corrupted"
	KindAuthDBWrite     Kind = "auth_db_write_failed"
)

// Error is the wire-shaped tagged error every component returns.
type Error struct {
	Kind    Kind
	Payload any
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause.Error())
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no payload.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap builds an *Error around a cause.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Cause: cause, Message: msg}
}

// WithPayload builds an *Error carrying a kind-specific payload.
func WithPayload(kind Kind, payload any, msg string) *Error {
	return &Error{Kind: kind, Payload: payload, Message: msg}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := asError(err, &e); !ok {
		return false
	}
	return e.Kind == kind
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// HierarchyLoopPayload is the payload for KindHierarchyLoop.
type HierarchyLoopPayload struct {
	ID string
}

// VersionNotFoundPayload is the payload for KindVersionNotFound.
type VersionNotFoundPayload struct {
	ID string
}

// LibraryNotFoundPayload is the payload for KindLibraryNotFound.
type LibraryNotFoundPayload struct {
	Coordinate string
}

// JVMNotFoundPayload is the payload for KindJVMNotFound.
type JVMNotFoundPayload struct {
	MajorVersion int
}

// DownloadFailure describes one failed entry in a KindDownload payload.
type DownloadFailure struct {
	URL   string
	Dest  string
	Cause string
}

// DownloadPayload is the payload for KindDownload.
type DownloadPayload struct {
	Failures []DownloadFailure
}

// ProcessorFailedPayload is the payload for KindProcessorFailed.
type ProcessorFailedPayload struct {
	Name   string
	Status int
	Stdout string
	Stderr string
}

// ProcessorCorruptedPayload is the payload for KindProcessorCorrupted.
type ProcessorCorruptedPayload struct {
	Name         string
	File         string
	ExpectedSHA1 string
}

// AuthHTTPStatusPayload is the payload for KindAuthHTTPStatus.
type AuthHTTPStatusPayload struct {
	Code int
}

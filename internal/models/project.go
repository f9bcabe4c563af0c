// Package models defines the annotation-platform data structures the
// exchange core operates on.
package models

import "time"

// ProjectState is the lifecycle state of an annotation project.
type ProjectState string

const (
	ProjectStateNew                  ProjectState = "NEW"
	ProjectStateAnnotationInProgress ProjectState = "ANNOTATION_IN_PROGRESS"
	ProjectStateAnnotationFinished   ProjectState = "ANNOTATION_FINISHED"
	ProjectStateCurationInProgress   ProjectState = "CURATION_IN_PROGRESS"
	ProjectStateCurationFinished     ProjectState = "CURATION_FINISHED"
)

// PermissionLevel is a per-project role.
type PermissionLevel string

const (
	PermissionAnnotator PermissionLevel = "ANNOTATOR"
	PermissionCurator   PermissionLevel = "CURATOR"
	PermissionManager   PermissionLevel = "MANAGER"
)

// Project is an annotation project. The slug is the job address of the
// submission that created it and is immutable; the name is the display
// title and may be overridden by the manifest's projectTitle config.
type Project struct {
	Slug        string       `json:"slug"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	State       ProjectState `json:"state"`
	Created     time.Time    `json:"created,omitempty"`
}

// User is a platform account. UIName carries the annotator's self-chosen
// display identifier, which for protocol projects is their wallet address.
type User struct {
	Username string `json:"username"`
	UIName   string `json:"ui_name"`
}

// ProjectInvite is the join artifact generated during bootstrap and re-read
// by the join flow.
type ProjectInvite struct {
	ID                          string    `json:"id"`
	ProjectSlug                 string    `json:"project_slug"`
	ExpirationDate              time.Time `json:"expiration_date"`
	GuestAccessible             bool      `json:"guest_accessible"`
	InvitationText              string    `json:"invitation_text,omitempty"`
	UserIDPlaceholder           string    `json:"user_id_placeholder,omitempty"`
	MaxAnnotatorCount           int       `json:"max_annotator_count"`
	DisableOnAnnotationComplete bool      `json:"disable_on_annotation_complete"`
	AskForEmail                 bool      `json:"ask_for_email"`
}

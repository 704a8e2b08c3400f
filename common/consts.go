package common

const (
	// DefaultMountRoot is where the mount-server materializes repo@branch views.
	DefaultMountRoot = "/pfs"

	// DefaultMountServerURL is the local control plane exposed by `pachctl mount-server`.
	DefaultMountServerURL = "http://localhost:9002"

	DefaultProject = "default"
	DefaultBranch  = "master"

	// AnnotationKeySuffix is appended to an annotation's storage key on export.
	AnnotationKeySuffix = ".json"

	// TaskDataUndefinedKey is the platform's field name for task data whose
	// schema is not declared by the labeling config.
	TaskDataUndefinedKey = "$undefined$"
)

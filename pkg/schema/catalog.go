package schema

// Processors is the closed set of processor ids the backend's job runner
// accepts, in its canonical order.
var Processors = []string{
	"remux",
	"rclone",
	"thumbnail",
	"execute",
	"audio_extract",
	"compression",
	"copy_move",
	"delete",
	"metadata",
}

// PresetCategories is the closed set of job preset categories.
var PresetCategories = []string{
	"remux",
	"compression",
	"thumbnail",
	"audio",
	"archive",
	"upload",
	"cleanup",
	"file_ops",
	"custom",
	"metadata",
}

// KnownProcessor reports whether id names a supported processor.
func KnownProcessor(id string) bool {
	for _, p := range Processors {
		if p == id {
			return true
		}
	}
	return false
}

// KnownCategory reports whether c names a supported preset category.
func KnownCategory(c string) bool {
	for _, cat := range PresetCategories {
		if cat == c {
			return true
		}
	}
	return false
}
